package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/product"
)

// maxQueryBody bounds the PUT query payload.
const maxQueryBody = 4 << 10

// apiCreate mounts a session. The response does not wait for the initial
// fetch, so the snapshot is usually still loading.
func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		apiError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+s.ID())
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeSnapshot(e, s.Snapshot(), nil)
	})
}

func (h *Handler) apiSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadedSession(r)
	if err != nil {
		apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, s.Snapshot(), nil)
	})
}

func (h *Handler) apiSetQuery(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadedSession(r)
	if err != nil {
		apiError(w, r, err)
		return
	}
	q, err := decodeQuery(jx.Decode(http.MaxBytesReader(w, r.Body, maxQueryBody), 512))
	if err != nil {
		apiError(w, r, errors.Wrapf(errBadRequest, "decode query: %v", err))
		return
	}
	snap, err := s.SetQuery(q)
	if err != nil {
		apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, snap, nil)
	})
}

// apiLoadMore runs one load-more step and answers once it has finished.
// Loading more at the end of results is a no-op that still answers 200.
// Optional gen and from parameters pin the step to the client's view.
func (h *Handler) apiLoadMore(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadedSession(r)
	if err != nil {
		apiError(w, r, err)
		return
	}
	pos, err := positionFromQuery(r)
	if err != nil {
		apiError(w, r, err)
		return
	}
	appended, err := loadMore(r.Context(), s, pos)
	if err != nil && !errors.Is(err, catalog.ErrNothingToLoad) {
		apiError(w, r, err)
		return
	}
	if appended == nil {
		appended = []product.Product{}
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSnapshot(e, s.Snapshot(), appended)
	})
}

func (h *Handler) apiClose(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sid")); err != nil {
		apiError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeQuery reads {"search":..., "category":..., "sort":...}. Absent
// fields take their defaults; unknown fields are ignored.
func decodeQuery(d *jx.Decoder) (catalog.Query, error) {
	var q catalog.Query
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "search":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "search")
			}
			q.Search = s
		case "category":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "category")
			}
			q.Category = s
		case "sort":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "sort")
			}
			q.Sort = catalog.ParseSortKey(s)
		default:
			return d.Skip()
		}
		return nil
	})
	return q, err
}

// encodeSnapshot writes the session state. appended, when not nil, lists
// the products revealed by the request that produced the snapshot.
func encodeSnapshot(e *jx.Encoder, s catalog.Snapshot, appended []product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("state", func(e *jx.Encoder) { e.Str(s.State.String()) })
		e.Field("generation", func(e *jx.Encoder) { e.UInt64(s.Gen) })
		e.Field("query", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("search", func(e *jx.Encoder) { e.Str(s.Query.Search) })
				e.Field("category", func(e *jx.Encoder) { e.Str(s.Query.Category) })
				e.Field("sort", func(e *jx.Encoder) { e.Str(string(s.Query.Sort)) })
			})
		})
		e.Field("categories", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range s.Categories {
					e.Obj(func(e *jx.Encoder) {
						e.Field("value", func(e *jx.Encoder) { e.Str(c) })
						e.Field("label", func(e *jx.Encoder) { e.Str(catalog.CategoryLabel(c)) })
					})
				}
			})
		})
		e.Field("products", func(e *jx.Encoder) { encodeProducts(e, s.Visible) })
		if appended != nil {
			e.Field("appended", func(e *jx.Encoder) { encodeProducts(e, appended) })
		}
		e.Field("total", func(e *jx.Encoder) { e.Int(s.Total) })
		e.Field("loading", func(e *jx.Encoder) { e.Bool(s.Loading()) })
		e.Field("end_of_results", func(e *jx.Encoder) { e.Bool(s.EndOfResults()) })
		if s.FetchErr != nil {
			e.Field("error", func(e *jx.Encoder) { e.Str(s.FetchErr.Error()) })
		}
	})
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			encodeProduct(e, p)
		}
	})
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("title", func(e *jx.Encoder) { e.Str(p.Title) })
		e.Field("price", func(e *jx.Encoder) {
			if !p.Price.Valid {
				e.Null()
				return
			}
			e.RawStr(p.Price.Decimal.String())
		})
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("image", func(e *jx.Encoder) { e.Str(p.Image) })
		e.Field("rating", func(e *jx.Encoder) {
			if p.Rating == nil {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				e.Field("rate", func(e *jx.Encoder) { e.RawStr(p.Rating.Rate.String()) })
				e.Field("count", func(e *jx.Encoder) { e.Int(p.Rating.Count) })
			})
		})
	})
}
