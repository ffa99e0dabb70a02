package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/view"
)

// page mounts a new catalog session and renders the storefront shell. The
// catalog body is fetched by htmx once the shell has loaded.
func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		h.fragmentError(w, r, err)
		return
	}
	zctx.From(r.Context()).Debug("Catalog mounted", zap.String("session_id", s.ID()))

	h.render(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return h.view.Page(buf, view.PageData{
			Title: h.cfg.Title,
			Hero: view.HeroData{
				ImageURL: h.cfg.HeroImageURL,
				Headline: view.DefaultHeadline,
			},
			Catalog: view.CatalogData{
				BasePath:  basePath(s.ID()),
				Loading:   true,
				Skeletons: make([]struct{}, catalog.PageSize),
			},
		})
	})
}

// catalogBody waits for the initial fetch and renders the toolbar with the
// first page of results.
func (h *Handler) catalogBody(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadedSession(r)
	if err != nil {
		h.fragmentError(w, r, err)
		return
	}
	data := view.NewCatalogData(basePath(s.ID()), s.Snapshot())
	h.render(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return h.view.CatalogBody(buf, data)
	})
}

// results applies the toolbar form and renders the reset result grid.
func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadedSession(r)
	if err != nil {
		h.fragmentError(w, r, err)
		return
	}
	snap, err := s.SetQuery(queryFromForm(r))
	if err != nil {
		h.fragmentError(w, r, err)
		return
	}
	data := view.NewCatalogData(basePath(s.ID()), snap)
	h.render(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return h.view.Results(buf, data)
	})
}

// more reveals the next page and renders the appended cards followed by a
// new sentinel or the end marker, replacing the sentinel that fired.
func (h *Handler) more(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadedSession(r)
	if err != nil {
		h.fragmentError(w, r, err)
		return
	}

	pos, err := positionFromQuery(r)
	if err != nil {
		h.fragmentError(w, r, err)
		return
	}
	appended, err := loadMore(r.Context(), s, pos)
	switch {
	case err == nil, errors.Is(err, catalog.ErrNothingToLoad):
	case errors.Is(err, catalog.ErrBusy):
		// Another step is in flight: keep a sentinel that asks again.
	case errors.Is(err, catalog.ErrCanceled):
		// The sentinel belongs to a grid of an older query.
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		h.fragmentError(w, r, err)
		return
	}

	data := view.NewCatalogData(basePath(s.ID()), s.Snapshot())
	data.Cards = view.NewCards(appended)
	data.Retry = errors.Is(err, catalog.ErrBusy)
	if data.Retry {
		data.End = false
		if pos != nil {
			// The page still shows what the fired sentinel saw.
			data.Gen, data.Revealed = pos.Gen, pos.Revealed
		}
	} else if pos != nil {
		data.Gen, data.Revealed = pos.Gen, pos.Revealed+len(appended)
	}
	h.render(w, r, http.StatusOK, func(buf *bytes.Buffer) error {
		return h.view.More(buf, data)
	})
}

// unmount closes the session.
func (h *Handler) unmount(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "sid")); err != nil {
		h.fragmentError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// loadedSession resolves the session and waits for its initial fetch.
func (h *Handler) loadedSession(r *http.Request) (*catalog.Session, error) {
	s, err := h.session(r)
	if err != nil {
		return nil, err
	}
	if err := s.Wait(r.Context()); err != nil {
		return nil, err
	}
	return s, nil
}

// positionFromQuery reads the gen and from parameters the sentinel sends.
// Requests without them skip the position check.
func positionFromQuery(r *http.Request) (*catalog.Position, error) {
	q := r.URL.Query()
	if !q.Has("gen") && !q.Has("from") {
		return nil, nil
	}
	gen, err := strconv.ParseUint(q.Get("gen"), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(errBadRequest, "gen: %v", err)
	}
	from, err := strconv.Atoi(q.Get("from"))
	if err != nil || from < 0 {
		return nil, errors.Wrapf(errBadRequest, "from: %q", q.Get("from"))
	}
	return &catalog.Position{Gen: gen, Revealed: from}, nil
}

func loadMore(ctx context.Context, s *catalog.Session, pos *catalog.Position) ([]product.Product, error) {
	if pos == nil {
		return s.LoadMore(ctx)
	}
	return s.LoadMoreAt(ctx, *pos)
}

// queryFromForm reads the toolbar fields. Missing fields take defaults.
func queryFromForm(r *http.Request) catalog.Query {
	return catalog.Query{
		Search:   r.FormValue("search"),
		Category: r.FormValue("category"),
		Sort:     catalog.ParseSortKey(r.FormValue("sort")),
	}
}

// render buffers the template output so a failed render still produces a
// clean 500 instead of a truncated fragment.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, fn func(buf *bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		zctx.From(r.Context()).Error("Render failed", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
