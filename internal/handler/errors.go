package handler

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// errBadRequest marks malformed API input.
var errBadRequest = errors.New("bad request")

// statusOf maps a domain error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, catalog.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrBusy), errors.Is(err, catalog.ErrCanceled):
		return http.StatusConflict
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientGone reports whether the request was abandoned by the client, in
// which case nothing is written.
func clientGone(r *http.Request, err error) bool {
	return r.Context().Err() != nil &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// fragmentError answers an htmx fragment request. An unknown session
// renders the expired notice in place of the catalog body; htmx only swaps
// 2xx responses, so htmx callers get 200 with retargeting headers and
// everyone else a plain 404.
func (h *Handler) fragmentError(w http.ResponseWriter, r *http.Request, err error) {
	if clientGone(r, err) {
		return
	}
	status := statusOf(err)
	if status != http.StatusNotFound {
		if status >= http.StatusInternalServerError {
			zctx.From(r.Context()).Error("Fragment failed", zap.Error(err))
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	if httpmiddleware.IsHTMX(r.Context()) {
		w.Header().Set("HX-Retarget", "#catalog-body")
		w.Header().Set("HX-Reswap", "outerHTML")
		status = http.StatusOK
	}
	h.render(w, r, status, func(buf *bytes.Buffer) error {
		return h.view.Expired(buf)
	})
}

// apiError writes {"code":...,"message":...}.
func apiError(w http.ResponseWriter, r *http.Request, err error) {
	if clientGone(r, err) {
		return
	}
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(err.Error()) })
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = e.WriteTo(w)
}
