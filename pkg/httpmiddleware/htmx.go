package httpmiddleware

import (
	"context"
	"net/http"
	"strings"
)

type htmxKey struct{}

// HTMXRequest is the htmx metadata of a request.
type HTMXRequest struct {
	// Enabled is set for requests issued by htmx.
	Enabled bool
	// Target is the id of the element being swapped.
	Target string
	// Trigger is the id of the element that triggered the request.
	Trigger string
	// CurrentURL is the browser location at request time.
	CurrentURL string
}

// HTMX records the HX-* request headers in the request context.
func HTMX() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := HTMXRequest{
				Enabled:    strings.EqualFold(r.Header.Get("HX-Request"), "true"),
				Target:     r.Header.Get("HX-Target"),
				Trigger:    r.Header.Get("HX-Trigger"),
				CurrentURL: r.Header.Get("HX-Current-URL"),
			}
			w.Header().Add("Vary", "HX-Request")
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), htmxKey{}, info)))
		})
	}
}

// HTMXFromContext returns the htmx metadata of the request, zero if absent.
func HTMXFromContext(ctx context.Context) HTMXRequest {
	info, _ := ctx.Value(htmxKey{}).(HTMXRequest)
	return info
}

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(ctx context.Context) bool {
	return HTMXFromContext(ctx).Enabled
}
