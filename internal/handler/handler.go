// Package handler serves the storefront page, its htmx fragments and the
// JSON session API.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/view"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Sessions is the catalog session store used by the handlers.
type Sessions interface {
	Create(ctx context.Context) (*catalog.Session, error)
	Get(id string) (*catalog.Session, error)
	Close(id string) error
}

var _ Sessions = (*catalog.Registry)(nil)

// Config holds the presentation settings of the handlers.
type Config struct {
	// Title is the document title of the storefront page.
	Title string
	// HeroImageURL is the banner image of the header.
	HeroImageURL string
	// AssetsDir, when set, is served under /assets/.
	AssetsDir string
}

// DefaultHeroImageURL is the banner bundled with the binary.
const DefaultHeroImageURL = "/static/hero.svg"

// Handler serves the storefront.
type Handler struct {
	cfg      Config
	sessions Sessions
	view     *view.Renderer
}

// New returns a Handler rendering sessions with r.
func New(cfg Config, sessions Sessions, r *view.Renderer) *Handler {
	if cfg.Title == "" {
		cfg.Title = "Storefront"
	}
	if cfg.HeroImageURL == "" {
		cfg.HeroImageURL = DefaultHeroImageURL
	}
	return &Handler{cfg: cfg, sessions: sessions, view: r}
}

// Router returns the routes of the storefront. CORS applies to the JSON
// API only.
func (h *Handler) Router(cors httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.page)
	r.Route("/catalog/{sid}", func(r chi.Router) {
		r.With(requireHTMX).Get("/", h.catalogBody)
		r.With(requireHTMX).Get("/results", h.results)
		r.With(requireHTMX).Get("/more", h.more)
		r.Delete("/", h.unmount)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		if cors != nil {
			r.Use(cors)
		}
		r.Post("/", h.apiCreate)
		r.Get("/{sid}", h.apiSnapshot)
		r.Put("/{sid}/query", h.apiSetQuery)
		r.Post("/{sid}/more", h.apiLoadMore)
		r.Delete("/{sid}", h.apiClose)
	})

	r.Handle("/static/*", http.StripPrefix("/static", view.Static()))
	if h.cfg.AssetsDir != "" {
		r.Handle("/assets/*", http.StripPrefix("/assets", http.FileServer(http.Dir(h.cfg.AssetsDir))))
	}
	return r
}

// requireHTMX sends direct navigations to fragment routes back to the page.
func requireHTMX(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httpmiddleware.IsHTMX(r.Context()) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// session resolves the {sid} URL parameter.
func (h *Handler) session(r *http.Request) (*catalog.Session, error) {
	return h.sessions.Get(strings.TrimSpace(chi.URLParam(r, "sid")))
}

func basePath(id string) string {
	return "/catalog/" + id
}
