// Package view renders the storefront page and its htmx fragments.
package view

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"

	"github.com/go-faster/errors"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Template names.
const (
	tmplPage        = "page"
	tmplCatalogBody = "catalog-body"
	tmplResults     = "results"
	tmplMore        = "more"
	tmplExpired     = "expired"
)

// Renderer executes the embedded templates.
type Renderer struct {
	t *template.Template
}

// New parses the embedded templates.
func New() (*Renderer, error) {
	t, err := template.New("_root").ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}
	return &Renderer{t: t}, nil
}

// Static serves the embedded stylesheet and scripts.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return http.FileServerFS(sub)
}

// Page renders the full storefront: header above catalog shell.
func (r *Renderer) Page(w io.Writer, data PageData) error {
	return r.exec(w, tmplPage, data)
}

// CatalogBody renders the toolbar and results once the catalog is loaded.
func (r *Renderer) CatalogBody(w io.Writer, data CatalogData) error {
	return r.exec(w, tmplCatalogBody, data)
}

// Results renders the product grid with its tail (sentinel or end marker).
func (r *Renderer) Results(w io.Writer, data CatalogData) error {
	return r.exec(w, tmplResults, data)
}

// More renders cards appended by a load-more step followed by a new tail.
func (r *Renderer) More(w io.Writer, data CatalogData) error {
	return r.exec(w, tmplMore, data)
}

// Expired renders the notice shown for an unknown or evicted session.
func (r *Renderer) Expired(w io.Writer) error {
	return r.exec(w, tmplExpired, nil)
}

func (r *Renderer) exec(w io.Writer, name string, data any) error {
	if err := r.t.ExecuteTemplate(w, name, data); err != nil {
		return errors.Wrapf(err, "render %s", name)
	}
	return nil
}
