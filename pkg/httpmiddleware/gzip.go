package httpmiddleware

import (
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/pgzip"
)

// compressible lists the media types worth compressing.
var compressible = map[string]struct{}{
	"text/html":              {},
	"text/css":               {},
	"text/plain":             {},
	"text/javascript":        {},
	"application/javascript": {},
	"application/json":       {},
	"image/svg+xml":          {},
}

// Gzip compresses text responses for clients that accept gzip. The decision
// is made on the first body write, so empty responses such as 204 are left
// alone.
func Gzip(level int) Middleware {
	pool := sync.Pool{
		New: func() any {
			gz, err := pgzip.NewWriterLevel(nil, level)
			if err != nil {
				gz, _ = pgzip.NewWriterLevel(nil, pgzip.DefaultCompression)
			}
			return gz
		},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")
			if r.Method == http.MethodHead || !acceptsGzip(r) {
				next.ServeHTTP(w, r)
				return
			}
			gw := &gzipWriter{ResponseWriter: w, pool: &pool}
			defer gw.finish()
			next.ServeHTTP(gw, r)
		})
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			return strings.ReplaceAll(params, " ", "") != "q=0"
		}
	}
	return false
}

type gzipWriter struct {
	http.ResponseWriter
	pool *sync.Pool

	status  int
	started bool
	gz      *pgzip.Writer
}

func (g *gzipWriter) WriteHeader(status int) {
	if g.started || g.status != 0 {
		return
	}
	g.status = status
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	if !g.started {
		g.start(p)
	}
	if g.gz != nil {
		return g.gz.Write(p)
	}
	return g.ResponseWriter.Write(p)
}

// start commits the headers, switching to compression when the response
// is a compressible type with a body.
func (g *gzipWriter) start(first []byte) {
	g.started = true
	status := g.status
	if status == 0 {
		status = http.StatusOK
	}
	h := g.Header()
	if h.Get("Content-Type") == "" && len(first) > 0 {
		h.Set("Content-Type", http.DetectContentType(first))
	}
	if len(first) > 0 && h.Get("Content-Encoding") == "" && isCompressible(h.Get("Content-Type")) &&
		status != http.StatusNoContent && status != http.StatusNotModified {
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
		gz := g.pool.Get().(*pgzip.Writer)
		gz.Reset(g.ResponseWriter)
		g.gz = gz
	}
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipWriter) finish() {
	if !g.started {
		if g.status == 0 {
			return
		}
		g.start(nil)
	}
	if g.gz != nil {
		_ = g.gz.Close()
		g.pool.Put(g.gz)
		g.gz = nil
	}
}

// Flush sends buffered compressed data to the client.
func (g *gzipWriter) Flush() {
	if g.gz != nil {
		_ = g.gz.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (g *gzipWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

func isCompressible(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := compressible[mt]
	return ok
}
