// Package fakestore reads the product listing from a FakeStore-compatible
// REST API.
package fakestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultBaseURL is the public FakeStore API.
const DefaultBaseURL = "https://fakestoreapi.com"

const (
	defaultTimeout = 10 * time.Second
	// DefaultMaxBodySize bounds the listing payload.
	DefaultMaxBodySize = 8 << 20
)

var _ product.Source = (*Client)(nil)

// ErrTooLarge is returned when the listing exceeds the configured body size.
var ErrTooLarge = errors.New("upstream payload too large")

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Transport overrides the base HTTP transport.
	Transport http.RoundTripper
	// MaxBodySize bounds the response body. Defaults to DefaultMaxBodySize.
	MaxBodySize int64
}

// Client fetches the full product collection with one GET and no
// parameters. Concurrent fetches share a single upstream request.
type Client struct {
	baseURL string
	maxBody int64
	http    *http.Client
	group   singleflight.Group
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	var opts []otelhttp.Option
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}

	return &Client{
		baseURL: baseURL,
		maxBody: maxBody,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base, opts...),
		},
	}
}

// FetchAll returns every product of the upstream listing in upstream
// order. Callers get their own slice and may modify it.
func (c *Client) FetchAll(ctx context.Context) ([]product.Product, error) {
	ch := c.group.DoChan("products", func() (any, error) {
		// Shared by every waiting caller, so not bound to any one of them.
		return c.fetch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]product.Product)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetch(ctx context.Context) ([]product.Product, error) {
	body, err := c.get(ctx, "/products")
	if err != nil {
		return nil, err
	}
	products, err := DecodeProducts(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return products, nil
}

// Ping checks that the listing endpoint answers with a 2xx status.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/products")
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	// One byte past the limit tells a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body[:min(len(body), 256)])),
		}
	}
	if int64(len(body)) > c.maxBody {
		return nil, errors.Wrapf(ErrTooLarge, "limit %d bytes", c.maxBody)
	}
	return body, nil
}
