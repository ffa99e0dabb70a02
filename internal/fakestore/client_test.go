package fakestore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `[
  {
    "id": 1,
    "title": "Fjallraven - Foldsack No. 1 Backpack, Fits 15 Laptops",
    "price": 109.95,
    "description": "Your perfect pack for everyday use",
    "category": "men's clothing",
    "image": "https://fakestoreapi.com/img/81fPKd-2AYL._AC_SL1500_.jpg",
    "rating": {"rate": 3.9, "count": 120}
  },
  {
    "id": "2",
    "title": "Mens Casual Premium Slim Fit T-Shirts",
    "price": null,
    "category": "men's clothing",
    "image": "https://fakestoreapi.com/img/71-3HjGNDUL.jpg",
    "rating": null
  },
  {
    "id": 3,
    "title": "Mens Cotton Jacket",
    "category": "men's clothing",
    "image": "https://fakestoreapi.com/img/71li-ujtlUL.jpg",
    "tags": ["outdoor", {"nested": true}]
  }
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: 5 * time.Second})
}

func TestDecodeProducts(t *testing.T) {
	products, err := DecodeProducts([]byte(listing))
	require.NoError(t, err)
	require.Len(t, products, 3)

	p := products[0]
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, "Fjallraven - Foldsack No. 1 Backpack, Fits 15 Laptops", p.Title)
	require.True(t, p.Price.Valid)
	assert.True(t, decimal.RequireFromString("109.95").Equal(p.Price.Decimal))
	assert.Equal(t, "men's clothing", p.Category)
	assert.Equal(t, "https://fakestoreapi.com/img/81fPKd-2AYL._AC_SL1500_.jpg", p.Image)
	require.NotNil(t, p.Rating)
	assert.True(t, decimal.RequireFromString("3.9").Equal(p.Rating.Rate))
	assert.Equal(t, 120, p.Rating.Count)

	assert.Equal(t, "2", products[1].ID)
	assert.False(t, products[1].Price.Valid)
	assert.Nil(t, products[1].Rating)

	assert.Equal(t, "3", products[2].ID)
	assert.False(t, products[2].Price.Valid)
	assert.Nil(t, products[2].Rating)
}

func TestDecodeProducts_Empty(t *testing.T) {
	products, err := DecodeProducts([]byte(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestDecodeProducts_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"object":        `{"id": 1}`,
		"truncated":     `[{"id": 1, "title": "A"`,
		"bad title":     `[{"id": 1, "title": 42}]`,
		"bad price":     `[{"id": 1, "price": "cheap"}]`,
		"bad id":        `[{"id": true}]`,
		"bad rating":    `[{"id": 1, "rating": {"rate": "x"}}]`,
		"not json":      `<html>`,
		"empty payload": ``,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeProducts([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestClient_FetchAll(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/products", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	})

	products, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "1", products[0].ID)
}

func TestClient_FetchAll_StatusError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	_, err := c.FetchAll(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "maintenance", statusErr.Body)
	assert.Equal(t, "upstream status 503: maintenance", statusErr.Error())
}

func TestClient_FetchAll_MalformedPayload(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"oops": true}`))
	})

	_, err := c.FetchAll(context.Background())
	require.ErrorContains(t, err, "decode products")
}

func TestClient_FetchAll_PayloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listing))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, MaxBodySize: int64(len(listing) - 1)})
	_, err := c.FetchAll(context.Background())
	require.ErrorIs(t, err, ErrTooLarge)
	assert.NotContains(t, err.Error(), "decode")

	// A body of exactly the limit is accepted.
	c = NewClient(Config{BaseURL: srv.URL, MaxBodySize: int64(len(listing))})
	products, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestClient_FetchAll_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.FetchAll(context.Background())
	require.Error(t, err)
}

func TestClient_FetchAll_CollapsesConcurrentCalls(t *testing.T) {
	var (
		hits    atomic.Int32
		release = make(chan struct{})
	)
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(listing))
	})

	const callers = 5
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		results = make([]int, callers)
	)
	started.Add(callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			products, err := c.FetchAll(context.Background())
			assert.NoError(t, err)
			results[i] = len(products)
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers a chance to join the in-flight request.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, []int{3, 3, 3, 3, 3}, results)
}

func TestClient_FetchAll_CallerCancel(t *testing.T) {
	release := make(chan struct{})
	c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(listing))
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.FetchAll(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Ping(t *testing.T) {
	healthy := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	require.NoError(t, healthy.Ping(context.Background()))

	broken := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	require.Error(t, broken.Ping(context.Background()))
}
