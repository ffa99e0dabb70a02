package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xenking/storefront/internal/domain/product"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(src product.Source, clock *fakeClock, maxSessions int) *Registry {
	return NewRegistry(src, RegistryConfig{
		TTL:         time.Minute,
		MaxSessions: maxSessions,
		Session:     instant(),
		Now:         clock.Now,
	})
}

func mustCreate(t *testing.T, r *Registry) *Session {
	t.Helper()

	s, err := r.Create(context.Background())
	require.NoError(t, err)
	return s
}

func TestRegistry_CreateMountsSession(t *testing.T) {
	var fetches atomic.Int32
	src := product.SourceFunc(func(context.Context) ([]product.Product, error) {
		fetches.Add(1)
		return sameCategory(14), nil
	})
	r := newTestRegistry(src, &fakeClock{now: time.Unix(0, 0)}, 0)

	s := mustCreate(t, r)
	require.NoError(t, s.Wait(context.Background()))
	assert.Len(t, s.Snapshot().Visible, PageSize)
	assert.EqualValues(t, 1, fetches.Load())

	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	// Every mount issues its own fetch.
	s2 := mustCreate(t, r)
	require.NoError(t, s2.Wait(context.Background()))
	assert.NotEqual(t, s.ID(), s2.ID())
	assert.EqualValues(t, 2, fetches.Load())
}

func TestRegistry_FetchSurvivesRequestCancel(t *testing.T) {
	r := newTestRegistry(staticSource(sameCategory(3)...), &fakeClock{now: time.Unix(0, 0)}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := r.Create(ctx)
	require.NoError(t, err)
	cancel()

	require.NoError(t, s.Wait(context.Background()))
	assert.Len(t, s.Snapshot().Visible, 3)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newTestRegistry(staticSource(), &fakeClock{}, 0)

	_, err := r.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.Close("missing"), ErrNotFound)
}

func TestRegistry_Close(t *testing.T) {
	r := newTestRegistry(staticSource(sameCategory(3)...), &fakeClock{}, 0)

	s := mustCreate(t, r)
	require.NoError(t, s.Wait(context.Background()))
	require.NoError(t, r.Close(s.ID()))

	_, err := r.Get(s.ID())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.SetQuery(Query{Search: "x"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_SweepEvictsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(staticSource(sameCategory(3)...), clock, 0)

	idle := mustCreate(t, r)
	clock.Advance(40 * time.Second)
	active := mustCreate(t, r)
	clock.Advance(30 * time.Second)

	// Touching a session keeps it alive.
	_, err := r.Get(active.ID())
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep(clock.Now()))
	_, err = r.Get(idle.ID())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(active.ID())
	require.NoError(t, err)
}

func TestRegistry_EvictsLeastRecentlyUsedOnOverflow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := newTestRegistry(staticSource(sameCategory(3)...), clock, 2)

	first := mustCreate(t, r)
	clock.Advance(time.Second)
	second := mustCreate(t, r)
	clock.Advance(time.Second)
	_, err := r.Get(first.ID())
	require.NoError(t, err)
	clock.Advance(time.Second)

	third := mustCreate(t, r)
	assert.Equal(t, 2, r.Len())

	_, err = r.Get(second.ID())
	require.ErrorIs(t, err, ErrNotFound)
	for _, s := range []*Session{first, third} {
		_, err := r.Get(s.ID())
		require.NoError(t, err)
	}
}

func TestRegistry_RunClosesSessionsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	block := make(chan struct{})
	defer close(block)
	src := product.SourceFunc(func(ctx context.Context) ([]product.Product, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-block:
			return nil, nil
		}
	})
	r := newTestRegistry(src, &fakeClock{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	s := mustCreate(t, r)
	cancel()

	require.NoError(t, <-done)
	assert.Zero(t, r.Len())
	_, err := s.SetQuery(Query{Search: "x"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestRegistry_CreateDuringShutdown(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	r := newTestRegistry(staticSource(sameCategory(3)...), &fakeClock{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*Session
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				s, err := r.Create(context.Background())
				if err != nil {
					assert.ErrorIs(t, err, ErrShutdown)
					return
				}
				mu.Lock()
				created = append(created, s)
				mu.Unlock()
			}
		}()
	}
	cancel()
	require.NoError(t, <-done)
	wg.Wait()

	// Nothing created around shutdown outlives the registry.
	assert.Zero(t, r.Len())
	for _, s := range created {
		_, err := s.SetQuery(Query{Search: "x"})
		require.ErrorIs(t, err, ErrClosed)
	}

	_, err := r.Create(context.Background())
	require.ErrorIs(t, err, ErrShutdown)
}
