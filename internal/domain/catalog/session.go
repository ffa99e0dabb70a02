package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultLoadDelay is the simulated latency of a load-more step.
const DefaultLoadDelay = 600 * time.Millisecond

// Sentinel errors returned by Session operations.
var (
	ErrClosed        = errors.New("catalog session closed")
	ErrBusy          = errors.New("catalog session is loading")
	ErrNothingToLoad = errors.New("no more products")
	ErrCanceled      = errors.New("load canceled")
)

// State is the lifecycle state of a catalog session.
type State int

// Session states.
const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateLoadingMore
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loading_more"
	default:
		return "unknown"
	}
}

// Options configures a Session.
type Options struct {
	// LoadDelay is the simulated latency of a load-more step. Zero means
	// DefaultLoadDelay; a negative value disables the delay.
	LoadDelay time.Duration
	// After replaces time.After for the load-more timer.
	After func(time.Duration) <-chan time.Time
	// Logger receives fetch failures. Defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics records fetch and load-more activity. May be nil.
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.LoadDelay == 0 {
		o.LoadDelay = DefaultLoadDelay
	}
	if o.After == nil {
		o.After = time.After
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Session holds the state of one mounted catalog: the full product
// collection fetched once, the active query and the revealed cursor. The
// filtered-and-sorted view is never stored; it is derived from the full
// collection whenever it is needed.
//
// Load-more steps are single-flight per session and run as cancellable
// tasks bound to the session lifetime. Changing the query or closing the
// session cancels the outstanding task.
type Session struct {
	id   string
	opts Options
	lg   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loaded chan struct{}

	mu         sync.Mutex
	state      State
	all        []product.Product
	categories []string
	query      Query
	cursor     int
	fetchErr   error
	gen        uint64
	task       *loadTask
	closed     bool
}

// loadTask is one in-flight load-more step.
type loadTask struct {
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	appended []product.Product
	err      error
}

// NewSession returns an idle session identified by id.
func NewSession(id string, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		opts:       opts,
		lg:         opts.Logger.With(zap.String("session_id", id)),
		ctx:        ctx,
		cancel:     cancel,
		loaded:     make(chan struct{}),
		query:      DefaultQuery(),
		categories: []string{AllCategories},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Load fetches the full collection from src. It may be called once; the
// session moves Idle -> Loading -> Ready. A fetch failure is logged and
// leaves the session Ready with an empty collection; the error is returned
// and kept in the snapshot, but no retry is attempted.
func (s *Session) Load(ctx context.Context, src product.Source) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = StateLoading
	s.mu.Unlock()
	defer close(s.loaded)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	start := time.Now()
	products, err := src.FetchAll(ctx)
	s.opts.Metrics.recordFetch(ctx, time.Since(start), err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		err = errors.Wrap(err, "fetch products")
		if !s.closed {
			s.lg.Error("Catalog fetch failed", zap.Error(err))
		}
		s.fetchErr = err
		products = nil
	}
	s.all = products
	s.categories = Categories(products)
	s.cursor = firstPage(len(Derive(s.all, s.query)))
	s.state = StateReady

	if s.closed {
		return ErrClosed
	}
	return err
}

// Wait blocks until the initial fetch has finished, the session is closed
// or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.loaded:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetQuery replaces the active query. When the query changes, the
// outstanding load-more task is cancelled and the revealed cursor resets to
// one page of the view derived from the full collection. Setting an
// identical query leaves the session untouched.
func (s *Session) SetQuery(q Query) (Snapshot, error) {
	q = q.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrClosed
	}
	if q == s.query {
		return s.snapshotLocked(), nil
	}

	s.cancelTaskLocked()
	s.query = q
	s.gen++
	if s.state == StateLoadingMore {
		s.state = StateReady
	}
	if s.state == StateReady {
		s.cursor = firstPage(len(Derive(s.all, s.query)))
	}
	return s.snapshotLocked(), nil
}

// LoadMore reveals the next page after the configured delay and returns
// the appended products. It returns ErrNothingToLoad when everything is
// already revealed and ErrBusy when the session is still fetching or
// another load-more is in flight. If ctx is done first, LoadMore returns
// ctx.Err() while the step itself keeps running.
func (s *Session) LoadMore(ctx context.Context) ([]product.Product, error) {
	return s.loadMore(ctx, nil)
}

// Position is the revealed state a client renders: the query generation
// of its grid and the number of products it shows.
type Position struct {
	Gen      uint64
	Revealed int
}

// LoadMoreAt is LoadMore for a client rendering pos. A position from an
// older query, or one ahead of the session, returns ErrCanceled. A client
// behind the session receives the products it is missing without a new
// step and without the delay.
func (s *Session) LoadMoreAt(ctx context.Context, pos Position) ([]product.Product, error) {
	return s.loadMore(ctx, &pos)
}

func (s *Session) loadMore(ctx context.Context, pos *Position) ([]product.Product, error) {
	t, missing, err := s.startLoadMore(pos)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return missing, nil
	}
	select {
	case <-t.done:
		return t.appended, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) startLoadMore(pos *Position) (*loadTask, []product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrClosed
	}
	if pos != nil {
		if pos.Gen != s.gen || pos.Revealed < 0 || pos.Revealed > s.cursor {
			return nil, nil, ErrCanceled
		}
		if pos.Revealed < s.cursor {
			derived := Derive(s.all, s.query)
			return nil, slices.Clone(derived[pos.Revealed:min(s.cursor, len(derived))]), nil
		}
	}
	if s.state != StateReady {
		return nil, nil, ErrBusy
	}
	if s.cursor >= len(Derive(s.all, s.query)) {
		return nil, nil, ErrNothingToLoad
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &loadTask{
		gen:    s.gen,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.task = t
	s.state = StateLoadingMore
	go s.runLoadMore(ctx, t)
	return t, nil, nil
}

func (s *Session) runLoadMore(ctx context.Context, t *loadTask) {
	defer close(t.done)
	defer t.cancel()

	if s.opts.LoadDelay > 0 {
		select {
		case <-s.opts.After(s.opts.LoadDelay):
		case <-ctx.Done():
			t.err = ErrCanceled
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.task != t || s.gen != t.gen {
		t.err = ErrCanceled
		return
	}

	derived := Derive(s.all, s.query)
	next := nextPage(s.cursor, len(derived))
	t.appended = slices.Clone(derived[s.cursor:next])
	s.cursor = next
	s.state = StateReady
	s.task = nil
	s.opts.Metrics.recordLoadMore(s.ctx, len(t.appended))
}

func (s *Session) cancelTaskLocked() {
	if s.task != nil {
		s.task.cancel()
		s.task = nil
	}
}

// Close ends the session and cancels any outstanding work. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelTaskLocked()
	s.mu.Unlock()

	s.cancel()
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	derived := Derive(s.all, s.query)
	return Snapshot{
		ID:         s.id,
		State:      s.state,
		Query:      s.query,
		Gen:        s.gen,
		Categories: slices.Clone(s.categories),
		Visible:    derived[:min(s.cursor, len(derived))],
		Total:      len(derived),
		FetchErr:   s.fetchErr,
	}
}

// Snapshot is a point-in-time view of a session for rendering.
type Snapshot struct {
	ID    string
	State State
	Query Query
	// Gen changes whenever the query changes.
	Gen        uint64
	Categories []string
	// Visible is the revealed prefix of the filtered-and-sorted collection.
	Visible []product.Product
	// Total is the length of the filtered-and-sorted collection.
	Total    int
	FetchErr error
}

// Loading reports whether a fetch or load-more step is in flight.
func (s Snapshot) Loading() bool {
	return s.State == StateLoading || s.State == StateLoadingMore
}

// EndOfResults reports whether every matching product is revealed and no
// load is in flight.
func (s Snapshot) EndOfResults() bool {
	return s.State == StateReady && len(s.Visible) == s.Total
}
