package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// Registry errors.
var (
	// ErrNotFound is returned when a session id is unknown or expired.
	ErrNotFound = errors.New("catalog session not found")
	// ErrShutdown is returned by Create once Run is closing the registry.
	ErrShutdown = errors.New("catalog registry is shutting down")
)

// Registry defaults.
const (
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 10_000
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// TTL is how long a session may stay unused before it is evicted.
	TTL time.Duration
	// MaxSessions caps the number of live sessions. The least recently
	// used session is evicted on overflow.
	MaxSessions int
	// Session is passed to every new session.
	Session Options
	// Now replaces time.Now.
	Now func() time.Time
}

type registryEntry struct {
	session  *Session
	lastSeen time.Time
}

// Registry tracks live catalog sessions by id. Creating a session mounts
// it: the initial fetch starts in the background right away.
type Registry struct {
	cfg    RegistryConfig
	source product.Source
	lg     *zap.Logger

	loads sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*registryEntry
	closed  bool
}

// NewRegistry returns a Registry whose sessions fetch from source.
func NewRegistry(source product.Source, cfg RegistryConfig) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Session = cfg.Session.withDefaults()
	return &Registry{
		cfg:     cfg,
		source:  source,
		lg:      cfg.Session.Logger,
		entries: make(map[string]*registryEntry),
	}
}

// Create mounts a new session and starts its initial fetch. The fetch is
// detached from ctx cancellation but keeps its values (logger, trace).
// Create returns ErrShutdown once Run has started closing the registry.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShutdown
	}
	s := NewSession(uuid.New().String(), r.cfg.Session)
	if len(r.entries) >= r.cfg.MaxSessions {
		r.evictOldestLocked()
	}
	r.entries[s.ID()] = &registryEntry{session: s, lastSeen: r.cfg.Now()}
	// Added under mu so Run never waits on a counter that is still growing.
	r.loads.Add(1)
	r.mu.Unlock()
	r.cfg.Session.Metrics.addSessions(ctx, 1)

	loadCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.loads.Done()
		// Failures are logged by the session itself.
		_ = s.Load(loadCtx, r.source)
	}()
	return s, nil
}

// Get returns the session with the given id and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen = r.cfg.Now()
	return e.session, nil
}

// Close ends the session with the given id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	e.session.Close()
	r.cfg.Session.Metrics.addSessions(context.Background(), -1)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes every session unused since now minus the TTL and returns
// how many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*Session

	r.mu.Lock()
	for id, e := range r.entries {
		if now.Sub(e.lastSeen) >= r.cfg.TTL {
			delete(r.entries, id)
			expired = append(expired, e.session)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if n := len(expired); n > 0 {
		r.cfg.Session.Metrics.addSessions(context.Background(), -int64(n))
		r.lg.Debug("Evicted idle catalog sessions", zap.Int("count", n))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes every remaining
// session and waits for in-flight fetches to return.
func (r *Registry) Run(ctx context.Context) error {
	interval := max(r.cfg.TTL/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			r.loads.Wait()
			return nil
		case <-ticker.C:
			r.Sweep(r.cfg.Now())
		}
	}
}

// closeAll closes every session and rejects new ones.
func (r *Registry) closeAll() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
	}
	r.cfg.Session.Metrics.addSessions(context.Background(), -int64(len(entries)))
}

// evictOldestLocked closes the least recently used session. r.mu must be
// held.
func (r *Registry) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, e := range r.entries {
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID == "" {
		return
	}
	e := r.entries[oldestID]
	delete(r.entries, oldestID)
	e.session.Close()
	r.cfg.Session.Metrics.addSessions(context.Background(), -1)
}
