// Package health serves liveness and readiness probes.
//
// Every registered check runs in its own goroutine at a fixed interval.
// A check flips to unhealthy only after FailureThreshold consecutive
// failures and back after SuccessThreshold consecutive passes, so a single
// slow upstream answer does not take the service out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// CheckFunc reports the health of one dependency. A nil error is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

// Probe kinds. Dependency checks watch collaborators the service keeps
// serving without; they are reported but never fail a probe.
const (
	Liveness Kind = iota
	Readiness
	Dependency
)

func (k Kind) String() string {
	switch k {
	case Readiness:
		return "readiness"
	case Dependency:
		return "dependency"
	default:
		return "liveness"
	}
}

// CheckOptions tunes a registered check.
type CheckOptions struct {
	// Timeout bounds a single run. Defaults to one second.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that mark the
	// check unhealthy. Defaults to 3.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive passes that mark the
	// check healthy again. Defaults to 1.
	SuccessThreshold int
	// StartUnhealthy keeps the check failing until it first passes.
	StartUnhealthy bool
}

func (o CheckOptions) withDefaults() CheckOptions {
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 1
	}
	return o
}

// check is one registered probe. run is only ever called from the check's
// own goroutine, so the counters are unsynchronized; healthy and lastErr
// are read by HTTP handlers.
type check struct {
	name string
	kind Kind
	fn   CheckFunc
	opts CheckOptions

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and reports whether its health flipped.
func (c *check) run(ctx context.Context) (changed bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	err := c.fn(ctx)
	c.lastErr.Store(&err)

	was := c.healthy.Load()
	if err != nil {
		c.oks = 0
		c.fails++
		if c.fails >= c.opts.FailureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.fails = 0
		c.oks++
		if c.oks >= c.opts.SuccessThreshold {
			c.healthy.Store(true)
		}
	}
	return was != c.healthy.Load()
}

// Health aggregates the registered checks of a service.
type Health struct {
	lg    *zap.Logger
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a Health that is not ready until SetReady(true).
func New(lg *zap.Logger) *Health {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Health{lg: lg}
}

// Register adds a check to the probe of the given kind. Checks should be
// registered before Start.
func (h *Health) Register(kind Kind, name string, fn CheckFunc, opts CheckOptions) {
	c := &check{
		name: name,
		kind: kind,
		fn:   fn,
		opts: opts.withDefaults(),
	}
	c.healthy.Store(!c.opts.StartUnhealthy)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// Start runs every registered check immediately and then at interval until
// Stop is called or ctx is done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.loop(ctx, c, interval)
		}()
	}
}

func (h *Health) loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if c.run(ctx) && ctx.Err() == nil {
			h.lg.Info("Health check changed",
				zap.String("check", c.name),
				zap.Stringer("kind", c.kind),
				zap.Bool("healthy", c.healthy.Load()),
				zap.NamedError("last_error", c.err()),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the check goroutines and waits for them. It is safe to call
// more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// SetReady marks the service as ready or draining.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.Report(Readiness).OK()
}

// Report is the state of one probe: failing checks by name.
type Report struct {
	Failures map[string]string
}

// OK reports whether no check is failing.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Report collects the failing checks of the probe of the given kind. It
// reads the result of the last run and never executes checks itself.
func (h *Health) Report(kind Kind) Report {
	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	r := Report{Failures: map[string]string{}}
	for _, c := range checks {
		if c.kind != kind || c.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if err := c.err(); err != nil {
			msg = err.Error()
		}
		r.Failures[c.name] = msg
	}
	if kind == Readiness && !h.ready.Load() {
		r.Failures["_readiness"] = "service is not ready"
	}
	return r
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, h.Report(Readiness))
}

// DependencyEndpoint serves the dependency checks. It always answers 200,
// with status "degraded" while a dependency is failing.
func (h *Health) DependencyEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeReportStatus(w, h.Report(Dependency), http.StatusOK, "degraded")
}

// writeReport answers 200 {"status":"ok"} or 503 with the failing checks.
func writeReport(w http.ResponseWriter, r Report) {
	writeReportStatus(w, r, http.StatusServiceUnavailable, "unhealthy")
}

func writeReportStatus(w http.ResponseWriter, r Report, failStatus int, failLabel string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if r.OK() {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = failStatus
		e.Field("status", func(e *jx.Encoder) { e.Str(failLabel) })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(r.Failures))
				for name := range r.Failures {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(r.Failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; a failed write means the client left.
	_, _ = e.WriteTo(w)
}
