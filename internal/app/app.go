package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/fakestore"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/view"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// goroutineLimit is the liveness threshold of the goroutine check.
const goroutineLimit = 50_000

// Run creates all dependencies, starts the HTTP server and the session
// sweeper, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	metrics, err := catalog.NewMetrics(m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create catalog metrics")
	}

	// Upstream listing client.
	client := fakestore.NewClient(fakestore.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		Timeout:        cfg.Upstream.Timeout,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})

	// Catalog sessions. A configured zero delay means no delay at all.
	loadDelay := cfg.Catalog.LoadDelay
	if loadDelay == 0 {
		loadDelay = -1
	}
	registry := catalog.NewRegistry(client, catalog.RegistryConfig{
		TTL:         cfg.Catalog.SessionTTL,
		MaxSessions: cfg.Catalog.MaxSessions,
		Session: catalog.Options{
			LoadDelay: loadDelay,
			Logger:    lg.Named("catalog"),
			Metrics:   metrics,
		},
	})

	renderer, err := view.New()
	if err != nil {
		return errors.Wrap(err, "create renderer")
	}

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	// The upstream is a dependency, not a readiness gate: without it the
	// storefront still renders an empty catalog.
	healthSvc.Register(health.Dependency, "upstream", health.PingCheck(client), health.CheckOptions{
		Timeout: cfg.Upstream.Timeout,
	})
	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(goroutineLimit), health.CheckOptions{})
	healthSvc.Register(health.Liveness, "gc_pause", health.GCMaxPauseCheck(time.Second), health.CheckOptions{})
	healthSvc.Start(ctx, cfg.Upstream.ProbeInterval)
	healthSvc.SetReady(true)

	// Routes: storefront, JSON API and probes on one server.
	h := handler.New(handler.Config{
		Title:        cfg.Title,
		HeroImageURL: cfg.HeroImageURL,
		AssetsDir:    cfg.AssetsDir,
	}, registry, renderer)
	router := h.Router(httpmiddleware.CORS(httpmiddleware.CORSConfig{
		AllowOrigins:     cfg.CORS.Origins,
		AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Location"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           86400,
	}))
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Get("/statusz", healthSvc.DependencyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Fragments wait for the initial upstream fetch.
		WriteTimeout:   cfg.Upstream.Timeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.HTMX(),
			httpmiddleware.Instrument("storefront", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   unlimited,
			}),
			httpmiddleware.Gzip(pgzip.DefaultCompression),
		),
	}

	// The registry outlives the server so in-flight requests can finish
	// with their sessions; it is stopped once the server has drained.
	registryCtx, stopRegistry := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRegistry()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return registry.Run(registryCtx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		defer stopRegistry()

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server",
			zap.Duration("timeout", cfg.Graceful.ShutdownTimeout),
			zap.Int("sessions", registry.Len()),
		)
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}

// unlimited exempts probes and static files from rate limiting.
func unlimited(r *http.Request) bool {
	switch p := r.URL.Path; {
	case p == "/livez", p == "/readyz", p == "/statusz":
		return true
	case strings.HasPrefix(p, "/static/"), strings.HasPrefix(p, "/assets/"):
		return true
	default:
		return false
	}
}
