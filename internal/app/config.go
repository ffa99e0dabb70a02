package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"HTTP listen address"`
	Title        string `default:"Storefront" usage:"Document title of the storefront page"`
	HeroImageURL string `default:"/static/hero.svg" usage:"Banner image of the header" flag:"hero-image-url"`
	AssetsDir    string `default:"" usage:"Directory served under /assets/ (e.g. a custom hero image)" flag:"assets-dir"`
	Upstream     UpstreamConfig
	Catalog      CatalogConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// UpstreamConfig points at the product listing API.
type UpstreamConfig struct {
	BaseURL       string        `default:"https://fakestoreapi.com" usage:"Base URL of the FakeStore-compatible API" flag:"upstream-url"`
	Timeout       time.Duration `default:"10s" usage:"Upstream request timeout"`
	ProbeInterval time.Duration `default:"30s" usage:"Interval of the upstream readiness probe"`
}

// CatalogConfig controls catalog sessions.
type CatalogConfig struct {
	LoadDelay   time.Duration `default:"600ms" usage:"Simulated latency of a load-more step" flag:"load-delay"`
	SessionTTL  time.Duration `default:"30m" usage:"Idle time after which a catalog session is evicted" flag:"session-ttl"`
	MaxSessions int           `default:"10000" usage:"Maximum number of live catalog sessions" flag:"max-sessions"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers of the JSON API.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and flags, then applies platform defaults and validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the PORT variable set by hosting platforms
// (Railway, Render, etc.) to the listen address unless one was configured.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("listen address is required")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("upstream base URL is required: set STOREFRONT_UPSTREAM_BASE_URL")
	}
	for name, d := range map[string]time.Duration{
		"upstream timeout":        c.Upstream.Timeout,
		"upstream probe interval": c.Upstream.ProbeInterval,
		"session TTL":             c.Catalog.SessionTTL,
		"shutdown timeout":        c.Graceful.ShutdownTimeout,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Catalog.LoadDelay < 0 {
		return errors.Errorf("load delay must not be negative, got %s", c.Catalog.LoadDelay)
	}
	if c.Catalog.MaxSessions <= 0 {
		return errors.Errorf("max sessions must be positive, got %d", c.Catalog.MaxSessions)
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}
