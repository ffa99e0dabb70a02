package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xenking/storefront/internal/domain/catalog"

// Metrics holds the OpenTelemetry instruments of the catalog. A nil
// *Metrics records nothing.
type Metrics struct {
	sessions      metric.Int64UpDownCounter
	fetchDuration metric.Float64Histogram
	loadMore      metric.Int64Counter
	revealed      metric.Int64Counter
}

// NewMetrics registers the catalog instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.sessions, err = meter.Int64UpDownCounter("catalog.sessions.active",
		metric.WithDescription("Number of live catalog sessions"),
	); err != nil {
		return nil, errors.Wrap(err, "sessions counter")
	}
	if m.fetchDuration, err = meter.Float64Histogram("catalog.fetch.duration",
		metric.WithDescription("Duration of upstream product fetches"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "fetch histogram")
	}
	if m.loadMore, err = meter.Int64Counter("catalog.load_more.count",
		metric.WithDescription("Completed load-more steps"),
	); err != nil {
		return nil, errors.Wrap(err, "load more counter")
	}
	if m.revealed, err = meter.Int64Counter("catalog.products.revealed",
		metric.WithDescription("Products appended by load-more steps"),
	); err != nil {
		return nil, errors.Wrap(err, "revealed counter")
	}
	return &m, nil
}

func (m *Metrics) recordFetch(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.Bool("error", err != nil)),
	)
}

func (m *Metrics) recordLoadMore(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.loadMore.Add(ctx, 1)
	m.revealed.Add(ctx, int64(n))
}

func (m *Metrics) addSessions(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, delta)
}
