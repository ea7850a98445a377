package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MetricsFactory lazily creates and caches metric instruments.
type MetricsFactory struct {
	meter      metric.Meter
	counters   sync.Map // string -> metric.Int64Counter
	histograms sync.Map // string -> metric.Int64Histogram
	logger     log.Logger
}

// ErrNilMeter indicates that a nil OTEL meter was provided.
var ErrNilMeter = errors.New("metric meter cannot be nil")

// Metric describes an instrument.
type Metric struct {
	Name        string
	Description string
	Unit        string
	// Buckets are explicit histogram boundaries; ignored for counters.
	Buckets []float64
}

// DefaultLatencyBuckets are millisecond boundaries for database round trips.
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Catalog instruments.
var (
	// MetricCatalogOperationDuration records how long each catalog operation took.
	MetricCatalogOperationDuration = Metric{
		Name:        "catalog_operation_duration_ms",
		Unit:        "ms",
		Description: "Duration of catalog operations against the books collection.",
		Buckets:     DefaultLatencyBuckets,
	}

	// MetricCatalogOperationErrors counts catalog operations that returned an error.
	MetricCatalogOperationErrors = Metric{
		Name:        "catalog_operation_errors_total",
		Unit:        "1",
		Description: "Number of catalog operations that failed.",
	}

	// MetricCatalogIndexConflicts counts index creations that hit an existing equivalent index.
	MetricCatalogIndexConflicts = Metric{
		Name:        "catalog_index_conflicts_total",
		Unit:        "1",
		Description: "Number of index creations tolerated because the index already existed.",
	}
)

// NewMetricsFactory creates a MetricsFactory backed by meter.
func NewMetricsFactory(meter metric.Meter, logger log.Logger) (*MetricsFactory, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}

	return &MetricsFactory{
		meter:  meter,
		logger: logger,
	}, nil
}

// NewNopFactory returns a MetricsFactory backed by the OTEL no-op meter.
func NewNopFactory() *MetricsFactory {
	return &MetricsFactory{
		meter:  noop.NewMeterProvider().Meter("nop"),
		logger: log.NewNop(),
	}
}

// Counter creates or retrieves a counter and returns a builder for it.
func (f *MetricsFactory) Counter(m Metric) (*CounterBuilder, error) {
	counter, err := f.getOrCreateCounter(m)
	if err != nil {
		return nil, err
	}

	return &CounterBuilder{counter: counter, name: m.Name}, nil
}

// Histogram creates or retrieves a histogram and returns a builder for it.
// Metrics without buckets get DefaultLatencyBuckets.
func (f *MetricsFactory) Histogram(m Metric) (*HistogramBuilder, error) {
	if m.Buckets == nil {
		m.Buckets = DefaultLatencyBuckets
	}

	histogram, err := f.getOrCreateHistogram(m)
	if err != nil {
		return nil, err
	}

	return &HistogramBuilder{histogram: histogram, name: m.Name}, nil
}

func (f *MetricsFactory) getOrCreateCounter(m Metric) (metric.Int64Counter, error) {
	if cached, exists := f.counters.Load(m.Name); exists {
		if c, ok := cached.(metric.Int64Counter); ok {
			return c, nil
		}

		return nil, fmt.Errorf("counter cache contains invalid type for %q", m.Name)
	}

	var opts []metric.Int64CounterOption
	if m.Description != "" {
		opts = append(opts, metric.WithDescription(m.Description))
	}

	if m.Unit != "" {
		opts = append(opts, metric.WithUnit(m.Unit))
	}

	counter, err := f.meter.Int64Counter(m.Name, opts...)
	if err != nil {
		f.logCreateFailure("counter", m.Name, err)

		return nil, fmt.Errorf("create counter %q: %w", m.Name, err)
	}

	// Another goroutine may have stored one first; keep theirs.
	if actual, loaded := f.counters.LoadOrStore(m.Name, counter); loaded {
		if c, ok := actual.(metric.Int64Counter); ok {
			return c, nil
		}

		return nil, fmt.Errorf("counter cache contains invalid type for %q", m.Name)
	}

	return counter, nil
}

// getOrCreateHistogram keys the cache by name and bucket layout, so the same
// name with different buckets yields distinct instruments.
func (f *MetricsFactory) getOrCreateHistogram(m Metric) (metric.Int64Histogram, error) {
	cacheKey := histogramCacheKey(m.Name, m.Buckets)

	if cached, exists := f.histograms.Load(cacheKey); exists {
		if h, ok := cached.(metric.Int64Histogram); ok {
			return h, nil
		}

		return nil, fmt.Errorf("histogram cache contains invalid type for %q", cacheKey)
	}

	var opts []metric.Int64HistogramOption
	if m.Description != "" {
		opts = append(opts, metric.WithDescription(m.Description))
	}

	if m.Unit != "" {
		opts = append(opts, metric.WithUnit(m.Unit))
	}

	if m.Buckets != nil {
		opts = append(opts, metric.WithExplicitBucketBoundaries(m.Buckets...))
	}

	histogram, err := f.meter.Int64Histogram(m.Name, opts...)
	if err != nil {
		f.logCreateFailure("histogram", m.Name, err)

		return nil, fmt.Errorf("create histogram %q: %w", m.Name, err)
	}

	if actual, loaded := f.histograms.LoadOrStore(cacheKey, histogram); loaded {
		if h, ok := actual.(metric.Int64Histogram); ok {
			return h, nil
		}

		return nil, fmt.Errorf("histogram cache contains invalid type for %q", cacheKey)
	}

	return histogram, nil
}

func (f *MetricsFactory) logCreateFailure(kind, name string, err error) {
	if f.logger == nil {
		return
	}

	f.logger.Log(context.Background(), log.LevelError, "failed to create "+kind+" metric",
		log.String("metric_name", name), log.Err(err))
}

func histogramCacheKey(name string, buckets []float64) string {
	if len(buckets) == 0 {
		return name
	}

	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	parts := make([]string, len(sorted))
	for i, b := range sorted {
		parts[i] = strconv.FormatFloat(b, 'g', -1, 64)
	}

	return name + ":" + strings.Join(parts, ",")
}
