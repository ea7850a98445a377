package metrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilCounter is returned when a counter builder has no instrument.
	ErrNilCounter = errors.New("counter instrument is nil")
	// ErrNilHistogram is returned when a histogram builder has no instrument.
	ErrNilHistogram = errors.New("histogram instrument is nil")
)

// CounterBuilder records counter increments with an immutable attribute set.
type CounterBuilder struct {
	counter metric.Int64Counter
	name    string
	attrs   []attribute.KeyValue
}

// WithLabels returns a copy of the builder with string labels appended.
func (c *CounterBuilder) WithLabels(labels map[string]string) *CounterBuilder {
	return &CounterBuilder{
		counter: c.counter,
		name:    c.name,
		attrs:   appendLabels(c.attrs, labels),
	}
}

// WithAttributes returns a copy of the builder with attrs appended.
func (c *CounterBuilder) WithAttributes(attrs ...attribute.KeyValue) *CounterBuilder {
	return &CounterBuilder{
		counter: c.counter,
		name:    c.name,
		attrs:   appendAttrs(c.attrs, attrs),
	}
}

// Add records a counter increment.
func (c *CounterBuilder) Add(ctx context.Context, value int64) error {
	if c.counter == nil {
		return ErrNilCounter
	}

	c.counter.Add(ctx, value, metric.WithAttributes(c.attrs...))

	return nil
}

// AddOne increments the counter by one.
func (c *CounterBuilder) AddOne(ctx context.Context) error {
	return c.Add(ctx, 1)
}

// HistogramBuilder records histogram values with an immutable attribute set.
type HistogramBuilder struct {
	histogram metric.Int64Histogram
	name      string
	attrs     []attribute.KeyValue
}

// WithLabels returns a copy of the builder with string labels appended.
func (h *HistogramBuilder) WithLabels(labels map[string]string) *HistogramBuilder {
	return &HistogramBuilder{
		histogram: h.histogram,
		name:      h.name,
		attrs:     appendLabels(h.attrs, labels),
	}
}

// WithAttributes returns a copy of the builder with attrs appended.
func (h *HistogramBuilder) WithAttributes(attrs ...attribute.KeyValue) *HistogramBuilder {
	return &HistogramBuilder{
		histogram: h.histogram,
		name:      h.name,
		attrs:     appendAttrs(h.attrs, attrs),
	}
}

// Record records a histogram value.
func (h *HistogramBuilder) Record(ctx context.Context, value int64) error {
	if h.histogram == nil {
		return ErrNilHistogram
	}

	h.histogram.Record(ctx, value, metric.WithAttributes(h.attrs...))

	return nil
}

func appendLabels(base []attribute.KeyValue, labels map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(base)+len(labels))
	out = append(out, base...)

	for key, value := range labels {
		out = append(out, attribute.String(key, value))
	}

	return out
}

func appendAttrs(base, attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(base)+len(attrs))
	out = append(out, base...)

	return append(out, attrs...)
}
