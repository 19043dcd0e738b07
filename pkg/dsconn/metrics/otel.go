package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// OtelProvider implements Provider on top of the global OpenTelemetry meter. It only
// wires up the metrics half of the API; tracing is out of scope for the Connection Core
// and Record Engine.
type OtelProvider struct {
	meter otelmetric.Meter
}

// NewOtelProvider creates a Provider backed by the global OpenTelemetry meter registered
// under serviceName/serviceVersion.
func NewOtelProvider(serviceName, serviceVersion string) *OtelProvider {
	return &OtelProvider{
		meter: otel.Meter(serviceName, otelmetric.WithInstrumentationVersion(serviceVersion)),
	}
}

func (p *OtelProvider) Counter(name string) Counter {
	counter, _ := p.meter.Int64Counter(name)
	return &otelCounter{counter: counter}
}

func (p *OtelProvider) Histogram(name string) Histogram {
	histogram, _ := p.meter.Float64Histogram(name)
	return &otelHistogram{histogram: histogram}
}

func (p *OtelProvider) Gauge(name string) Gauge {
	gauge, _ := p.meter.Float64UpDownCounter(name)
	return &otelGauge{gauge: gauge}
}

type otelCounter struct {
	counter otelmetric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, labels ...Label) {
	c.counter.Add(ctx, value, otelmetric.WithAttributes(toAttributes(labels)...))
}

type otelHistogram struct {
	histogram otelmetric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, labels ...Label) {
	h.histogram.Record(ctx, value, otelmetric.WithAttributes(toAttributes(labels)...))
}

// otelGauge uses a Float64UpDownCounter because it is an additive instrument, not a
// settable one: Set tracks the last value recorded per label set and records only the
// delta, so the exported level converges on the value passed in rather than accumulating.
type otelGauge struct {
	mu    sync.Mutex
	gauge otelmetric.Float64UpDownCounter
	last  map[string]float64
}

func (g *otelGauge) Set(ctx context.Context, value float64, labels ...Label) {
	key := labelKey(labels)
	g.mu.Lock()
	if g.last == nil {
		g.last = make(map[string]float64)
	}
	delta := value - g.last[key]
	g.last[key] = value
	g.mu.Unlock()

	g.gauge.Add(ctx, delta, otelmetric.WithAttributes(toAttributes(labels)...))
}

func toAttributes(labels []Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		attrs[i] = attribute.String(l.Key, l.Value)
	}
	return attrs
}

func labelKey(labels []Label) string {
	key := ""
	for _, l := range labels {
		key += l.Key + "=" + l.Value + ";"
	}
	return key
}
