package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNopProviderNeverPanics(t *testing.T) {
	p := NewNopProvider()

	assert.NotPanics(t, func() {
		p.Counter("c").Add(context.Background(), 1, Label{Key: "k", Value: "v"})
		p.Histogram("h").Record(context.Background(), 1.5)
		p.Gauge("g").Set(context.Background(), 3.0)
	})
}

func TestOtelProviderInstrumentsDoNotPanic(t *testing.T) {
	p := NewOtelProvider("dsconn-test", "0.0.0")

	ctx := context.Background()
	counter := p.Counter("dsconn_test_counter")
	histogram := p.Histogram("dsconn_test_histogram")
	gauge := p.Gauge("dsconn_test_gauge")

	assert.NotPanics(t, func() {
		counter.Add(ctx, 1)
		histogram.Record(ctx, 2.5)
		gauge.Set(ctx, 10)
		gauge.Set(ctx, 7) // exercises the delta-from-last-value path
	})
}

func TestOtelGaugeTracksPerLabelCombination(t *testing.T) {
	p := NewOtelProvider("dsconn-test", "0.0.0")
	gauge := p.Gauge("dsconn_test_gauge_labeled").(*otelGauge)

	ctx := context.Background()
	gauge.Set(ctx, 5, Label{Key: "state", Value: "OPEN"})
	gauge.Set(ctx, 2, Label{Key: "state", Value: "CLOSED"})

	gauge.mu.Lock()
	defer gauge.mu.Unlock()
	assert.Equal(t, float64(5), gauge.last[labelKey([]Label{{Key: "state", Value: "OPEN"}})])
	assert.Equal(t, float64(2), gauge.last[labelKey([]Label{{Key: "state", Value: "CLOSED"}})])
}
