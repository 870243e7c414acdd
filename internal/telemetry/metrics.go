package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "swayback"

// Metrics holds all metric instruments. All counters are cumulative and
// safe for concurrent use.
type Metrics struct {
	// Restores partitioned by outcome: converged, exhausted, mismatched,
	// error.
	Restores metric.Int64Counter
	// Saves counts layout snapshots written to the database.
	Saves metric.Int64Counter
	// Commands counts manager commands issued by the planner.
	Commands metric.Int64Counter
	// RestoreIterations is the per-restore command count distribution.
	RestoreIterations metric.Int64Histogram
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Restores, err = meter.Int64Counter("swayback.restores",
		metric.WithDescription("Layout restores partitioned by outcome"))
	if err != nil {
		return nil, err
	}

	m.Saves, err = meter.Int64Counter("swayback.saves",
		metric.WithDescription("Layout snapshots written to the database"))
	if err != nil {
		return nil, err
	}

	m.Commands, err = meter.Int64Counter("swayback.commands",
		metric.WithDescription("Manager commands issued during restores"))
	if err != nil {
		return nil, err
	}

	m.RestoreIterations, err = meter.Int64Histogram("swayback.restore.iterations",
		metric.WithDescription("Commands needed per restore"),
		metric.WithUnit("{command}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRestore records one finished restore with its outcome.
func (m *Metrics) RecordRestore(ctx context.Context, outcome string, iterations int) {
	if m == nil {
		return
	}
	m.Restores.Add(ctx, 1, metric.WithAttributes(
		attribute.String("restore.outcome", outcome),
	))
	m.Commands.Add(ctx, int64(iterations))
	m.RestoreIterations.Record(ctx, int64(iterations))
}

// RecordSave records one snapshot write.
func (m *Metrics) RecordSave(ctx context.Context) {
	if m == nil {
		return
	}
	m.Saves.Add(ctx, 1)
}
