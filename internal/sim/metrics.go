package sim

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/heatbox/extension/internal/sim"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	spawned      metric.Int64Counter
	orphaned     metric.Int64Counter
	gaveUp       metric.Int64Counter
	burning      metric.Int64UpDownCounter
}

func newMetrics() (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)

	if out.ticks, err = m.Int64Counter("heatbox.sim.ticks",
		metric.WithDescription("Completed simulation ticks")); err != nil {
		return nil, err
	}
	if out.tickDuration, err = m.Float64Histogram("heatbox.sim.tick.duration",
		metric.WithDescription("Wall time of one tick"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if out.spawned, err = m.Int64Counter("heatbox.sim.fires.spawned",
		metric.WithDescription("Fire regions spawned")); err != nil {
		return nil, err
	}
	if out.orphaned, err = m.Int64Counter("heatbox.sim.fires.orphaned",
		metric.WithDescription("Fire regions orphaned")); err != nil {
		return nil, err
	}
	if out.gaveUp, err = m.Int64Counter("heatbox.sim.sampling.gave_up",
		metric.WithDescription("Cells deregistered after exhausting hit sampling")); err != nil {
		return nil, err
	}
	if out.burning, err = m.Int64UpDownCounter("heatbox.sim.cells.burning",
		metric.WithDescription("Cells currently burning")); err != nil {
		return nil, err
	}
	return &out, nil
}
