// pkg/engine/metrics.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/go-tankwars/pkg/engine"

// Metrics records per-tick simulation telemetry. All instruments are no-ops
// unless a global MeterProvider is installed.
type Metrics struct {
	tickDuration metric.Float64Histogram
	collisions   metric.Int64Counter
	bulletsFired metric.Int64Counter
	craters      metric.Int64Counter
	rejections   metric.Int64Counter
}

// NewMetrics creates the engine instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(instrumentationName))
}

// NewMetricsWithMeter creates the engine instruments on m.
func NewMetricsWithMeter(m metric.Meter) (*Metrics, error) {
	var (
		mt  Metrics
		err error
	)

	mt.tickDuration, err = m.Float64Histogram(
		"tankwars.tick.duration",
		metric.WithDescription("Wall time spent simulating one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	mt.collisions, err = m.Int64Counter(
		"tankwars.collisions",
		metric.WithDescription("Body contacts reported by the physics engine"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating collisions counter: %w", err)
	}

	mt.bulletsFired, err = m.Int64Counter(
		"tankwars.bullets.fired",
		metric.WithDescription("Bullets spawned"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bullets counter: %w", err)
	}

	mt.craters, err = m.Int64Counter(
		"tankwars.craters",
		metric.WithDescription("Craters blasted into the terrain"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating craters counter: %w", err)
	}

	mt.rejections, err = m.Int64Counter(
		"tankwars.actions.rejected",
		metric.WithDescription("Player actions refused by game rules"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rejections counter: %w", err)
	}

	return &mt, nil
}

func (mt *Metrics) record(matchID string, elapsed time.Duration, r *TickReport) {
	if mt == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("match_id", matchID))

	mt.tickDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	if n := len(r.Collisions); n > 0 {
		mt.collisions.Add(ctx, int64(n), attrs)
	}
	if n := len(r.BulletsFired); n > 0 {
		mt.bulletsFired.Add(ctx, int64(n), attrs)
	}
	if n := len(r.TerrainPatches); n > 0 {
		mt.craters.Add(ctx, int64(n), attrs)
	}
	if n := len(r.Rejections); n > 0 {
		mt.rejections.Add(ctx, int64(n), attrs)
	}
}
