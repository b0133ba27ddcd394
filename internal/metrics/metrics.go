package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ── Run metrics ────────────────────────────────────────────────────────

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethyields",
		Subsystem: "run",
		Name:      "total",
		Help:      "Total number of pipeline runs by outcome.",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ethyields",
		Subsystem: "run",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethyields",
		Subsystem: "run",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful run.",
	})
)

// ── Pool counts ────────────────────────────────────────────────────────

var (
	PoolsCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ethyields",
		Subsystem: "pools",
		Name:      "count",
		Help:      "Number of pools at each pipeline step of the last run.",
	}, []string{"step"})

	RowsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ethyields",
		Subsystem: "store",
		Name:      "rows_inserted_total",
		Help:      "Total lsds rows written.",
	})
)

// ── Notification delivery ──────────────────────────────────────────────

var NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ethyields",
	Subsystem: "notify",
	Name:      "total",
	Help:      "Digest messages by delivery outcome.",
}, []string{"status"})

// Push sends every registered metric to a Prometheus Pushgateway under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	err := push.New(gatewayURL, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
