// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_store_operations_total",
			Help: "Total store operations by store, operation and outcome",
		},
		[]string{"store", "operation", "outcome"},
	)

	AggregatorPassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "portal_aggregator_pass_duration_seconds",
			Help: "Duration of one notification aggregation pass",
		},
		[]string{"role"},
	)

	NotificationsLive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_notifications_live",
			Help: "Notifications in the last computed list, per kind",
		},
		[]string{"kind"},
	)

	FeedResubscribes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_feed_resubscribes_total",
			Help: "Bounded resubscriptions after feed infrastructure failures",
		},
		[]string{"collection"},
	)
)
