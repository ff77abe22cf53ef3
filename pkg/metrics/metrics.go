package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Emit related metrics
	NotificationsEmitted prometheus.Counter
	NotificationsDeduped prometheus.Counter
	RecipientsFannedOut  prometheus.Histogram

	// Delivery related metrics
	DeliveriesProcessed prometheus.Counter
	DeliveriesSent      prometheus.Counter
	DeliveriesFailed    prometheus.Counter
	DeliveryLatency     prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		NotificationsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_emitted_total",
			Help:      "Total number of notifications created by emit",
		}),
		NotificationsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_deduped_total",
			Help:      "Total number of emits collapsed onto an existing notification",
		}),
		RecipientsFannedOut: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "recipients_fanned_out",
			Help:      "Number of recipient rows created per emit",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		DeliveriesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deliveries_processed_total",
			Help:      "Total number of delivery rows picked up for sending",
		}),
		DeliveriesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deliveries_sent_total",
			Help:      "Total number of deliveries sent successfully",
		}),
		DeliveriesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deliveries_failed_total",
			Help:      "Total number of delivery attempts that failed",
		}),
		DeliveryLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_processing_seconds",
			Help:      "Time spent processing a batch of deliveries",
			Buckets:   prometheus.DefBuckets,
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Database operations by name and result",
		}, []string{"operation", "result"}),
	}
}
