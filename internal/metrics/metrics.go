package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partnerdesk_transitions_total",
		Help: "Total number of status transitions persisted, by flow and target status.",
	},
		[]string{"flow", "status"},
	)

	TransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partnerdesk_transitions_rejected_total",
		Help: "Total number of status transitions refused by the status machine.",
	},
		[]string{"flow"},
	)

	AlertsPlayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partnerdesk_alerts_played_total",
		Help: "Total number of new-order alerts delivered to views.",
	})

	AlertsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partnerdesk_alerts_failed_total",
		Help: "Total number of new-order alerts that could not be delivered.",
	})

	RefetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "partnerdesk_refetches_total",
		Help: "Total number of debounced view refetches.",
	})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partnerdesk_stock_adjustments_total",
		Help: "Total number of catalogue stock adjustments, by movement type.",
	},
		[]string{"movement_type"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "partnerdesk_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	ViewSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "partnerdesk_view_sessions",
		Help: "Current number of connected realtime list views.",
	})
)
