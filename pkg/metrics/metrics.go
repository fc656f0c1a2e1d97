// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperationsTotal tracks store operations by backend and outcome.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatshell_store_operations_total",
			Help: "Total conversation store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// SearchFallbacksTotal tracks indexed searches that fell back to a manual scan.
	SearchFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatshell_search_fallbacks_total",
			Help: "Indexed searches that fell back to a manual scan",
		},
	)

	// ConversationsCreatedTotal tracks conversations created this process.
	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatshell_conversations_created_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks messages appended, by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatshell_messages_total",
			Help: "Total messages appended to conversations",
		},
		[]string{"role"},
	)

	// CleanupDeletedTotal tracks conversations removed by cleanup sweeps.
	CleanupDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatshell_cleanup_deleted_total",
			Help: "Conversations removed by cleanup sweeps",
		},
	)

	// ResponderDuration tracks responder reply latency.
	ResponderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatshell_responder_duration_seconds",
			Help:    "Responder reply latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)
)

// RecordStoreOperation records one store operation outcome.
func RecordStoreOperation(backend, operation string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordResponder records one responder round trip.
func RecordResponder(provider string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ResponderDuration.WithLabelValues(provider, status).Observe(seconds)
}
