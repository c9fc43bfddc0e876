package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wazmeow_session_transitions_total",
			Help: "Session status transitions by target status.",
		},
		[]string{"status"},
	)

	reconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wazmeow_session_reconnects_total",
			Help: "Scheduled reconnects by kind (backoff or reset).",
		},
		[]string{"kind"},
	)

	storageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wazmeow_storage_failures_total",
			Help: "Storage writes that failed during event handling, by operation.",
		},
		[]string{"operation"},
	)

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wazmeow_sessions_registered",
		Help: "Sessions currently held by the registry.",
	})
)
