package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wazmeow_events_published_total",
			Help: "Total events published by bus scope (session or global) and kind.",
		},
		[]string{"scope", "kind"},
	)

	handlerPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wazmeow_event_handler_panics_total",
			Help: "Total event handlers that panicked, by bus scope and kind.",
		},
		[]string{"scope", "kind"},
	)
)
