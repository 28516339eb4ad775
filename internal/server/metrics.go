// Package server exposes Prometheus metrics describing the relay's live
// connection and fan-out activity.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// eventLabelUnknown is the label value recorded for inbound events whose
// name matches no known handler, keeping the event label set bounded.
const eventLabelUnknown = "unknown"

var (
	connectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections",
		Help: "Number of live WebSocket connections.",
	})

	roomsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms",
		Help: "Number of rooms with at least one member.",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Inbound events received, by event name.",
	}, []string{"event"})

	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_total",
		Help: "Room broadcasts delivered to at least one member.",
	})
)
