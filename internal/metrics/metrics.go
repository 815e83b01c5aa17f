// Package metrics holds the process-wide prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SignalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcast_signaling_requests_total",
		Help: "Signaling requests sent, by event.",
	}, []string{"event"})

	SignalTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcast_signaling_timeouts_total",
		Help: "Signaling requests that expired before their acknowledgement.",
	})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcast_session_transitions_total",
		Help: "Session state machine transitions, by target state.",
	}, []string{"state"})
)
