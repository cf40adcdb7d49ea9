package session

import "github.com/prometheus/client_golang/prometheus"

var (
	backendCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netbank",
		Subsystem: "session",
		Name:      "backend_calls_total",
		Help:      "Best-effort session calls to the bank backend by call and result.",
	}, []string{"call", "result"})
	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "netbank",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session monitor state transitions by target state.",
	}, []string{"state"})
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "netbank",
		Subsystem: "session",
		Name:      "active",
		Help:      "Number of live session monitors.",
	})
)

func init() {
	prometheus.MustRegister(backendCalls, transitions, activeSessions)
}
