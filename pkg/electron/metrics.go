package electron

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament",
		Name:      "sessions_opened_total",
		Help:      "Sessions opened successfully.",
	})
	metricSessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament",
		Name:      "sessions_closed_total",
		Help:      "Sessions closed.",
	})
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "filament",
		Name:      "sessions_active",
		Help:      "Currently registered sessions.",
	})
	metricOpenFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filament",
		Name:      "session_open_failures_total",
		Help:      "Failed open attempts by stage.",
	}, []string{"stage"})
	metricNativeEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament",
		Name:      "native_events_dispatched_total",
		Help:      "Native input events dispatched over CDP.",
	})
)
