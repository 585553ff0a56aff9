// internal/events/metrics.go
package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "settlement_event_publish_errors_total",
		Help: "Settlement events that could not be published",
	},
	[]string{"event_type"},
)
