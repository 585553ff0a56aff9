// internal/chains/metrics.go
package chains

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var chainRetries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "settlement_chain_retries_total",
		Help: "Retried chain RPC calls by network and operation",
	},
	[]string{"network", "op"},
)
