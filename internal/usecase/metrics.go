// internal/usecase/metrics.go
package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_sweeps_total",
			Help: "Sweep attempts by network and outcome",
		},
		[]string{"network", "outcome"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_sweep_duration_seconds",
			Help:    "Wall time of a sweep attempt",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"network"},
	)

	gasTopUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_gas_topups_total",
			Help: "Master-funded gas top-ups sent to temp wallets",
		},
		[]string{"network"},
	)

	nonceWaitTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_nonce_wait_timeouts_total",
			Help: "Transfers queued behind a transaction that was still pending",
		},
		[]string{"network"},
	)

	withdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_withdrawals_total",
			Help: "Withdrawal acceptances by outcome",
		},
		[]string{"outcome"},
	)

	reconciliationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconciliation_errors_total",
			Help: "Chain transfers that moved funds without a matching ledger write",
		},
		[]string{"kind"},
	)
)
