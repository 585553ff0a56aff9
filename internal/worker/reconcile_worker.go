// internal/worker/reconcile_worker.go
package worker

import (
	"context"
	"sync"
	"time"

	"settlement-service/internal/usecase"

	"go.uber.org/zap"
)

type intentReconciler interface {
	ReconcileIntents(ctx context.Context) (*usecase.ReconcileReport, error)
}

// ReconcileWorker periodically settles open transfer intents
type ReconcileWorker struct {
	ledger   intentReconciler
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewReconcileWorker(ledger intentReconciler, interval time.Duration, logger *zap.Logger) *ReconcileWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconcileWorker{
		ledger:   ledger,
		interval: interval,
		logger:   logger.With(zap.String("worker", "reconcile")),
		stopChan: make(chan struct{}),
	}
}

func (rw *ReconcileWorker) Start(ctx context.Context) error {
	rw.logger.Info("Starting reconcile worker", zap.Duration("interval", rw.interval))

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := rw.ledger.ReconcileIntents(ctx); err != nil && ctx.Err() == nil {
				rw.logger.Error("Reconciliation pass failed", zap.Error(err))
			}

		case <-rw.stopChan:
			rw.logger.Info("Stopping reconcile worker")
			return nil

		case <-ctx.Done():
			rw.logger.Info("Context cancelled, stopping reconcile worker")
			return nil
		}
	}
}

func (rw *ReconcileWorker) Stop() {
	rw.stopOnce.Do(func() { close(rw.stopChan) })
}
