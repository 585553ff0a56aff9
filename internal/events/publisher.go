// internal/events/publisher.go
package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	SweepCompleted       = "sweep.completed"
	WithdrawalCompleted  = "withdrawal.completed"
	ReconciliationFailed = "reconciliation.failed"
)

// SettlementEvent is published after a ledger change commits, or when one could not be written
type SettlementEvent struct {
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id,omitempty"`
	Network   string    `json:"network,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, event *SettlementEvent) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *SettlementEvent) error { return nil }
func (NopPublisher) Close() error                                   { return nil }

// Notify publishes without failing the caller; settlement state is already committed
func Notify(ctx context.Context, p Publisher, event *SettlementEvent, logger *zap.Logger) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.Publish(ctx, event); err != nil {
		publishErrors.WithLabelValues(event.EventType).Inc()
		logger.Warn("failed to publish settlement event",
			zap.String("event_type", event.EventType),
			zap.String("reference", event.Reference),
			zap.Error(err))
	}
}
