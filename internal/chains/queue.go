// internal/chains/queue.go
package chains

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// TransferQueue admits one in-flight operation per key within this process
type TransferQueue struct {
	mu    sync.Mutex
	slots map[string]*queueSlot
}

type queueSlot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewTransferQueue() *TransferQueue {
	return &TransferQueue{slots: make(map[string]*queueSlot)}
}

// Do waits for the key's slot, runs fn, and releases the slot.
// Waiters are admitted in arrival order.
func (q *TransferQueue) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	slot := q.checkout(key)
	defer q.checkin(key, slot)

	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire transfer slot for %s: %w", key, err)
	}
	defer slot.sem.Release(1)

	return fn(ctx)
}

func (q *TransferQueue) checkout(key string) *queueSlot {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot, ok := q.slots[key]
	if !ok {
		slot = &queueSlot{sem: semaphore.NewWeighted(1)}
		q.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (q *TransferQueue) checkin(key string, slot *queueSlot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot.refs--
	if slot.refs == 0 {
		delete(q.slots, key)
	}
}

// Len reports how many keys currently have holders or waiters
func (q *TransferQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots)
}
