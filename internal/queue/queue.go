// Package queue implements the durable offline queue: snapshots that
// could not be transmitted wait here, survive restarts, and drain in FIFO
// order once a transport succeeds again.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/storage"
)

// SendFunc attempts to transmit one queued snapshot.
type SendFunc func(ctx context.Context, snapshot *models.SyncSnapshot) error

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Sent     int
	Requeued int
	// Failed lists items that crossed the retry ceiling during this pass.
	// They stay in the queue with status=failed and are never retried
	// automatically; the operator surface shows them as actionable.
	Failed []models.SyncQueueItem
}

// OfflineQueue is a persisted FIFO of snapshots awaiting transmission.
// The whole queue is stored as one value under the storage port, so the
// durable medium only needs get/set/remove.
type OfflineQueue struct {
	kv           storage.KV
	logger       *slog.Logger
	retryCeiling int
	mu           sync.Mutex
}

// New creates an OfflineQueue over the given storage port.
func New(kv storage.KV, retryCeiling int, logger *slog.Logger) *OfflineQueue {
	return &OfflineQueue{kv: kv, retryCeiling: retryCeiling, logger: logger}
}

// SetRetryCeiling changes the retry ceiling for subsequent drains.
func (q *OfflineQueue) SetRetryCeiling(ceiling int) {
	q.mu.Lock()
	q.retryCeiling = ceiling
	q.mu.Unlock()
}

// Enqueue appends a snapshot to the tail of the queue.
func (q *OfflineQueue) Enqueue(ctx context.Context, snapshot *models.SyncSnapshot) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return err
	}

	var seq uint64
	for i := range items {
		if items[i].Sequence >= seq {
			seq = items[i].Sequence + 1
		}
	}

	items = append(items, models.SyncQueueItem{
		ID:         uuid.New().String(),
		Status:     models.QueueStatusPending,
		Snapshot:   *snapshot.Clone(),
		EnqueuedAt: time.Now().UnixMilli(),
		Sequence:   seq,
	})

	if err := q.save(ctx, items); err != nil {
		return err
	}

	q.logger.Debug("Enqueued snapshot", "device_id", snapshot.DeviceID, "queue_length", len(items))
	return nil
}

// Drain sends pending items in FIFO order. Sent items are removed, failed
// items are re-enqueued at the tail with an incremented retry count, and
// items past the retry ceiling transition to status=failed.
func (q *OfflineQueue) Drain(ctx context.Context, send SendFunc) (*DrainResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return nil, err
	}

	result := &DrainResult{}
	remaining := make([]models.SyncQueueItem, 0, len(items))

	for _, item := range items {
		if item.Status == models.QueueStatusFailed {
			// Past the ceiling: kept for the operator, never retried.
			remaining = append(remaining, item)
			continue
		}

		if err := send(ctx, &item.Snapshot); err != nil {
			item.RetryCount++
			if item.RetryCount > q.retryCeiling {
				item.Status = models.QueueStatusFailed
				result.Failed = append(result.Failed, item)
				q.logger.Warn("Queue item exceeded retry ceiling",
					"item_id", item.ID, "retries", item.RetryCount)
			} else {
				result.Requeued++
				q.logger.Debug("Requeued snapshot after failed send",
					"item_id", item.ID, "retries", item.RetryCount, "error", err)
			}
			remaining = append(remaining, item)
			continue
		}

		result.Sent++
	}

	if err := q.save(ctx, remaining); err != nil {
		return nil, err
	}
	return result, nil
}

// Items returns a copy of the current queue contents, FIFO order.
func (q *OfflineQueue) Items(ctx context.Context) ([]models.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of pending (retryable) items.
func (q *OfflineQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range items {
		if items[i].Status == models.QueueStatusPending {
			count++
		}
	}
	return count, nil
}

// Remove deletes the item with the given id, typically a failed item the
// operator has dismissed.
func (q *OfflineQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load(ctx)
	if err != nil {
		return err
	}

	remaining := items[:0]
	found := false
	for _, item := range items {
		if item.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, item)
	}
	if !found {
		return fmt.Errorf("queue item %s: %w", id, storage.ErrNotFound)
	}
	return q.save(ctx, remaining)
}

func (q *OfflineQueue) load(ctx context.Context) ([]models.SyncQueueItem, error) {
	data, err := q.kv.Get(ctx, storage.KeySyncQueue)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load sync queue: %w", err)
	}

	var items []models.SyncQueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync queue: %w", err)
	}
	return items, nil
}

func (q *OfflineQueue) save(ctx context.Context, items []models.SyncQueueItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal sync queue: %w", err)
	}
	if err := q.kv.Set(ctx, storage.KeySyncQueue, data); err != nil {
		return fmt.Errorf("failed to persist sync queue: %w", err)
	}
	return nil
}
