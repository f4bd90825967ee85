package models

// QueueItemStatus is the lifecycle state of an offline queue item.
type QueueItemStatus string

const (
	QueueStatusPending QueueItemStatus = "pending"
	// QueueStatusFailed marks items past the retry ceiling. They are
	// excluded from automatic retries and surfaced to the caller.
	QueueStatusFailed QueueItemStatus = "failed"
)

// SyncQueueItem holds a snapshot awaiting transmission. Items are created
// when a transport send fails or the device is offline, and removed only
// after confirmed transmission.
type SyncQueueItem struct {
	ID         string          `json:"id"`
	Status     QueueItemStatus `json:"status"`
	Snapshot   SyncSnapshot    `json:"snapshot"`
	EnqueuedAt int64           `json:"enqueued_at"`
	Sequence   uint64          `json:"sequence"` // monotonic, preserves FIFO order in storage
	RetryCount int             `json:"retry_count"`
}
