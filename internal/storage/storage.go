// Package storage defines the durable persistence port shared by the
// offline queue, the orchestrator and the report history. Consumers see a
// plain keyed byte store, so the medium (bbolt file, test memory, a
// remote store) is swappable without touching merge or resolution logic.
package storage

import "context"

//go:generate moq -out kv_mock.go . KV

// KV is the storage port: get/set/remove by key.
type KV interface {
	// Get returns the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Well-known keys used by the engine's components.
const (
	KeyMergedState     = "merged_state"
	KeySyncQueue       = "sync_queue"
	KeyConflictHistory = "conflict_history"
	KeyReportHistory   = "report_history"
	KeyLastSyncTime    = "last_sync_time"
	KeyDeviceID        = "device_id"
	KeyAuthToken       = "auth_token"
	KeyRegistry        = "extension_registry"
)
