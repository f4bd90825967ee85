package storage

import (
	"context"

	"github.com/iudanet/extsync/internal/models"
)

// SnapshotStorage defines the persistence interface for device snapshots.
// The relay keeps the latest snapshot per (account, device, context) and
// replaces it only when the incoming one is newer, so replayed uploads
// from at-least-once clients are harmless.
type SnapshotStorage interface {
	// SaveSnapshot stores the snapshot if it is newer than the one on
	// record. Returns true if it was stored.
	SaveSnapshot(ctx context.Context, accountID string, snapshot *models.SyncSnapshot) (bool, error)

	// GetAccountSnapshots returns the latest snapshot of every device in
	// the account, optionally excluding one device id.
	GetAccountSnapshots(ctx context.Context, accountID, excludeDevice string) ([]*models.SyncSnapshot, error)

	// GetAccountSnapshotsSince returns account snapshots with a timestamp
	// strictly greater than since.
	GetAccountSnapshotsSince(ctx context.Context, accountID string, since int64) ([]*models.SyncSnapshot, error)
}
