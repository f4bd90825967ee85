package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/extsync/internal/models"
)

// SaveSnapshot stores the snapshot if it is newer than the one on record
// for the same (account, device, context). Returns true if stored.
// Last-write-wins keyed on the snapshot timestamp makes replayed uploads
// from at-least-once clients a no-op.
func (s *Storage) SaveSnapshot(ctx context.Context, accountID string, snapshot *models.SyncSnapshot) (bool, error) {
	existing, err := s.getSnapshot(ctx, accountID, snapshot.DeviceID, snapshot.BrowserContext)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to check existing snapshot: %w", err)
	}

	if existing != nil && !snapshot.NewerThan(existing) {
		return false, nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (account_id, device_id, browser_context, timestamp, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, device_id, browser_context)
		DO UPDATE SET timestamp = excluded.timestamp,
		              payload = excluded.payload,
		              updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		accountID,
		snapshot.DeviceID,
		snapshot.BrowserContext,
		snapshot.Timestamp,
		string(payload),
		time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to save snapshot: %w", err)
	}

	return true, nil
}

// GetAccountSnapshots returns the latest snapshot of every device in the
// account, optionally excluding one device id.
func (s *Storage) GetAccountSnapshots(ctx context.Context, accountID, excludeDevice string) ([]*models.SyncSnapshot, error) {
	query := `
		SELECT payload
		FROM snapshots
		WHERE account_id = ? AND device_id != ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, excludeDevice)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanSnapshots(rows)
}

// GetAccountSnapshotsSince returns account snapshots with a timestamp
// strictly greater than since.
func (s *Storage) GetAccountSnapshotsSince(ctx context.Context, accountID string, since int64) ([]*models.SyncSnapshot, error) {
	query := `
		SELECT payload
		FROM snapshots
		WHERE account_id = ? AND timestamp > ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots since timestamp: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanSnapshots(rows)
}

// getSnapshot reads one row for the LWW comparison. Returns sql.ErrNoRows
// when absent.
func (s *Storage) getSnapshot(ctx context.Context, accountID, deviceID, browserContext string) (*models.SyncSnapshot, error) {
	query := `
		SELECT payload
		FROM snapshots
		WHERE account_id = ? AND device_id = ? AND browser_context = ?
	`

	var payload string
	err := s.db.QueryRowContext(ctx, query, accountID, deviceID, browserContext).Scan(&payload)
	if err != nil {
		return nil, err
	}

	var snapshot models.SyncSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored snapshot: %w", err)
	}
	return &snapshot, nil
}

func scanSnapshots(rows *sql.Rows) ([]*models.SyncSnapshot, error) {
	var snapshots []*models.SyncSnapshot

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		var snapshot models.SyncSnapshot
		if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		snapshots = append(snapshots, &snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return snapshots, nil
}
