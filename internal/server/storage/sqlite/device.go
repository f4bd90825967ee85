package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/server/storage"
)

// CreateDevice registers a new device under an account
// Returns ErrDeviceAlreadyExists if the (account, device) pair is taken
func (s *Storage) CreateDevice(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (account_id, device_id, auth_key_hash, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		device.AccountID,
		device.ID,
		device.AuthKeyHash,
		device.CreatedAt.Unix(),
		device.LastSeen.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDeviceAlreadyExists
		}
		return fmt.Errorf("failed to insert device: %w", err)
	}

	return nil
}

// GetDevice retrieves one device registration
// Returns ErrDeviceNotFound if the device is not registered
func (s *Storage) GetDevice(ctx context.Context, accountID, deviceID string) (*models.Device, error) {
	query := `
		SELECT account_id, device_id, auth_key_hash, created_at, last_seen
		FROM devices
		WHERE account_id = ? AND device_id = ?
	`

	device := &models.Device{}
	var createdAt, lastSeen int64

	err := s.db.QueryRowContext(ctx, query, accountID, deviceID).Scan(
		&device.AccountID,
		&device.ID,
		&device.AuthKeyHash,
		&createdAt,
		&lastSeen,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	device.CreatedAt = time.Unix(createdAt, 0)
	device.LastSeen = time.Unix(lastSeen, 0)
	return device, nil
}

// UpdateLastSeen records the device's latest authenticated contact
func (s *Storage) UpdateLastSeen(ctx context.Context, accountID, deviceID string, seen time.Time) error {
	query := `UPDATE devices SET last_seen = ? WHERE account_id = ? AND device_id = ?`

	result, err := s.db.ExecContext(ctx, query, seen.Unix(), accountID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrDeviceNotFound
	}
	return nil
}

// isUniqueViolation detects primary key conflicts without importing the
// driver's internal error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
