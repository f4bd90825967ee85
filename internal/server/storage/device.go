package storage

import (
	"context"
	"time"

	"github.com/iudanet/extsync/internal/models"
)

// DeviceStorage defines the persistence interface for device registrations.
type DeviceStorage interface {
	// CreateDevice registers a new device under an account.
	// Returns ErrDeviceAlreadyExists if the device id is taken.
	CreateDevice(ctx context.Context, device *models.Device) error

	// GetDevice retrieves a device registration.
	// Returns ErrDeviceNotFound if the device is not registered.
	GetDevice(ctx context.Context, accountID, deviceID string) (*models.Device, error)

	// UpdateLastSeen records the device's latest authenticated contact.
	UpdateLastSeen(ctx context.Context, accountID, deviceID string, seen time.Time) error
}
