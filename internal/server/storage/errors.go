package storage

import "errors"

// Common storage errors
var (
	// ErrDeviceNotFound indicates that the device is not registered
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceAlreadyExists indicates a duplicate device registration
	ErrDeviceAlreadyExists = errors.New("device already exists")

	// ErrSnapshotNotFound indicates that no snapshot is stored
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
