package storage

import "errors"

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")

	// ErrStorageClosed is returned when operating on a closed store.
	ErrStorageClosed = errors.New("storage is closed")
)
