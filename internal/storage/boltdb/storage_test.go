package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "extsync-test.db")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestStorage_SetGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("v1")))

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestStorage_GetMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStorage_Overwrite(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("old")))
	require.NoError(t, s.Set(ctx, "k1", []byte("new")))

	got, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestStorage_Remove(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte("v1")))
	require.NoError(t, s.Remove(ctx, "k1"))

	_, err := s.Get(ctx, "k1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Removing an absent key is not an error.
	assert.NoError(t, s.Remove(ctx, "absent"))
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "extsync-test.db")
	ctx := context.Background()

	s, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k1", []byte("survives")))
	require.NoError(t, s.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	got, err := reopened.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("survives"), got)
}
