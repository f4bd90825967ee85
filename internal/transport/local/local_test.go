package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
)

func snap(device string, ts int64) *models.SyncSnapshot {
	return &models.SyncSnapshot{DeviceID: device, Timestamp: ts}
}

func TestLocalBroadcast_Exchange(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	window := NewProvider(hub, "device-a/window")
	worker := NewProvider(hub, "device-a/worker")

	// First participant publishes into an empty hub.
	got, err := window.Send(ctx, snap("device-a", 100))
	require.NoError(t, err)
	assert.Empty(t, got)

	// Second participant sees the first's snapshot, not its own.
	got, err = worker.Send(ctx, snap("device-a", 150))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].Timestamp)

	// Re-publishing replaces, never accumulates.
	got, err = window.Send(ctx, snap("device-a", 200))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(150), got[0].Timestamp)
}

func TestLocalBroadcast_ReturnsCopies(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	a := NewProvider(hub, "a")
	b := NewProvider(hub, "b")

	published := snap("device-a", 100)
	published.UserPreferences = map[string]any{"theme": "dark"}
	_, err := a.Send(ctx, published)
	require.NoError(t, err)

	got, err := b.Send(ctx, snap("device-b", 200))
	require.NoError(t, err)
	require.Len(t, got, 1)

	got[0].UserPreferences["theme"] = "light"

	again, err := b.Send(ctx, snap("device-b", 300))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "dark", again[0].UserPreferences["theme"], "hub contents are isolated from callers")
}

func TestLocalBroadcast_CancelledContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProvider(hub, "a")
	_, err := p.Send(ctx, snap("device-a", 100))
	assert.Error(t, err)
}
