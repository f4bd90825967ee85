package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(storage.NewMemory(), "device-a")
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestInstallExtension(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.InstallExtension(ctx, models.ExtensionRecord{
		ID: "ublock-origin", Version: "1.50.0", Enabled: true,
	})
	require.NoError(t, err)

	exts, err := s.GetAllExtensions(ctx)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, "ublock-origin", exts[0].ID)
	assert.Equal(t, "device-a", exts[0].OriginDevice)
	assert.Equal(t, int64(1700000000000), exts[0].LastModified)
	assert.NotNil(t, exts[0].Settings)
}

func TestInstallExtension_RejectsDuplicateAndBadID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InstallExtension(ctx, models.ExtensionRecord{ID: "dark-reader"}))

	err := s.InstallExtension(ctx, models.ExtensionRecord{ID: "dark-reader"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already installed")

	err = s.InstallExtension(ctx, models.ExtensionRecord{ID: "Not Valid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid extension id")
}

func TestSetExtensionEnabled_StampsProvenanceAndCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InstallExtension(ctx, models.ExtensionRecord{ID: "dark-reader"}))

	s.now = func() time.Time { return time.UnixMilli(1700000005000) }
	require.NoError(t, s.SetExtensionEnabled(ctx, "dark-reader", true))

	exts, err := s.GetAllExtensions(ctx)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.True(t, exts[0].Enabled)
	assert.Equal(t, int64(1700000005000), exts[0].LastModified)
	assert.Equal(t, "device-a", exts[0].OriginDevice)

	counters, err := s.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[CounterExtensionToggles])

	err = s.SetExtensionEnabled(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrExtensionNotFound)
}

func TestUpdateExtensionSettings_OverlaysKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InstallExtension(ctx, models.ExtensionRecord{
		ID:       "ublock-origin",
		Settings: map[string]any{"filters": "default", "whitelist": "example.com"},
	}))

	err := s.UpdateExtensionSettings(ctx, "ublock-origin", map[string]any{"filters": "strict"})
	require.NoError(t, err)

	exts, err := s.GetAllExtensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, "strict", exts[0].Settings["filters"])
	assert.Equal(t, "example.com", exts[0].Settings["whitelist"])
}

func TestSetPreference_PersistsAcrossStores(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()

	first := NewStore(kv, "device-a")
	require.NoError(t, first.SetPreference(ctx, "theme", "dark"))

	second := NewStore(kv, "device-a")
	prefs, err := second.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", prefs["theme"])
}

func TestApplyResolved_ReplacesStateAndAdoptsCounterMaxima(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.InstallExtension(ctx, models.ExtensionRecord{ID: "old-extension"}))
	require.NoError(t, s.SetExtensionEnabled(ctx, "old-extension", true))
	require.NoError(t, s.SetPreference(ctx, "theme", "light"))

	merged := models.NewMergedState()
	merged.Extensions = []models.ExtensionRecord{
		{ID: "ublock-origin", Enabled: true, OriginDevice: "device-b", LastModified: 42},
	}
	merged.UserPreferences = map[string]any{"theme": "dark"}
	merged.UsageCounters = map[string]int64{
		CounterExtensionToggles: 10,
		CounterSettingsWrites:   0,
	}

	require.NoError(t, s.ApplyResolved(ctx, merged))

	exts, err := s.GetAllExtensions(ctx)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, "ublock-origin", exts[0].ID)

	prefs, err := s.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dark", prefs["theme"])

	// Merged totals only ever raise local counters.
	counters, err := s.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), counters[CounterExtensionToggles])
	assert.Equal(t, int64(1), counters[CounterSettingsWrites])
}
