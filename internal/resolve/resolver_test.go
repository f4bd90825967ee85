package resolve

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
)

func newTestResolver() *Resolver {
	return NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)), "device-local")
}

func themeSnapshots() []*models.SyncSnapshot {
	mk := func(device string, ts int64, theme string) *models.SyncSnapshot {
		return &models.SyncSnapshot{
			DeviceID:  device,
			Timestamp: ts,
			Extensions: []models.ExtensionRecord{{
				ID:           "dark-reader",
				Enabled:      true,
				Settings:     map[string]any{"theme": theme},
				Version:      "1.0.0",
				LastModified: ts,
				OriginDevice: device,
			}},
			UserPreferences: map[string]any{},
			UsageCounters:   map[string]int64{},
		}
	}
	return []*models.SyncSnapshot{
		mk("device-a", 100, "sepia"),
		mk("device-b", 200, "midnight"),
	}
}

func TestResolver_DetectDisagreement(t *testing.T) {
	r := newTestResolver()

	conflicts := r.Detect(themeSnapshots())

	// enabled and version agree; only settings.theme is disputed.
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, "dark-reader", c.EntityID)
	assert.Equal(t, "settings.theme", c.Field)
	require.Len(t, c.Candidates, 2)
	assert.Equal(t, "midnight", c.Candidates[0].Value, "candidates ordered newest first")
	assert.Equal(t, int64(200), c.Candidates[0].SourceTimestamp)
	assert.False(t, c.Resolved())
}

func TestResolver_DetectNoConflictWhenAgreeing(t *testing.T) {
	r := newTestResolver()

	snaps := themeSnapshots()
	snaps[1].Extensions[0].Settings["theme"] = "sepia"

	assert.Empty(t, r.Detect(snaps))
}

func TestResolver_LatestWins(t *testing.T) {
	r := newTestResolver()

	conflicts := r.Detect(themeSnapshots())
	require.Len(t, conflicts, 1)

	value, err := r.Resolve(&conflicts[0], models.ResolutionLatestWins)
	require.NoError(t, err)
	assert.Equal(t, "midnight", value)
	assert.Equal(t, models.ResolutionLatestWins, conflicts[0].Resolution)
	assert.True(t, conflicts[0].Resolved(), "audit entry carries resolution timestamp")
}

func TestResolver_LocalWins(t *testing.T) {
	r := newTestResolver()

	conflict := models.DataConflict{
		ID:       "c1",
		EntityID: "dark-reader",
		Field:    "settings.theme",
		Candidates: []models.CandidateValue{
			{Value: "midnight", SourceDevice: "device-remote", SourceTimestamp: 200},
			{Value: "sepia", SourceDevice: "device-local", SourceTimestamp: 100},
		},
	}

	value, err := r.Resolve(&conflict, models.ResolutionLocalWins)
	require.NoError(t, err)
	assert.Equal(t, "sepia", value, "local value wins despite being older")
}

func TestResolver_MergeStrategyDeepMergesObjects(t *testing.T) {
	r := newTestResolver()

	conflict := models.DataConflict{
		ID:       "c2",
		EntityID: "ublock-origin",
		Field:    "settings.lists",
		Candidates: []models.CandidateValue{
			{Value: map[string]any{"regional": true}, SourceDevice: "device-b", SourceTimestamp: 200},
			{Value: map[string]any{"ads": true, "regional": false}, SourceDevice: "device-a", SourceTimestamp: 100},
		},
	}

	value, err := r.Resolve(&conflict, models.ResolutionMerge)
	require.NoError(t, err)
	merged, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, merged["ads"], "older-only key survives")
	assert.Equal(t, true, merged["regional"], "newer leaf overwrites")
}

func TestResolver_StrategyFailureFallsBackToLatestWins(t *testing.T) {
	r := newTestResolver()

	conflict := models.DataConflict{
		ID:       "c3",
		EntityID: "dark-reader",
		Field:    "enabled",
		Candidates: []models.CandidateValue{
			{Value: false, SourceDevice: "device-b", SourceTimestamp: 200},
			{Value: true, SourceDevice: "device-a", SourceTimestamp: 100},
		},
	}

	// merge over booleans cannot work; the resolver degrades instead of failing.
	value, err := r.Resolve(&conflict, models.ResolutionMerge)
	require.NoError(t, err)
	assert.Equal(t, false, value)
	assert.Equal(t, models.ResolutionLatestWins, conflict.Resolution)
}

func TestResolver_ManualDefers(t *testing.T) {
	r := newTestResolver()

	conflict := models.DataConflict{
		ID:       "c4",
		EntityID: "dark-reader",
		Field:    "enabled",
		Candidates: []models.CandidateValue{
			{Value: false, SourceDevice: "device-b", SourceTimestamp: 200},
		},
	}

	_, err := r.Resolve(&conflict, models.ResolutionManual)
	assert.ErrorIs(t, err, ErrPendingManual)
	assert.Equal(t, models.ResolutionManual, conflict.Resolution)
	assert.False(t, conflict.Resolved(), "pending manual conflicts stay unresolved")
}

func TestResolver_ResolveAll(t *testing.T) {
	r := newTestResolver()

	conflicts := r.Detect(themeSnapshots())
	require.Len(t, conflicts, 1)

	r.ResolveAll(conflicts)
	assert.True(t, conflicts[0].Resolved())
	assert.Equal(t, "midnight", conflicts[0].ResolvedValue)
}
