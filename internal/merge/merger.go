package merge

import (
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/iudanet/extsync/internal/models"
)

// Merger combines the local canonical state with remote snapshots into a
// new MergedState. Per-field latest-write-wins for extension records,
// additive merge for usage counters, leaf-level LWW for preferences.
// The operation is idempotent, and commutative over input order thanks to
// the (timestamp, deviceId) total order on candidates.
type Merger struct {
	logger *slog.Logger
}

// NewMerger creates a new Merger.
func NewMerger(logger *slog.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge produces the canonical state from local state plus remote
// snapshots. Malformed snapshots are dropped with a warning; their loss
// never aborts the merge (at-least-once channels redeliver them later).
func (m *Merger) Merge(local *models.MergedState, snapshots []*models.SyncSnapshot) *models.MergedState {
	sources := make([]*models.SyncSnapshot, 0, len(snapshots)+1)
	if local != nil {
		sources = append(sources, localAsSource(local))
	}
	for _, snap := range snapshots {
		if snap == nil {
			continue
		}
		if err := snap.Validate(); err != nil {
			m.logger.Warn("Dropping malformed snapshot from merge",
				"device_id", snap.DeviceID, "error", err)
			continue
		}
		sources = append(sources, snap)
	}

	result := models.NewMergedState()
	if len(sources) == 0 {
		return result
	}

	candidates := CollectCandidates(sources)
	result.Extensions = m.mergeExtensions(candidates)
	result.UserPreferences = unflattenPrefs(candidates)

	baseline := map[string]int64{}
	if local != nil {
		baseline = local.CounterBaseline
	}
	result.UsageCounters = MergeCounters(baseline, sources)
	// The merged totals become the baseline the next cycle diffs against.
	result.CounterBaseline = copyCounters(result.UsageCounters)

	for _, snap := range sources {
		if snap.Timestamp > result.LastModified {
			result.LastModified = snap.Timestamp
		}
	}
	for i := range result.Extensions {
		if ts := result.Extensions[i].LastModified; ts > result.LastModified {
			result.LastModified = ts
		}
	}

	return result
}

// mergeExtensions builds one record per extension id from the per-field
// winners. Two devices can each win different fields of the same record.
func (m *Merger) mergeExtensions(candidates map[FieldKey][]Candidate) []models.ExtensionRecord {
	byID := make(map[string]*models.ExtensionRecord)

	record := func(id string) *models.ExtensionRecord {
		rec, ok := byID[id]
		if !ok {
			rec = &models.ExtensionRecord{ID: id, Settings: map[string]any{}}
			byID[id] = rec
		}
		return rec
	}

	for key, cands := range candidates {
		if key.EntityID == PreferencesEntity {
			continue
		}
		win, ok := Winner(cands)
		if !ok {
			continue
		}

		rec := record(key.EntityID)
		switch {
		case key.Field == "enabled":
			enabled, _ := win.Value.(bool)
			rec.Enabled = enabled
		case key.Field == "version":
			version, _ := win.Value.(string)
			rec.Version = version
		case strings.HasPrefix(key.Field, "settings."):
			rec.Settings[strings.TrimPrefix(key.Field, "settings.")] = win.Value
		}

		// The record's provenance follows its most recently written field.
		if win.Timestamp > rec.LastModified ||
			(win.Timestamp == rec.LastModified && win.DeviceID > rec.OriginDevice) {
			rec.LastModified = win.Timestamp
			rec.OriginDevice = win.DeviceID
		}
	}

	out := make([]models.ExtensionRecord, 0, len(byID))
	for _, rec := range byID {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// unflattenPrefs rebuilds the preference tree from per-leaf winners.
func unflattenPrefs(candidates map[FieldKey][]Candidate) map[string]any {
	out := make(map[string]any)
	for key, cands := range candidates {
		if key.EntityID != PreferencesEntity {
			continue
		}
		win, ok := Winner(cands)
		if !ok {
			continue
		}

		parts := strings.Split(key.Field, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = win.Value
	}
	return out
}

// localAsSource presents the canonical local state as one more merge
// source, which is what makes re-merging the same inputs a no-op.
func localAsSource(local *models.MergedState) *models.SyncSnapshot {
	exts := make([]models.ExtensionRecord, len(local.Extensions))
	for i := range local.Extensions {
		exts[i] = *local.Extensions[i].Clone()
	}
	return &models.SyncSnapshot{
		DeviceID:        "", // per-record provenance carries the real device
		BrowserContext:  "canonical",
		Timestamp:       local.LastModified,
		Extensions:      exts,
		UserPreferences: local.UserPreferences,
		UsageCounters:   local.UsageCounters,
	}
}

func copyCounters(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// valuesEqual compares JSON-shaped values structurally.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
