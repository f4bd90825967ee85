package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MergedState is the canonical resolved configuration. It is owned by the
// sync orchestrator, replaced wholesale on every applied merge and never
// patched in place, so readers always observe a complete state.
type MergedState struct {
	UserPreferences map[string]any   `json:"user_preferences"`
	UsageCounters   map[string]int64 `json:"usage_counters"`
	// CounterBaseline records the counter values at the moment this state
	// was applied. The next merge computes per-source deltas against it.
	CounterBaseline map[string]int64  `json:"counter_baseline"`
	Extensions      []ExtensionRecord `json:"extensions"`
	LastModified    int64             `json:"last_modified"` // max timestamp over merge inputs
}

// NewMergedState returns an empty state with allocated maps.
func NewMergedState() *MergedState {
	return &MergedState{
		Extensions:      []ExtensionRecord{},
		UserPreferences: map[string]any{},
		UsageCounters:   map[string]int64{},
		CounterBaseline: map[string]int64{},
	}
}

// Extension returns the record with the given id, or nil.
func (m *MergedState) Extension(id string) *ExtensionRecord {
	for i := range m.Extensions {
		if m.Extensions[i].ID == id {
			return &m.Extensions[i]
		}
	}
	return nil
}

// ActiveExtensionIDs returns the ids of all enabled extensions.
func (m *MergedState) ActiveExtensionIDs() []string {
	ids := make([]string, 0, len(m.Extensions))
	for i := range m.Extensions {
		if m.Extensions[i].Enabled {
			ids = append(ids, m.Extensions[i].ID)
		}
	}
	return ids
}

// Clone returns a deep copy of the state.
func (m *MergedState) Clone() *MergedState {
	exts := make([]ExtensionRecord, len(m.Extensions))
	for i := range m.Extensions {
		exts[i] = *m.Extensions[i].Clone()
	}

	prefs := make(map[string]any, len(m.UserPreferences))
	for k, v := range m.UserPreferences {
		prefs[k] = cloneValue(v)
	}

	counters := make(map[string]int64, len(m.UsageCounters))
	for k, v := range m.UsageCounters {
		counters[k] = v
	}

	baseline := make(map[string]int64, len(m.CounterBaseline))
	for k, v := range m.CounterBaseline {
		baseline[k] = v
	}

	return &MergedState{
		Extensions:      exts,
		UserPreferences: prefs,
		UsageCounters:   counters,
		CounterBaseline: baseline,
		LastModified:    m.LastModified,
	}
}

// Export serializes the state to its stable JSON form.
func (m *MergedState) Export() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to export merged state: %w", err)
	}
	return data, nil
}

// ImportState parses a state previously produced by Export.
func ImportState(data []byte) (*MergedState, error) {
	var state MergedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to import merged state: %w", err)
	}
	if state.UserPreferences == nil {
		state.UserPreferences = map[string]any{}
	}
	if state.UsageCounters == nil {
		state.UsageCounters = map[string]int64{}
	}
	if state.CounterBaseline == nil {
		state.CounterBaseline = map[string]int64{}
	}
	return &state, nil
}

// SyncStatus is the read-only view exposed to the operator surface.
type SyncStatus struct {
	LastSyncTime time.Time `json:"last_sync_time"`
	NextSyncTime time.Time `json:"next_sync_time"`
	QueueLength  int       `json:"queue_length"`
	Enabled      bool      `json:"enabled"`
	Online       bool      `json:"online"`
}
