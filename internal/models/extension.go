package models

// ExtensionRecord describes one capability module as seen by one device.
// Records travel inside snapshots; within a single snapshot the ID is unique.
type ExtensionRecord struct {
	Settings     map[string]any `json:"settings"`      // Settings per-module configuration, keys unique
	ID           string         `json:"id"`            // ID unique capability-module identifier
	Version      string         `json:"version"`       // Version installed module version string
	OriginDevice string         `json:"origin_device"` // OriginDevice device that produced this record version
	LastModified int64          `json:"last_modified"` // LastModified unix milliseconds of last local change
	Enabled      bool           `json:"enabled"`       // Enabled whether the module is active
}

// NewerThan reports whether the record should win over other under the
// recency rule: greater LastModified wins, equal timestamps are broken
// by lexicographic OriginDevice comparison for determinism.
func (r *ExtensionRecord) NewerThan(other *ExtensionRecord) bool {
	if r.LastModified != other.LastModified {
		return r.LastModified > other.LastModified
	}
	return r.OriginDevice > other.OriginDevice
}

// Clone returns a deep copy of the record.
func (r *ExtensionRecord) Clone() *ExtensionRecord {
	settings := make(map[string]any, len(r.Settings))
	for k, v := range r.Settings {
		settings[k] = cloneValue(v)
	}

	return &ExtensionRecord{
		ID:           r.ID,
		Enabled:      r.Enabled,
		Settings:     settings,
		Version:      r.Version,
		LastModified: r.LastModified,
		OriginDevice: r.OriginDevice,
	}
}

// cloneValue deep-copies JSON-shaped values (maps, slices, scalars).
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
