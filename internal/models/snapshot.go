package models

import (
	"fmt"
	"regexp"
)

// ExtensionIDPattern defines the accepted capability-module identifier
// format: lowercase letters, digits, hyphen and underscore, 2-64 chars.
var ExtensionIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)

// SyncSnapshot is an immutable, timestamped description of one device's
// extension configuration. Snapshots are produced on every sync attempt
// and never mutated after creation; all transports carry this exact shape.
type SyncSnapshot struct {
	UserPreferences map[string]any   `json:"user_preferences"`
	UsageCounters   map[string]int64 `json:"usage_counters"`
	DeviceID        string           `json:"device_id"`
	BrowserContext  string           `json:"browser_context"` // descriptive only, opaque to merge logic
	Extensions      []ExtensionRecord `json:"extensions"`
	Timestamp       int64            `json:"timestamp"` // unix milliseconds at snapshot creation
}

// NewerThan orders snapshots by (Timestamp, DeviceID): greater timestamp
// wins, ties are broken lexicographically by DeviceID.
func (s *SyncSnapshot) NewerThan(other *SyncSnapshot) bool {
	if s.Timestamp != other.Timestamp {
		return s.Timestamp > other.Timestamp
	}
	return s.DeviceID > other.DeviceID
}

// Validate checks structural invariants of a snapshot before it is fed
// into the merge pipeline. A snapshot failing validation is dropped as a
// merge source; it never aborts the cycle.
func (s *SyncSnapshot) Validate() error {
	if s.DeviceID == "" {
		return fmt.Errorf("snapshot has empty device_id")
	}
	if s.Timestamp <= 0 {
		return fmt.Errorf("snapshot from %s has non-positive timestamp %d", s.DeviceID, s.Timestamp)
	}

	seen := make(map[string]struct{}, len(s.Extensions))
	for i := range s.Extensions {
		ext := &s.Extensions[i]
		if !ExtensionIDPattern.MatchString(ext.ID) {
			return fmt.Errorf("invalid extension id %q", ext.ID)
		}
		if _, dup := seen[ext.ID]; dup {
			return fmt.Errorf("duplicate extension id %q in snapshot from %s", ext.ID, s.DeviceID)
		}
		seen[ext.ID] = struct{}{}
	}

	return nil
}

// Clone returns a deep copy of the snapshot.
func (s *SyncSnapshot) Clone() *SyncSnapshot {
	exts := make([]ExtensionRecord, len(s.Extensions))
	for i := range s.Extensions {
		exts[i] = *s.Extensions[i].Clone()
	}

	prefs := make(map[string]any, len(s.UserPreferences))
	for k, v := range s.UserPreferences {
		prefs[k] = cloneValue(v)
	}

	counters := make(map[string]int64, len(s.UsageCounters))
	for k, v := range s.UsageCounters {
		counters[k] = v
	}

	return &SyncSnapshot{
		DeviceID:        s.DeviceID,
		BrowserContext:  s.BrowserContext,
		Timestamp:       s.Timestamp,
		Extensions:      exts,
		UserPreferences: prefs,
		UsageCounters:   counters,
	}
}
