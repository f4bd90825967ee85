package merge

import (
	"sort"

	"github.com/iudanet/extsync/internal/models"
)

// Candidate is one proposed value for a single field of a single entity,
// together with the provenance the recency rule orders by.
type Candidate struct {
	Value     any
	DeviceID  string
	Timestamp int64
}

// NewerThan orders candidates by (Timestamp, DeviceID), matching the
// tie-break used everywhere else in the pipeline.
func (c Candidate) NewerThan(other Candidate) bool {
	if c.Timestamp != other.Timestamp {
		return c.Timestamp > other.Timestamp
	}
	return c.DeviceID > other.DeviceID
}

// FieldKey addresses one mergeable field: EntityID is an extension id or
// the pseudo-entity "preferences"; Field is "enabled", "version",
// "settings.<key>" or a dotted preference path.
type FieldKey struct {
	EntityID string
	Field    string
}

// PreferencesEntity is the pseudo-entity id used for user preferences.
const PreferencesEntity = "preferences"

// CollectCandidates flattens merge sources into per-field candidate
// lists. Both the merger and the conflict detector run over this view, so
// winner selection and conflict audit always agree.
func CollectCandidates(sources []*models.SyncSnapshot) map[FieldKey][]Candidate {
	out := make(map[FieldKey][]Candidate)

	add := func(key FieldKey, c Candidate) {
		out[key] = append(out[key], c)
	}

	for _, snap := range sources {
		for i := range snap.Extensions {
			ext := &snap.Extensions[i]
			ts := ext.LastModified
			if ts == 0 {
				ts = snap.Timestamp
			}
			device := ext.OriginDevice
			if device == "" {
				device = snap.DeviceID
			}

			add(FieldKey{ext.ID, "enabled"}, Candidate{Value: ext.Enabled, Timestamp: ts, DeviceID: device})
			add(FieldKey{ext.ID, "version"}, Candidate{Value: ext.Version, Timestamp: ts, DeviceID: device})
			for k, v := range ext.Settings {
				add(FieldKey{ext.ID, "settings." + k}, Candidate{Value: v, Timestamp: ts, DeviceID: device})
			}
		}

		for path, c := range flattenPrefs("", snap.UserPreferences, snap) {
			add(FieldKey{PreferencesEntity, path}, c)
		}
	}

	for key := range out {
		cands := out[key]
		sort.Slice(cands, func(i, j int) bool { return cands[i].NewerThan(cands[j]) })
	}

	return out
}

// flattenPrefs walks the preference tree down to its leaves. Leaf-level
// granularity is what makes the preference merge structural rather than
// wholesale.
func flattenPrefs(prefix string, prefs map[string]any, snap *models.SyncSnapshot) map[string]Candidate {
	out := make(map[string]Candidate)
	for k, v := range prefs {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for p, c := range flattenPrefs(path, nested, snap) {
				out[p] = c
			}
			continue
		}
		out[path] = Candidate{Value: v, Timestamp: snap.Timestamp, DeviceID: snap.DeviceID}
	}
	return out
}

// Winner returns the candidate the recency rule selects. Candidates are
// assumed sorted newest-first, as CollectCandidates produces them.
func Winner(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	return cands[0], true
}

// Distinct returns the subset of candidates carrying distinct values,
// newest first. A field is conflicted when len(Distinct) > 1.
func Distinct(cands []Candidate) []Candidate {
	var out []Candidate
	for _, c := range cands {
		dup := false
		for _, seen := range out {
			if valuesEqual(seen.Value, c.Value) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}
