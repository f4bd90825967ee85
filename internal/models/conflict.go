package models

// ResolutionStrategy names how a data-field conflict gets resolved.
type ResolutionStrategy string

const (
	// ResolutionLatestWins picks the candidate from the most recent snapshot. Default.
	ResolutionLatestWins ResolutionStrategy = "latest_wins"
	// ResolutionMerge deep-merges object-valued candidates.
	ResolutionMerge ResolutionStrategy = "merge"
	// ResolutionLocalWins keeps the local device's value (manual override).
	ResolutionLocalWins ResolutionStrategy = "local_wins"
	// ResolutionManual defers to the user; the conflict stays pending and
	// the disputed value must not be applied until resolved.
	ResolutionManual ResolutionStrategy = "manual"
)

// CandidateValue is one side of a field disagreement together with the
// provenance used by the recency rule.
type CandidateValue struct {
	Value           any    `json:"value"`
	SourceDevice    string `json:"source_device"`
	SourceTimestamp int64  `json:"source_timestamp"`
}

// DataConflict records a field on which two or more merge inputs
// disagreed. Conflicts are created during merge and resolved within the
// same cycle; resolved conflicts are kept as an audit trail.
type DataConflict struct {
	ResolvedValue any                `json:"resolved_value,omitempty"`
	ID            string             `json:"id"`
	EntityID      string             `json:"entity_id"` // extension id, or "preferences"
	Field         string             `json:"field"`
	Resolution    ResolutionStrategy `json:"resolution,omitempty"`
	Candidates    []CandidateValue   `json:"candidates"`
	DetectedAt    int64              `json:"detected_at"`
	ResolvedAt    int64              `json:"resolved_at,omitempty"`
}

// Resolved reports whether a concrete resolution has been recorded.
// Conflicts under the manual strategy stay unresolved until user input.
func (c *DataConflict) Resolved() bool {
	return c.ResolvedAt != 0
}
