package models

// ConflictType classifies interaction conflicts between active extensions.
type ConflictType string

const (
	ConflictTypeResource      ConflictType = "resource"
	ConflictTypeAPI           ConflictType = "api"
	ConflictTypePerformance   ConflictType = "performance"
	ConflictTypeCompatibility ConflictType = "compatibility"
	ConflictTypeSecurity      ConflictType = "security"
)

// ConflictSeverity grades interaction conflicts. SeverityNone marks a
// beneficial synergy surfaced through the same report channel.
type ConflictSeverity string

const (
	SeverityNone     ConflictSeverity = "none"
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// ReportStatus is the lifecycle state of a ConflictReport.
type ReportStatus string

const (
	ReportStatusActive   ReportStatus = "active"
	ReportStatusResolved ReportStatus = "resolved"
)

// ConflictReport describes a functional problem (or synergy) arising from
// a combination of concurrently active extensions. Reports are append-only:
// they transition status but are never hard-deleted.
type ConflictReport struct {
	ID                   string           `json:"id"`
	RuleID               string           `json:"rule_id"`
	Type                 ConflictType     `json:"type"`
	Severity             ConflictSeverity `json:"severity"`
	Description          string           `json:"description"`
	Resolution           string           `json:"resolution,omitempty"`
	Status               ReportStatus     `json:"status"`
	AffectedExtensionIDs []string         `json:"affected_extension_ids"`
	SuggestedResolutions []string         `json:"suggested_resolutions"`
	DetectedAt           int64            `json:"detected_at"`
	ResolvedAt           int64            `json:"resolved_at,omitempty"`
}

// Synergy reports whether this is a beneficial combination rather than a
// problem. Synergies never count toward active-conflict totals.
func (r *ConflictReport) Synergy() bool {
	return r.Severity == SeverityNone
}

// AutoResolvable reports whether the engine may resolve this report
// without operator action: only low-severity performance conflicts.
func (r *ConflictReport) AutoResolvable() bool {
	return r.Severity == SeverityLow && r.Type == ConflictTypePerformance
}
