// Package analyzer evaluates the resolved active extension set against a
// declarative interaction-rule table. It reports functional conflicts
// between concurrently active extensions, which are unrelated to the data
// conflicts the sync pipeline resolves.
package analyzer

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/extsync/internal/models"
)

// Analyzer matches activation sets against its rule table.
type Analyzer struct {
	logger *slog.Logger
	now    func() time.Time
	rules  []Rule
}

// New creates an Analyzer over the given rule table; nil means DefaultRules.
func New(logger *slog.Logger, rules []Rule) *Analyzer {
	if rules == nil {
		rules = DefaultRules
	}
	return &Analyzer{logger: logger, rules: rules, now: time.Now}
}

// Analyze returns one ConflictReport per rule whose full trigger set is
// contained in the active ids. Reports come back in rule-table order with
// fresh ids and status active.
func (a *Analyzer) Analyze(activeIDs []string) []models.ConflictReport {
	active := make(map[string]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	detectedAt := a.now().UnixMilli()
	var reports []models.ConflictReport

	for _, rule := range a.rules {
		if !triggered(rule, active) {
			continue
		}

		affected := append([]string(nil), rule.Trigger...)
		sort.Strings(affected)

		reports = append(reports, models.ConflictReport{
			ID:                   uuid.New().String(),
			RuleID:               rule.ID,
			Type:                 rule.Type,
			Severity:             rule.Severity,
			Description:          rule.Description,
			AffectedExtensionIDs: affected,
			SuggestedResolutions: append([]string(nil), rule.SuggestedResolutions...),
			Status:               models.ReportStatusActive,
			DetectedAt:           detectedAt,
		})
	}

	if len(reports) > 0 {
		a.logger.Debug("Interaction analysis produced reports",
			"active_extensions", len(activeIDs), "reports", len(reports))
	}
	return reports
}

func triggered(rule Rule, active map[string]struct{}) bool {
	if len(rule.Trigger) == 0 {
		return false
	}
	for _, id := range rule.Trigger {
		if _, ok := active[id]; !ok {
			return false
		}
	}
	return true
}

// ActiveConflictCount counts genuinely problematic active reports.
// Synergies (severity none) are surfaced but never counted.
func ActiveConflictCount(reports []models.ConflictReport) int {
	count := 0
	for i := range reports {
		if reports[i].Status == models.ReportStatusActive && !reports[i].Synergy() {
			count++
		}
	}
	return count
}
