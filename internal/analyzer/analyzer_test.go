package analyzer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
)

func newTestAnalyzer() *Analyzer {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestAnalyze_UblockGrammarly(t *testing.T) {
	a := newTestAnalyzer()

	reports := a.Analyze([]string{"ublock-origin", "grammarly"})

	require.Len(t, reports, 1, "exactly one rule fires for this pair")
	r := reports[0]
	assert.Equal(t, models.ConflictTypePerformance, r.Type)
	assert.Equal(t, models.SeverityLow, r.Severity)
	assert.Equal(t, []string{"grammarly", "ublock-origin"}, r.AffectedExtensionIDs)
	assert.Equal(t, models.ReportStatusActive, r.Status)
	assert.True(t, r.AutoResolvable())
}

func TestAnalyze_NoConflictsForSingleExtension(t *testing.T) {
	a := newTestAnalyzer()

	assert.Empty(t, a.Analyze([]string{"ublock-origin"}))
	assert.Empty(t, a.Analyze(nil))
}

func TestAnalyze_RulesFireIndependently(t *testing.T) {
	a := newTestAnalyzer()

	// ublock-origin participates in three rules of this set.
	reports := a.Analyze([]string{"ublock-origin", "adblock-plus", "grammarly", "privacy-badger"})

	rules := make(map[string]models.ConflictReport, len(reports))
	for _, r := range reports {
		rules[r.RuleID] = r
	}
	require.Len(t, reports, 3, "one combination can be flagged by multiple rules")
	assert.Contains(t, rules, "dual-content-blockers")
	assert.Contains(t, rules, "blocker-grammar-overlap")
	assert.Contains(t, rules, "blocker-badger-synergy")
}

func TestAnalyze_SynergyIsSurfacedButNotCounted(t *testing.T) {
	a := newTestAnalyzer()

	reports := a.Analyze([]string{"ublock-origin", "privacy-badger"})
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Synergy())
	assert.False(t, reports[0].AutoResolvable(), "synergies need no resolution at all")

	assert.Zero(t, ActiveConflictCount(reports), "severity none never counts toward active totals")
}

func TestAnalyze_SecurityConflictNotAutoResolvable(t *testing.T) {
	a := newTestAnalyzer()

	reports := a.Analyze([]string{"proton-vpn", "windscribe"})
	require.Len(t, reports, 1)
	assert.Equal(t, models.ConflictTypeSecurity, reports[0].Type)
	assert.Equal(t, models.SeverityCritical, reports[0].Severity)
	assert.False(t, reports[0].AutoResolvable())
}

func TestActiveConflictCount(t *testing.T) {
	reports := []models.ConflictReport{
		{Status: models.ReportStatusActive, Severity: models.SeverityHigh},
		{Status: models.ReportStatusActive, Severity: models.SeverityNone},
		{Status: models.ReportStatusResolved, Severity: models.SeverityCritical},
	}
	assert.Equal(t, 1, ActiveConflictCount(reports))
}
