package analyzer

import "github.com/iudanet/extsync/internal/models"

// Rule declares one known interaction between capability modules. A rule
// fires when every id in Trigger is concurrently active. Rules are
// evaluated independently; one activation set can fire several rules.
type Rule struct {
	ID                   string
	Type                 models.ConflictType
	Severity             models.ConflictSeverity
	Description          string
	Trigger              []string
	SuggestedResolutions []string
}

// DefaultRules is the built-in interaction table. Severity "none" entries
// describe beneficial synergies surfaced through the same channel.
var DefaultRules = []Rule{
	{
		ID:          "dual-content-blockers",
		Trigger:     []string{"ublock-origin", "adblock-plus"},
		Type:        models.ConflictTypeResource,
		Severity:    models.SeverityHigh,
		Description: "Two content blockers filter every request twice and fight over the same element-hiding rules.",
		SuggestedResolutions: []string{
			"Disable adblock-plus and keep ublock-origin",
			"Disable ublock-origin and keep adblock-plus",
		},
	},
	{
		ID:          "blocker-grammar-overlap",
		Trigger:     []string{"ublock-origin", "grammarly"},
		Type:        models.ConflictTypePerformance,
		Severity:    models.SeverityLow,
		Description: "Cosmetic filtering re-triggers Grammarly's DOM scanning on heavy pages, adding input latency.",
		SuggestedResolutions: []string{
			"Add an exception for editor domains in ublock-origin",
			"Restrict grammarly to selected sites",
		},
	},
	{
		ID:          "competing-autofill",
		Trigger:     []string{"bitwarden", "lastpass"},
		Type:        models.ConflictTypeAPI,
		Severity:    models.SeverityMedium,
		Description: "Both password managers register for the credential autofill API; only one can win each form.",
		SuggestedResolutions: []string{
			"Keep a single password manager active",
			"Disable autofill in one of the two",
		},
	},
	{
		ID:          "competing-grammar-checkers",
		Trigger:     []string{"grammarly", "languagetool"},
		Type:        models.ConflictTypeAPI,
		Severity:    models.SeverityMedium,
		Description: "Two grammar checkers annotate the same editable fields and double-underline every finding.",
		SuggestedResolutions: []string{
			"Keep a single grammar checker active",
		},
	},
	{
		ID:          "theme-engine-clash",
		Trigger:     []string{"dark-reader", "midnight-lizard"},
		Type:        models.ConflictTypeCompatibility,
		Severity:    models.SeverityMedium,
		Description: "Both extensions rewrite page colors; stacking their filters produces unreadable output.",
		SuggestedResolutions: []string{
			"Disable midnight-lizard and keep dark-reader",
			"Disable dark-reader and keep midnight-lizard",
		},
	},
	{
		ID:          "dual-proxy-control",
		Trigger:     []string{"proton-vpn", "windscribe"},
		Type:        models.ConflictTypeSecurity,
		Severity:    models.SeverityCritical,
		Description: "Two VPN extensions contend for proxy settings; traffic can silently fall back to the direct connection.",
		SuggestedResolutions: []string{
			"Keep exactly one VPN extension enabled",
		},
	},
	{
		ID:          "blocker-badger-synergy",
		Trigger:     []string{"ublock-origin", "privacy-badger"},
		Type:        models.ConflictTypePerformance,
		Severity:    models.SeverityNone,
		Description: "Privacy Badger's learned trackers complement static filter lists; combined coverage improves.",
		SuggestedResolutions: []string{
			"No action needed",
		},
	},
}
