package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/extsync/internal/models"
)

// Conflicts lists the interaction conflict report history.
func (c *Cli) Conflicts(ctx context.Context) error {
	reports, err := c.reports.Reports(ctx)
	if err != nil {
		return fmt.Errorf("failed to load reports: %w", err)
	}

	if len(reports) == 0 {
		c.io.Println("No interaction conflicts recorded.")
		return nil
	}

	for i := range reports {
		r := &reports[i]

		label := string(r.Severity)
		if r.Synergy() {
			label = "synergy"
		}

		c.io.Printf("[%s] %s (%s/%s)\n", strings.ToUpper(string(r.Status)), r.RuleID, r.Type, label)
		c.io.Printf("  id:          %s\n", r.ID)
		c.io.Printf("  extensions:  %s\n", strings.Join(r.AffectedExtensionIDs, ", "))
		c.io.Printf("  detected:    %s\n", time.UnixMilli(r.DetectedAt).Format(time.RFC3339))
		c.io.Printf("  %s\n", r.Description)
		if len(r.SuggestedResolutions) > 0 && r.Status == models.ReportStatusActive {
			c.io.Printf("  suggestions: %s\n", strings.Join(r.SuggestedResolutions, "; "))
		}
		if r.Status == models.ReportStatusResolved {
			c.io.Printf("  resolution:  %s\n", r.Resolution)
		}
		c.io.Println()
	}
	return nil
}

// Resolve records an operator resolution for a report.
func (c *Cli) Resolve(ctx context.Context, id, note string) error {
	if err := c.reports.Resolve(ctx, id, note); err != nil {
		return err
	}
	c.io.Printf("Resolved %s\n", id)
	return nil
}
