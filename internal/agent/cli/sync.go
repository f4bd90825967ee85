package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/extsync/internal/analyzer"
)

// Sync runs one cycle immediately.
func (c *Cli) Sync(ctx context.Context) error {
	c.io.Println("Starting sync cycle...")

	result, err := c.orch.SyncNow(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if result.Queued {
		c.io.Println("Offline or all channels failed: snapshot queued for retry.")
		if result.Error != nil {
			c.io.Printf("Last transport error: %v\n", result.Error)
		}
		return nil
	}

	c.io.Println("Sync completed.")
	if result.MergedState != nil {
		c.io.Printf("Extensions:      %d\n", len(result.MergedState.Extensions))
	}
	c.io.Printf("Data conflicts:  %d (resolved automatically)\n", len(result.Conflicts))

	if active := analyzer.ActiveConflictCount(result.Reports); active > 0 {
		c.io.Printf("Interaction conflicts: %d active, run 'extsync conflicts'\n", active)
	}
	return nil
}
