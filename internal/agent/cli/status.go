package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/extsync/internal/models"
)

// Status prints the sync and session state.
func (c *Cli) Status(ctx context.Context) error {
	c.io.Println("=== Sync Status ===")
	c.io.Println()

	auth, err := c.loadAuth(ctx)
	if err != nil {
		return err
	}
	if auth == nil {
		c.io.Println("Session: not logged in")
	} else {
		c.io.Printf("Session: %s / %s\n", auth.AccountID, auth.DeviceID)
		expiresAt := time.Unix(auth.ExpiresAt, 0)
		if time.Now().After(expiresAt) {
			c.io.Println("Token:   expired, run 'extsync login' again")
		} else {
			c.io.Printf("Token:   valid until %s\n", expiresAt.Format(time.RFC3339))
		}
	}
	c.io.Println()

	status, err := c.orch.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sync status: %w", err)
	}

	c.io.Printf("Sync enabled:  %t\n", status.Enabled)
	c.io.Printf("Online:        %t\n", status.Online)
	if status.LastSyncTime.IsZero() {
		c.io.Println("Last sync:     never")
	} else {
		c.io.Printf("Last sync:     %s\n", status.LastSyncTime.Format(time.RFC3339))
	}
	if !status.NextSyncTime.IsZero() {
		c.io.Printf("Next sync:     %s\n", status.NextSyncTime.Format(time.RFC3339))
	}
	c.io.Printf("Queue length:  %d\n", status.QueueLength)

	// Failed queue items need operator attention.
	items, err := c.queue.Items(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	failed := 0
	for i := range items {
		if items[i].Status == models.QueueStatusFailed {
			failed++
		}
	}
	if failed > 0 {
		c.io.Printf("Failed items:  %d (exceeded retry ceiling)\n", failed)
	}

	active, err := c.reports.ActiveConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read conflict reports: %w", err)
	}
	c.io.Printf("Active interaction conflicts: %d\n", active)
	if active > 0 {
		c.io.Println("Run 'extsync conflicts' for details.")
	}

	return nil
}
