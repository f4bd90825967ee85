package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iudanet/extsync/internal/models"
)

// Install registers a new extension record in the local registry.
func (c *Cli) Install(ctx context.Context, id, version string) error {
	record := models.ExtensionRecord{
		ID:      id,
		Version: version,
		Enabled: true,
	}
	if err := c.registry.InstallExtension(ctx, record); err != nil {
		return err
	}
	c.io.Printf("Installed %s %s (enabled)\n", id, version)
	return nil
}

// Enable turns an extension on.
func (c *Cli) Enable(ctx context.Context, id string) error {
	if err := c.registry.SetExtensionEnabled(ctx, id, true); err != nil {
		return err
	}
	c.io.Printf("Enabled %s\n", id)
	return nil
}

// Disable turns an extension off.
func (c *Cli) Disable(ctx context.Context, id string) error {
	if err := c.registry.SetExtensionEnabled(ctx, id, false); err != nil {
		return err
	}
	c.io.Printf("Disabled %s\n", id)
	return nil
}

// Set overlays one settings key of an extension. The value is parsed as
// JSON so objects and numbers survive; anything unparsable is kept as a
// string.
func (c *Cli) Set(ctx context.Context, id, key, rawValue string) error {
	if err := c.registry.UpdateExtensionSettings(ctx, id, map[string]any{key: parseValue(rawValue)}); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	c.io.Printf("Set %s.%s = %s\n", id, key, rawValue)
	return nil
}

// SetPreference writes one top-level user preference.
func (c *Cli) SetPreference(ctx context.Context, key, rawValue string) error {
	if err := c.registry.SetPreference(ctx, key, parseValue(rawValue)); err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	c.io.Printf("Set %s = %s\n", key, rawValue)
	return nil
}

func parseValue(raw string) any {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	return value
}
