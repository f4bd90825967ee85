// Package registry is the extension-state source of truth the engine
// reads local configuration from and writes resolved state back to.
package registry

import (
	"context"

	"github.com/iudanet/extsync/internal/models"
)

//go:generate moq -out registry_mock.go . Registry

// Registry is the collaborator contract. Mutations count as local changes:
// implementations stamp records with the local device and current time and
// bump the usage counters the additive merge consumes.
type Registry interface {
	// GetAllExtensions returns every installed extension record.
	GetAllExtensions(ctx context.Context) ([]models.ExtensionRecord, error)

	// SetExtensionEnabled toggles one extension.
	SetExtensionEnabled(ctx context.Context, id string, enabled bool) error

	// UpdateExtensionSettings overlays settings keys of one extension.
	UpdateExtensionSettings(ctx context.Context, id string, settings map[string]any) error

	// InstallExtension registers a new extension record.
	InstallExtension(ctx context.Context, record models.ExtensionRecord) error

	// Preferences returns the user preference tree.
	Preferences(ctx context.Context) (map[string]any, error)

	// SetPreference sets one top-level preference key.
	SetPreference(ctx context.Context, key string, value any) error

	// Counters returns the device's cumulative usage counters.
	Counters(ctx context.Context) (map[string]int64, error)

	// ApplyResolved replaces extensions and preferences with the merged
	// canonical state after a successful sync cycle.
	ApplyResolved(ctx context.Context, state *models.MergedState) error
}

// Counter names bumped by local mutations.
const (
	CounterExtensionToggles = "extension_toggles"
	CounterSettingsWrites   = "settings_writes"
	CounterSyncCycles       = "sync_cycles"
)
