package api

import "github.com/iudanet/extsync/internal/models"

// SnapshotFromModel converts the engine snapshot to its wire form.
func SnapshotFromModel(s *models.SyncSnapshot) Snapshot {
	exts := make([]ExtensionRecord, len(s.Extensions))
	for i := range s.Extensions {
		ext := &s.Extensions[i]
		exts[i] = ExtensionRecord{
			ID:           ext.ID,
			Enabled:      ext.Enabled,
			Settings:     ext.Settings,
			Version:      ext.Version,
			LastModified: ext.LastModified,
			OriginDevice: ext.OriginDevice,
		}
	}
	return Snapshot{
		DeviceID:        s.DeviceID,
		BrowserContext:  s.BrowserContext,
		Timestamp:       s.Timestamp,
		Extensions:      exts,
		UserPreferences: s.UserPreferences,
		UsageCounters:   s.UsageCounters,
	}
}

// SnapshotToModel converts a wire snapshot back to the engine form.
func SnapshotToModel(s *Snapshot) *models.SyncSnapshot {
	exts := make([]models.ExtensionRecord, len(s.Extensions))
	for i := range s.Extensions {
		ext := &s.Extensions[i]
		exts[i] = models.ExtensionRecord{
			ID:           ext.ID,
			Enabled:      ext.Enabled,
			Settings:     ext.Settings,
			Version:      ext.Version,
			LastModified: ext.LastModified,
			OriginDevice: ext.OriginDevice,
		}
	}
	return &models.SyncSnapshot{
		DeviceID:        s.DeviceID,
		BrowserContext:  s.BrowserContext,
		Timestamp:       s.Timestamp,
		Extensions:      exts,
		UserPreferences: s.UserPreferences,
		UsageCounters:   s.UsageCounters,
	}
}
