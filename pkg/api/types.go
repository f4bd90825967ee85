// Package api holds the wire types of the relay protocol. The snapshot
// schema is stable across all transport providers.
package api

// ExtensionRecord is the wire form of one capability-module record.
type ExtensionRecord struct {
	Settings     map[string]any `json:"settings"`
	ID           string         `json:"id"`
	Version      string         `json:"version"`
	OriginDevice string         `json:"origin_device"`
	LastModified int64          `json:"last_modified"`
	Enabled      bool           `json:"enabled"`
}

// Snapshot is the wire form of a device snapshot.
type Snapshot struct {
	UserPreferences map[string]any    `json:"user_preferences"`
	UsageCounters   map[string]int64  `json:"usage_counters"`
	DeviceID        string            `json:"device_id"`
	BrowserContext  string            `json:"browser_context"`
	Extensions      []ExtensionRecord `json:"extensions"`
	Timestamp       int64             `json:"timestamp"`
}

// PushRequest uploads the device's current snapshot.
type PushRequest struct {
	Snapshot Snapshot `json:"snapshot"`
}

// PushResponse returns the latest known snapshot of every other device in
// the account, so one round trip both pushes and pulls.
type PushResponse struct {
	Snapshots  []Snapshot `json:"snapshots"`
	ServerTime int64      `json:"server_time"`
}

// PullResponse returns snapshots changed since the requested timestamp.
type PullResponse struct {
	Snapshots  []Snapshot `json:"snapshots"`
	ServerTime int64      `json:"server_time"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
