package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/extsync/internal/server/storage"
	"github.com/iudanet/extsync/pkg/api"
)

// contextKey is the type for request context keys
type contextKey string

const (
	// AccountIDKey holds the authenticated account id
	AccountIDKey contextKey = "account_id"
	// DeviceIDKey holds the authenticated device id
	DeviceIDKey contextKey = "device_id"
)

// GetAccountID extracts the account id from the request context
func GetAccountID(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(AccountIDKey).(string)
	return accountID, ok
}

// GetDeviceID extracts the device id from the request context
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(DeviceIDKey).(string)
	return deviceID, ok
}

// SnapshotsHandler handles snapshot push and pull
type SnapshotsHandler struct {
	logger    *slog.Logger
	snapshots storage.SnapshotStorage
}

// NewSnapshotsHandler creates a handler over the snapshot storage
func NewSnapshotsHandler(logger *slog.Logger, snapshots storage.SnapshotStorage) *SnapshotsHandler {
	return &SnapshotsHandler{
		logger:    logger,
		snapshots: snapshots,
	}
}

// HandleSnapshots dispatches GET and POST /api/v1/snapshots
func (h *SnapshotsHandler) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID, ok := GetAccountID(ctx)
	if !ok {
		h.logger.Error("Account ID not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	deviceID, ok := GetDeviceID(ctx)
	if !ok {
		h.logger.Error("Device ID not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handlePull(w, r, accountID)
	case http.MethodPost:
		h.handlePush(w, r, accountID, deviceID)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePush handles POST /api/v1/snapshots: stores the uploaded snapshot
// and returns the latest snapshot of every other device in the account, so
// one round trip both pushes and pulls.
func (h *SnapshotsHandler) handlePush(w http.ResponseWriter, r *http.Request, accountID, deviceID string) {
	ctx := r.Context()

	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode push request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// The token decides whose snapshot this is.
	if req.Snapshot.DeviceID != deviceID {
		h.logger.Warn("Snapshot device_id mismatch",
			"expected", deviceID, "got", req.Snapshot.DeviceID)
		http.Error(w, "snapshot device_id mismatch", http.StatusForbidden)
		return
	}

	snapshot := api.SnapshotToModel(&req.Snapshot)
	if err := snapshot.Validate(); err != nil {
		h.logger.Warn("Invalid snapshot", "error", err, "device_id", deviceID)
		http.Error(w, "Invalid snapshot", http.StatusBadRequest)
		return
	}

	saved, err := h.snapshots.SaveSnapshot(ctx, accountID, snapshot)
	if err != nil {
		h.logger.Error("Failed to save snapshot", "error", err, "device_id", deviceID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	others, err := h.snapshots.GetAccountSnapshots(ctx, accountID, deviceID)
	if err != nil {
		h.logger.Error("Failed to get account snapshots", "error", err, "account_id", accountID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.PushResponse{
		Snapshots:  make([]api.Snapshot, 0, len(others)),
		ServerTime: time.Now().UnixMilli(),
	}
	for _, snap := range others {
		resp.Snapshots = append(resp.Snapshots, api.SnapshotFromModel(snap))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}

	h.logger.Info("Snapshot push completed",
		"account_id", accountID,
		"device_id", deviceID,
		"stored", saved,
		"returned_snapshots", len(resp.Snapshots))
}

// handlePull handles GET /api/v1/snapshots?since=timestamp
func (h *SnapshotsHandler) handlePull(w http.ResponseWriter, r *http.Request, accountID string) {
	ctx := r.Context()

	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			h.logger.Warn("Invalid since parameter", "since", sinceStr, "error", err)
			http.Error(w, "Invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	snaps, err := h.snapshots.GetAccountSnapshotsSince(ctx, accountID, since)
	if err != nil {
		h.logger.Error("Failed to get account snapshots", "error", err, "account_id", accountID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.PullResponse{
		Snapshots:  make([]api.Snapshot, 0, len(snaps)),
		ServerTime: time.Now().UnixMilli(),
	}
	for _, snap := range snaps {
		resp.Snapshots = append(resp.Snapshots, api.SnapshotFromModel(snap))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}

	h.logger.Info("Snapshot pull completed",
		"account_id", accountID, "since", since, "snapshots", len(resp.Snapshots))
}
