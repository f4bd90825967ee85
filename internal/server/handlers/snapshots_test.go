package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/pkg/api"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSnapshotStorage keeps the latest snapshot per (account, device,
// context) with the same LWW rule as the sqlite implementation.
type fakeSnapshotStorage struct {
	snapshots map[string]*models.SyncSnapshot
}

func newFakeSnapshotStorage() *fakeSnapshotStorage {
	return &fakeSnapshotStorage{snapshots: make(map[string]*models.SyncSnapshot)}
}

func snapKey(accountID string, s *models.SyncSnapshot) string {
	return accountID + "/" + s.DeviceID + "/" + s.BrowserContext
}

func (f *fakeSnapshotStorage) SaveSnapshot(_ context.Context, accountID string, snapshot *models.SyncSnapshot) (bool, error) {
	key := snapKey(accountID, snapshot)
	if existing, ok := f.snapshots[key]; ok && !snapshot.NewerThan(existing) {
		return false, nil
	}
	f.snapshots[key] = snapshot.Clone()
	return true, nil
}

func (f *fakeSnapshotStorage) GetAccountSnapshots(_ context.Context, accountID, excludeDevice string) ([]*models.SyncSnapshot, error) {
	var out []*models.SyncSnapshot
	for key, snap := range f.snapshots {
		if len(key) > len(accountID) && key[:len(accountID)+1] == accountID+"/" && snap.DeviceID != excludeDevice {
			out = append(out, snap.Clone())
		}
	}
	return out, nil
}

func (f *fakeSnapshotStorage) GetAccountSnapshotsSince(_ context.Context, accountID string, since int64) ([]*models.SyncSnapshot, error) {
	var out []*models.SyncSnapshot
	for key, snap := range f.snapshots {
		if len(key) > len(accountID) && key[:len(accountID)+1] == accountID+"/" && snap.Timestamp > since {
			out = append(out, snap.Clone())
		}
	}
	return out, nil
}

func authedRequest(t *testing.T, method, path string, body any, accountID, deviceID string) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	ctx := context.WithValue(req.Context(), AccountIDKey, accountID)
	ctx = context.WithValue(ctx, DeviceIDKey, deviceID)
	return req.WithContext(ctx)
}

func wireSnapshot(device string, ts int64) api.Snapshot {
	return api.Snapshot{
		DeviceID:       device,
		BrowserContext: "desktop",
		Timestamp:      ts,
		Extensions: []api.ExtensionRecord{
			{ID: "ublock-origin", Version: "1.0.0", Enabled: true, LastModified: ts, OriginDevice: device},
		},
	}
}

func TestSnapshotsHandler_PushReturnsOtherDevices(t *testing.T) {
	store := newFakeSnapshotStorage()
	h := NewSnapshotsHandler(testLogger(), store)

	// Another device already uploaded its snapshot.
	_, err := store.SaveSnapshot(context.Background(), "acc-1", api.SnapshotToModel(&api.Snapshot{
		DeviceID:       "device-b",
		BrowserContext: "desktop",
		Timestamp:      time.Now().UnixMilli(),
	}))
	require.NoError(t, err)

	req := authedRequest(t, http.MethodPost, "/api/v1/snapshots",
		api.PushRequest{Snapshot: wireSnapshot("device-a", time.Now().UnixMilli())},
		"acc-1", "device-a")
	rec := httptest.NewRecorder()
	h.HandleSnapshots(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.PushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Snapshots, 1)
	assert.Equal(t, "device-b", resp.Snapshots[0].DeviceID)
	assert.NotZero(t, resp.ServerTime)
}

func TestSnapshotsHandler_PushRejectsForeignDeviceID(t *testing.T) {
	h := NewSnapshotsHandler(testLogger(), newFakeSnapshotStorage())

	// The token says device-a but the snapshot claims device-b.
	req := authedRequest(t, http.MethodPost, "/api/v1/snapshots",
		api.PushRequest{Snapshot: wireSnapshot("device-b", time.Now().UnixMilli())},
		"acc-1", "device-a")
	rec := httptest.NewRecorder()
	h.HandleSnapshots(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSnapshotsHandler_PushRejectsInvalidSnapshot(t *testing.T) {
	h := NewSnapshotsHandler(testLogger(), newFakeSnapshotStorage())

	snap := wireSnapshot("device-a", 0) // non-positive timestamp
	req := authedRequest(t, http.MethodPost, "/api/v1/snapshots",
		api.PushRequest{Snapshot: snap}, "acc-1", "device-a")
	rec := httptest.NewRecorder()
	h.HandleSnapshots(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotsHandler_PullSince(t *testing.T) {
	store := newFakeSnapshotStorage()
	h := NewSnapshotsHandler(testLogger(), store)
	ctx := context.Background()

	_, err := store.SaveSnapshot(ctx, "acc-1", api.SnapshotToModel(&api.Snapshot{
		DeviceID: "device-b", BrowserContext: "desktop", Timestamp: 1000,
	}))
	require.NoError(t, err)
	_, err = store.SaveSnapshot(ctx, "acc-1", api.SnapshotToModel(&api.Snapshot{
		DeviceID: "device-c", BrowserContext: "desktop", Timestamp: 2000,
	}))
	require.NoError(t, err)

	req := authedRequest(t, http.MethodGet, "/api/v1/snapshots?since=1000", nil, "acc-1", "device-a")
	rec := httptest.NewRecorder()
	h.HandleSnapshots(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.PullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Snapshots, 1)
	assert.Equal(t, "device-c", resp.Snapshots[0].DeviceID)
}

func TestSnapshotsHandler_PullInvalidSince(t *testing.T) {
	h := NewSnapshotsHandler(testLogger(), newFakeSnapshotStorage())

	req := authedRequest(t, http.MethodGet, "/api/v1/snapshots?since=yesterday", nil, "acc-1", "device-a")
	rec := httptest.NewRecorder()
	h.HandleSnapshots(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotsHandler_UnauthenticatedContext(t *testing.T) {
	h := NewSnapshotsHandler(testLogger(), newFakeSnapshotStorage())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil)
	rec := httptest.NewRecorder()
	h.HandleSnapshots(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
