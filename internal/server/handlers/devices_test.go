package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/server/storage"
	"github.com/iudanet/extsync/pkg/api"
)

// fakeDeviceStorage is an in-memory DeviceStorage for handler tests.
type fakeDeviceStorage struct {
	devices map[string]*models.Device
}

func newFakeDeviceStorage() *fakeDeviceStorage {
	return &fakeDeviceStorage{devices: make(map[string]*models.Device)}
}

func deviceKey(accountID, deviceID string) string {
	return accountID + "/" + deviceID
}

func (f *fakeDeviceStorage) CreateDevice(_ context.Context, device *models.Device) error {
	key := deviceKey(device.AccountID, device.ID)
	if _, exists := f.devices[key]; exists {
		return storage.ErrDeviceAlreadyExists
	}
	f.devices[key] = device
	return nil
}

func (f *fakeDeviceStorage) GetDevice(_ context.Context, accountID, deviceID string) (*models.Device, error) {
	device, ok := f.devices[deviceKey(accountID, deviceID)]
	if !ok {
		return nil, storage.ErrDeviceNotFound
	}
	return device, nil
}

func (f *fakeDeviceStorage) UpdateLastSeen(_ context.Context, accountID, deviceID string, seen time.Time) error {
	device, ok := f.devices[deviceKey(accountID, deviceID)]
	if !ok {
		return storage.ErrDeviceNotFound
	}
	device.LastSeen = seen
	return nil
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:         []byte("test-secret"),
		AccessTokenTTL: 15 * time.Minute,
	}
}

func newDevicesHandler(devices storage.DeviceStorage) *DevicesHandler {
	return NewDevicesHandler(testLogger(), devices, testJWTConfig())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestDevicesHandler_Register(t *testing.T) {
	h := newDevicesHandler(newFakeDeviceStorage())

	rec := postJSON(t, h.Register, "/api/v1/devices/register", api.RegisterRequest{
		AccountID:   "acc-1",
		DeviceID:    "device-a",
		AuthKeyHash: "deadbeef",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp api.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Message)
}

func TestDevicesHandler_RegisterDuplicate(t *testing.T) {
	h := newDevicesHandler(newFakeDeviceStorage())

	req := api.RegisterRequest{AccountID: "acc-1", DeviceID: "device-a", AuthKeyHash: "deadbeef"}
	rec := postJSON(t, h.Register, "/api/v1/devices/register", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Same device, same auth key: idempotent.
	rec = postJSON(t, h.Register, "/api/v1/devices/register", req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same device, different auth key: conflict.
	req.AuthKeyHash = "other"
	rec = postJSON(t, h.Register, "/api/v1/devices/register", req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDevicesHandler_RegisterValidation(t *testing.T) {
	h := newDevicesHandler(newFakeDeviceStorage())

	tests := []struct {
		name string
		req  api.RegisterRequest
	}{
		{"missing account", api.RegisterRequest{DeviceID: "device-a", AuthKeyHash: "x"}},
		{"bad account id", api.RegisterRequest{AccountID: "!!", DeviceID: "device-a", AuthKeyHash: "x"}},
		{"missing device", api.RegisterRequest{AccountID: "acc-1", AuthKeyHash: "x"}},
		{"missing hash", api.RegisterRequest{AccountID: "acc-1", DeviceID: "device-a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Register, "/api/v1/devices/register", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDevicesHandler_Login(t *testing.T) {
	devices := newFakeDeviceStorage()
	h := newDevicesHandler(devices)

	rec := postJSON(t, h.Register, "/api/v1/devices/register", api.RegisterRequest{
		AccountID:   "acc-1",
		DeviceID:    "device-a",
		AuthKeyHash: "deadbeef",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, h.Login, "/api/v1/devices/login", api.LoginRequest{
		AccountID:   "acc-1",
		DeviceID:    "device-a",
		AuthKeyHash: "deadbeef",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), resp.ExpiresIn)

	// The token must carry the device identity.
	claims, err := ValidateAccessToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "device-a", claims.DeviceID)
}

func TestDevicesHandler_LoginInvalidCredentials(t *testing.T) {
	devices := newFakeDeviceStorage()
	h := newDevicesHandler(devices)

	rec := postJSON(t, h.Register, "/api/v1/devices/register", api.RegisterRequest{
		AccountID:   "acc-1",
		DeviceID:    "device-a",
		AuthKeyHash: "deadbeef",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Wrong auth key hash.
	rec = postJSON(t, h.Login, "/api/v1/devices/login", api.LoginRequest{
		AccountID:   "acc-1",
		DeviceID:    "device-a",
		AuthKeyHash: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown device looks exactly like a wrong key.
	rec = postJSON(t, h.Login, "/api/v1/devices/login", api.LoginRequest{
		AccountID:   "acc-1",
		DeviceID:    "device-b",
		AuthKeyHash: "deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidateAccessToken_RejectsTampered(t *testing.T) {
	cfg := testJWTConfig()
	token, _, err := GenerateAccessToken(cfg, "acc-1", "device-a")
	require.NoError(t, err)

	_, err = ValidateAccessToken(JWTConfig{Secret: []byte("other-secret")}, token)
	assert.Error(t, err)

	_, err = ValidateAccessToken(cfg, token+"x")
	assert.Error(t, err)
}
