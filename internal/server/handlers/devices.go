// Package handlers implements the relay's HTTP endpoints: device
// registration and login, snapshot push/pull, and health.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/server/storage"
	"github.com/iudanet/extsync/pkg/api"
)

// identifier format shared by account and device ids
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{1,63}$`)

// DevicesHandler handles device registration and login
type DevicesHandler struct {
	logger    *slog.Logger
	devices   storage.DeviceStorage
	jwtConfig JWTConfig
}

// NewDevicesHandler creates a handler over the device storage
func NewDevicesHandler(logger *slog.Logger, devices storage.DeviceStorage, jwtConfig JWTConfig) *DevicesHandler {
	return &DevicesHandler{
		logger:    logger,
		devices:   devices,
		jwtConfig: jwtConfig,
	}
}

// Register handles POST /api/v1/devices/register
func (h *DevicesHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode register request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !idPattern.MatchString(req.AccountID) {
		h.sendError(w, "invalid account_id", http.StatusBadRequest)
		return
	}
	if !idPattern.MatchString(req.DeviceID) {
		h.sendError(w, "invalid device_id", http.StatusBadRequest)
		return
	}
	if req.AuthKeyHash == "" {
		h.sendError(w, "auth_key_hash is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	device := &models.Device{
		AccountID:   req.AccountID,
		ID:          req.DeviceID,
		AuthKeyHash: req.AuthKeyHash,
		CreatedAt:   now,
		LastSeen:    now,
	}

	if err := h.devices.CreateDevice(ctx, device); err != nil {
		if errors.Is(err, storage.ErrDeviceAlreadyExists) {
			// Repeating a registration with the same auth key is a no-op.
			existing, getErr := h.devices.GetDevice(ctx, req.AccountID, req.DeviceID)
			if getErr == nil && existing.AuthKeyHash == req.AuthKeyHash {
				h.sendJSON(w, api.RegisterResponse{Message: "Device already registered"}, http.StatusOK)
				return
			}
			h.logger.WarnContext(ctx, "device already registered with different key",
				slog.String("account_id", req.AccountID), slog.String("device_id", req.DeviceID))
			h.sendError(w, "device already registered", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create device", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "device registered",
		slog.String("account_id", req.AccountID), slog.String("device_id", req.DeviceID))

	h.sendJSON(w, api.RegisterResponse{Message: "Device registered successfully"}, http.StatusCreated)
}

// Login handles POST /api/v1/devices/login
func (h *DevicesHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.AccountID == "" || req.DeviceID == "" || req.AuthKeyHash == "" {
		h.sendError(w, "account_id, device_id and auth_key_hash are required", http.StatusBadRequest)
		return
	}

	device, err := h.devices.GetDevice(ctx, req.AccountID, req.DeviceID)
	if err != nil {
		if errors.Is(err, storage.ErrDeviceNotFound) {
			h.logger.WarnContext(ctx, "login failed: device not found",
				slog.String("account_id", req.AccountID), slog.String("device_id", req.DeviceID))
			h.sendError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get device", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// The client sends the deterministic SHA-256 of its derived auth key;
	// comparison is a plain string match.
	if device.AuthKeyHash != req.AuthKeyHash {
		h.logger.WarnContext(ctx, "login failed: invalid auth key",
			slog.String("account_id", req.AccountID), slog.String("device_id", req.DeviceID))
		h.sendError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, device.AccountID, device.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.devices.UpdateLastSeen(ctx, device.AccountID, device.ID, time.Now()); err != nil {
		// Not critical, log and continue.
		h.logger.WarnContext(ctx, "failed to update last seen", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "device logged in",
		slog.String("account_id", device.AccountID), slog.String("device_id", device.ID))

	h.sendJSON(w, api.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}

// sendJSON writes a JSON response
func (h *DevicesHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError writes a JSON error response
func (h *DevicesHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	h.sendJSON(w, resp, statusCode)
}
