// Package api is the agent's HTTP client for the relay's credential
// endpoints. Snapshot traffic goes through the cloud transport provider;
// this client only registers and logs in devices.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iudanet/extsync/pkg/api"
)

// Client talks to the relay server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a relay client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Register registers this device under an account.
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.post(ctx, "/api/v1/devices/register", req, &resp); err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	return &resp, nil
}

// Login authenticates the device and returns an access token.
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.post(ctx, "/api/v1/devices/login", req, &resp); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Message != "" {
			return fmt.Errorf("relay returned %d: %s", resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
