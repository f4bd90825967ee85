// Package cloud implements the CloudDocument provider: snapshots are
// exchanged through the extsync relay server over HTTP. One POST both
// pushes the local snapshot and pulls the latest snapshot of every other
// device in the account.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/transport"
	"github.com/iudanet/extsync/pkg/api"
)

//go:generate moq -out tokensource_mock.go . TokenSource

// TokenSource supplies the Bearer token for relay requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Provider is the HTTP client side of the relay protocol.
type Provider struct {
	httpClient *http.Client
	tokens     TokenSource
	baseURL    string
	maxRetries uint64
}

// NewProvider creates a cloud provider against the given relay base URL.
func NewProvider(baseURL string, tokens TokenSource) *Provider {
	return &Provider{
		baseURL:    baseURL,
		tokens:     tokens,
		maxRetries: 3,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements transport.Provider.
func (p *Provider) Name() string {
	return transport.NameCloudDocument
}

// Send implements transport.Provider. Transient failures (network errors,
// 5xx) are retried with exponential backoff before the error is reported
// to the cycle; 4xx responses fail immediately.
func (p *Provider) Send(ctx context.Context, snapshot *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, transport.NewError(p.Name(), false, fmt.Errorf("no access token: %w", err))
	}

	reqBody := api.PushRequest{Snapshot: api.SnapshotFromModel(snapshot)}

	var resp api.PushResponse
	backoff := retry.WithMaxRetries(p.maxRetries, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return p.doRequest(ctx, http.MethodPost, "/api/v1/snapshots", token, reqBody, &resp)
	})
	if err != nil {
		return nil, transport.NewError(p.Name(), true, err)
	}

	out := make([]*models.SyncSnapshot, 0, len(resp.Snapshots))
	for i := range resp.Snapshots {
		out = append(out, api.SnapshotToModel(&resp.Snapshots[i]))
	}
	return out, nil
}

// doRequest performs one HTTP exchange. Errors worth retrying are wrapped
// with retry.RetryableError.
func (p *Provider) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode >= 500 {
		return retry.RetryableError(fmt.Errorf("server error %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if jsonErr := json.Unmarshal(respBody, &errResp); jsonErr == nil && errResp.Error != "" {
			return fmt.Errorf("relay rejected request (%d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// StaticToken is a TokenSource returning a fixed token, used in tests and
// one-shot CLI invocations.
type StaticToken string

// AccessToken implements TokenSource.
func (t StaticToken) AccessToken(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("empty access token")
	}
	return string(t), nil
}
