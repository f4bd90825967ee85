// Package cli implements the agent's command surface: device enrollment,
// manual sync, local extension mutations and conflict inspection.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	agentapi "github.com/iudanet/extsync/internal/agent/api"
	"github.com/iudanet/extsync/internal/agent/iocli"
	"github.com/iudanet/extsync/internal/analyzer"
	"github.com/iudanet/extsync/internal/orchestrator"
	"github.com/iudanet/extsync/internal/queue"
	"github.com/iudanet/extsync/internal/registry"
	"github.com/iudanet/extsync/internal/storage"
)

// authState is the persisted login session.
type authState struct {
	AccountID   string `json:"account_id"`
	DeviceID    string `json:"device_id"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix seconds
}

// Cli binds the agent's services to terminal commands.
type Cli struct {
	io       iocli.IO
	api      *agentapi.Client
	kv       storage.KV
	registry registry.Registry
	orch     *orchestrator.Orchestrator
	reports  *analyzer.Service
	queue    *queue.OfflineQueue
}

// New creates the command surface.
func New(io iocli.IO, api *agentapi.Client, kv storage.KV, reg registry.Registry,
	orch *orchestrator.Orchestrator, reports *analyzer.Service, q *queue.OfflineQueue,
) *Cli {
	return &Cli{
		io:       io,
		api:      api,
		kv:       kv,
		registry: reg,
		orch:     orch,
		reports:  reports,
		queue:    q,
	}
}

// loadAuth returns the stored session, or nil when not logged in.
func (c *Cli) loadAuth(ctx context.Context) (*authState, error) {
	data, err := c.kv.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var state authState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &state, nil
}

func (c *Cli) saveAuth(ctx context.Context, state *authState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.kv.Set(ctx, storage.KeyAuthToken, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// StoredToken is a cloud transport TokenSource backed by the agent's
// local storage, so the daemon picks up fresh logins without restarting.
type StoredToken struct {
	kv storage.KV
}

// NewStoredToken creates a storage-backed token source.
func NewStoredToken(kv storage.KV) *StoredToken {
	return &StoredToken{kv: kv}
}

// AccessToken implements cloud.TokenSource.
func (s *StoredToken) AccessToken(ctx context.Context) (string, error) {
	data, err := s.kv.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("not logged in, run 'extsync login' first")
		}
		return "", fmt.Errorf("failed to load session: %w", err)
	}

	var state authState
	if err := json.Unmarshal(data, &state); err != nil {
		return "", fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if state.AccessToken == "" {
		return "", fmt.Errorf("not logged in, run 'extsync login' first")
	}
	if state.ExpiresAt > 0 && time.Now().Unix() >= state.ExpiresAt {
		return "", fmt.Errorf("session expired, run 'extsync login' again")
	}
	return state.AccessToken, nil
}

// PrintUsage prints the command reference.
func PrintUsage(io iocli.IO) {
	io.Println("extsync - browser extension configuration sync agent")
	io.Println()
	io.Println("Usage:")
	io.Println("  extsync [OPTIONS] COMMAND")
	io.Println()
	io.Println("Options:")
	io.Println("  --version        Show version information")
	io.Println("  --config PATH    Path to config file")
	io.Println("  --server URL     Relay server URL")
	io.Println("  --db PATH        Path to local database")
	io.Println("  --context NAME   Browser context label for snapshots")
	io.Println()
	io.Println("Commands:")
	io.Println("  register                 Register this device with the relay")
	io.Println("  login                    Log in and store an access token")
	io.Println("  status                   Show sync status and queue state")
	io.Println("  sync                     Run one sync cycle now")
	io.Println("  install <id> <version>   Install an extension record")
	io.Println("  enable <id>              Enable an extension")
	io.Println("  disable <id>             Disable an extension")
	io.Println("  set <id> <key> <value>   Set an extension setting (value parsed as JSON)")
	io.Println("  pref <key> <value>       Set a user preference (value parsed as JSON)")
	io.Println("  conflicts                List interaction conflict reports")
	io.Println("  resolve <id> <note>      Resolve a conflict report")
	io.Println("  daemon                   Run the sync loop in the foreground")
	io.Println()
	io.Println("Examples:")
	io.Println("  extsync register")
	io.Println("  extsync install ublock-origin 1.57.2")
	io.Println("  extsync enable ublock-origin")
	io.Println("  extsync set ublock-origin filters strict")
	io.Println("  extsync pref theme '{\"mode\":\"dark\"}'")
	io.Println("  extsync --server https://relay.example.com sync")
}
