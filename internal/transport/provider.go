// Package transport defines the provider contract shared by every sync
// channel. Providers are pure transport: they move serialized snapshots
// and report success or failure, and never perform merging.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/extsync/internal/models"
)

// Provider names recognized by the configuration surface.
const (
	NameLocalBroadcast = "local"
	NameCloudDocument  = "cloud"
	NameNativeStorage  = "native"
	NamePeerChannel    = "peer"
	NameDeferredTask   = "deferred"
)

//go:generate moq -out provider_mock.go . Provider

// Provider is one sync channel. Send transmits the device's snapshot and
// returns whatever remote snapshots the channel yielded in exchange;
// channels without a read path return an empty slice.
type Provider interface {
	// Name returns the stable provider name used in configuration.
	Name() string

	// Send transmits the snapshot over this channel.
	Send(ctx context.Context, snapshot *models.SyncSnapshot) ([]*models.SyncSnapshot, error)
}

// Error is a provider-specific send/receive failure. Transport errors are
// isolated per provider and recovered by requeueing; they never abort a
// sync cycle.
type Error struct {
	Err       error
	Provider  string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps a provider failure.
func NewError(provider string, retryable bool, err error) *Error {
	return &Error{Provider: provider, Retryable: retryable, Err: err}
}

// Result is the settled outcome of one provider within one cycle.
type Result struct {
	Err       error
	Provider  string
	Snapshots []*models.SyncSnapshot
}

// Broadcast fires the snapshot at all providers concurrently and waits
// for every one to settle. Results are merged only after all providers
// finish, so a fast failing provider cannot short-circuit a slower
// succeeding one; the cycle's latency is bounded by the slowest provider,
// not the sum.
func Broadcast(ctx context.Context, providers []Provider, snapshot *models.SyncSnapshot, logger *slog.Logger) []Result {
	results := make([]Result, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			// A panicking provider must not take the cycle down with it.
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{
						Provider: p.Name(),
						Err:      NewError(p.Name(), false, fmt.Errorf("provider panicked: %v", r)),
					}
					logger.Error("Transport provider panicked", "provider", p.Name(), "panic", r)
				}
			}()

			snaps, err := p.Send(ctx, snapshot)
			results[i] = Result{Provider: p.Name(), Snapshots: snaps, Err: err}
			if err != nil {
				logger.Warn("Transport send failed", "provider", p.Name(), "error", err)
			}
		}(i, p)
	}
	wg.Wait()

	return results
}
