// Package deferred implements the DeferredTaskChannel provider: Send
// persists the snapshot as a durable background task and reports no
// remote results; a Runner replays pending tasks through a delegate
// provider later, when the process is idle or the delegate is reachable.
package deferred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/storage"
	"github.com/iudanet/extsync/internal/transport"
)

const taskKey = "deferred_tasks"

// Provider persists snapshots for later transmission.
type Provider struct {
	kv     storage.KV
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a deferred provider over the storage port.
func New(kv storage.KV, logger *slog.Logger) *Provider {
	return &Provider{kv: kv, logger: logger}
}

// Name implements transport.Provider.
func (p *Provider) Name() string {
	return transport.NameDeferredTask
}

// Send implements transport.Provider. The snapshot is durably queued and
// no remote snapshots come back; the read path is the delegate the Runner
// forwards queued tasks to.
func (p *Provider) Send(ctx context.Context, snapshot *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks, err := p.load(ctx)
	if err != nil {
		return nil, transport.NewError(p.Name(), false, err)
	}

	// One pending task per (device, context) is enough: later snapshots
	// supersede earlier ones and the merge is idempotent anyway.
	key := snapshot.DeviceID + "/" + snapshot.BrowserContext
	tasks[key] = snapshot.Clone()

	if err := p.save(ctx, tasks); err != nil {
		return nil, transport.NewError(p.Name(), false, err)
	}
	return nil, nil
}

// Pending returns the queued tasks without removing them.
func (p *Provider) Pending(ctx context.Context) ([]*models.SyncSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SyncSnapshot, 0, len(tasks))
	for _, snap := range tasks {
		out = append(out, snap)
	}
	return out, nil
}

// Flush forwards every pending task through the delegate and removes the
// ones that went through. Failed tasks stay queued for the next flush.
func (p *Provider) Flush(ctx context.Context, delegate transport.Provider) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks, err := p.load(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	var firstErr error
	for key, snap := range tasks {
		if _, err := delegate.Send(ctx, snap); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(tasks, key)
	}

	if err := p.save(ctx, tasks); err != nil {
		return err
	}
	if firstErr != nil {
		return fmt.Errorf("deferred flush incomplete: %w", firstErr)
	}

	p.logger.Debug("Deferred tasks flushed")
	return nil
}

// Runner periodically flushes a deferred provider through a delegate.
type Runner struct {
	provider *Provider
	delegate transport.Provider
	logger   *slog.Logger
	interval time.Duration
}

// NewRunner creates a runner; Run blocks until the context is cancelled.
func NewRunner(provider *Provider, delegate transport.Provider, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{provider: provider, delegate: delegate, interval: interval, logger: logger}
}

// Run drives periodic flushes.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.provider.Flush(ctx, r.delegate); err != nil {
				r.logger.Warn("Deferred flush failed", "error", err)
			}
		}
	}
}

func (p *Provider) load(ctx context.Context) (map[string]*models.SyncSnapshot, error) {
	data, err := p.kv.Get(ctx, taskKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return map[string]*models.SyncSnapshot{}, nil
		}
		return nil, fmt.Errorf("failed to load deferred tasks: %w", err)
	}

	var tasks map[string]*models.SyncSnapshot
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deferred tasks: %w", err)
	}
	return tasks, nil
}

func (p *Provider) save(ctx context.Context, tasks map[string]*models.SyncSnapshot) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal deferred tasks: %w", err)
	}
	if err := p.kv.Set(ctx, taskKey, data); err != nil {
		return fmt.Errorf("failed to persist deferred tasks: %w", err)
	}
	return nil
}
