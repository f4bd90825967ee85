// Package orchestrator coordinates the sync pipeline: it owns the sync
// schedule, reacts to connectivity and visibility signals, fans snapshots
// out to the transport providers, feeds the merger and resolver, and
// applies the resolved state atomically.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/extsync/internal/analyzer"
	"github.com/iudanet/extsync/internal/merge"
	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/queue"
	"github.com/iudanet/extsync/internal/registry"
	"github.com/iudanet/extsync/internal/resolve"
	"github.com/iudanet/extsync/internal/storage"
	"github.com/iudanet/extsync/internal/transport"
)

// Phase is the orchestrator's position in the sync cycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSyncing   Phase = "syncing"
	PhaseMerging   Phase = "merging"
	PhaseResolving Phase = "resolving"
	PhaseApplying  Phase = "applying"
)

var (
	// ErrSyncDisabled is returned when sync is turned off in settings.
	ErrSyncDisabled = errors.New("sync is disabled")

	// ErrCycleInProgress is returned when a cycle is already running;
	// cycles are never interleaved.
	ErrCycleInProgress = errors.New("sync cycle already in progress")
)

// Settings is the runtime-configurable surface of the engine.
type Settings struct {
	Providers    []string
	Interval     time.Duration
	RetryCeiling int
	Enabled      bool
}

// SyncResult is the outcome of one cycle.
type SyncResult struct {
	Error       error
	MergedState *models.MergedState
	Conflicts   []models.DataConflict
	Reports     []models.ConflictReport
	Success     bool
	// Queued is set when the device was offline and the snapshot went to
	// the offline queue instead of the transports.
	Queued bool
}

// Deps carries the orchestrator's collaborators; everything is injected,
// there is no ambient global state.
type Deps struct {
	Logger    *slog.Logger
	KV        storage.KV
	Queue     *queue.OfflineQueue
	Merger    *merge.Merger
	Resolver  *resolve.Resolver
	Reports   *analyzer.Service
	Registry  registry.Registry
	Providers []transport.Provider
}

// Orchestrator is the single writer of the canonical merged state.
type Orchestrator struct {
	logger    *slog.Logger
	kv        storage.KV
	queue     *queue.OfflineQueue
	merger    *merge.Merger
	resolver  *resolve.Resolver
	reports   *analyzer.Service
	registry  registry.Registry
	providers []transport.Provider

	now     func() time.Time
	trigger chan string

	// state is replaced wholesale under stateMu; readers always see a
	// complete, consistent snapshot.
	state   *models.MergedState
	stateMu sync.RWMutex

	// mu guards phase, settings, connectivity and the schedule.
	mu       sync.Mutex
	phase    Phase
	settings Settings
	lastSync time.Time
	online   bool

	deviceID       string
	browserContext string
}

// New constructs an orchestrator. Call Initialize before use.
func New(deviceID, browserContext string, settings Settings, deps Deps) *Orchestrator {
	return &Orchestrator{
		logger:         deps.Logger,
		kv:             deps.KV,
		queue:          deps.Queue,
		merger:         deps.Merger,
		resolver:       deps.Resolver,
		reports:        deps.Reports,
		registry:       deps.Registry,
		providers:      deps.Providers,
		deviceID:       deviceID,
		browserContext: browserContext,
		settings:       settings,
		phase:          PhaseIdle,
		online:         true,
		now:            time.Now,
		trigger:        make(chan string, 1),
	}
}

// Initialize loads the persisted canonical state and sync metadata.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	state, err := o.loadState(ctx)
	if err != nil {
		return err
	}

	o.stateMu.Lock()
	o.state = state
	o.stateMu.Unlock()

	if data, err := o.kv.Get(ctx, storage.KeyLastSyncTime); err == nil {
		var last time.Time
		if err := json.Unmarshal(data, &last); err == nil {
			o.mu.Lock()
			o.lastSync = last
			o.mu.Unlock()
		}
	}

	o.logger.Info("Sync orchestrator initialized",
		"device_id", o.deviceID, "extensions", len(state.Extensions))
	return nil
}

// Shutdown persists the canonical state. The run loop stops with its
// context; Shutdown only flushes.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	state := o.State()
	if state == nil {
		return nil
	}
	return o.persistState(ctx, state)
}

// State returns a deep copy of the current canonical state.
func (o *Orchestrator) State() *models.MergedState {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if o.state == nil {
		return nil
	}
	return o.state.Clone()
}

// Status reports the operator-facing sync status.
func (o *Orchestrator) Status(ctx context.Context) (models.SyncStatus, error) {
	queueLen, err := o.queue.Len(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	status := models.SyncStatus{
		Enabled:      o.settings.Enabled,
		LastSyncTime: o.lastSync,
		QueueLength:  queueLen,
		Online:       o.online,
	}
	if o.settings.Enabled && !o.lastSync.IsZero() {
		status.NextSyncTime = o.lastSync.Add(o.settings.Interval)
	}
	return status, nil
}

// ConfigureSync updates the runtime settings.
func (o *Orchestrator) ConfigureSync(settings Settings) error {
	if settings.Interval < time.Second {
		return fmt.Errorf("sync interval %s is below the 1s minimum", settings.Interval)
	}
	if settings.RetryCeiling < 0 {
		return fmt.Errorf("retry ceiling must not be negative")
	}

	o.mu.Lock()
	o.settings = settings
	o.mu.Unlock()

	o.queue.SetRetryCeiling(settings.RetryCeiling)
	o.logger.Info("Sync settings updated",
		"enabled", settings.Enabled, "interval", settings.Interval, "providers", settings.Providers)
	return nil
}

// OnConnectivityChange is invoked by the host environment. Coming back
// online triggers an immediate cycle that drains the offline queue first.
func (o *Orchestrator) OnConnectivityChange(online bool) {
	o.mu.Lock()
	wasOnline := o.online
	o.online = online
	o.mu.Unlock()

	if online && !wasOnline {
		o.logger.Info("Connectivity restored")
		o.nudge("connectivity-restored")
	}
	if !online && wasOnline {
		// In-flight provider calls fail naturally; the cycle's partial
		// results are discarded and the cycle retries in full later.
		o.logger.Info("Connectivity lost, queueing local mutations")
	}
}

// OnVisibilityRestore is invoked when the user returns to an active
// context; convergence should be prompt.
func (o *Orchestrator) OnVisibilityRestore() {
	o.nudge("visibility-restored")
}

// SyncNow runs a cycle immediately, bypassing the interval but not the
// offline gate.
func (o *Orchestrator) SyncNow(ctx context.Context) (*SyncResult, error) {
	return o.performSync(ctx, "manual")
}

// Run drives scheduled cycles until the context is cancelled. The timer is
// re-armed every pass so interval changes apply from the next cycle.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		o.mu.Lock()
		interval := o.settings.Interval
		o.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			o.runCycle(ctx, "interval")
		case reason := <-o.trigger:
			timer.Stop()
			o.runCycle(ctx, reason)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context, reason string) {
	result, err := o.performSync(ctx, reason)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) || errors.Is(err, ErrSyncDisabled) {
			return
		}
		// Failed cycles retry silently on the next scheduled trigger.
		o.logger.Warn("Sync cycle failed", "reason", reason, "error", err)
		return
	}
	if result.Queued {
		o.logger.Debug("Offline, snapshot queued", "reason", reason)
	}
}

func (o *Orchestrator) nudge(reason string) {
	select {
	case o.trigger <- reason:
	default: // a trigger is already pending; cycles never interleave anyway
	}
}

// performSync executes one full cycle: snapshot → transports → merge →
// resolve → apply → analyze.
func (o *Orchestrator) performSync(ctx context.Context, reason string) (*SyncResult, error) {
	o.mu.Lock()
	if !o.settings.Enabled {
		o.mu.Unlock()
		return nil, ErrSyncDisabled
	}
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil, ErrCycleInProgress
	}
	o.phase = PhaseSyncing
	online := o.online
	providerNames := o.settings.Providers
	o.mu.Unlock()

	defer o.setPhase(PhaseIdle)

	o.logger.Debug("Sync cycle started", "reason", reason, "online", online)

	snapshot, err := o.buildSnapshot(ctx)
	if err != nil {
		// Cannot read local state: no correct outcome can be computed.
		return &SyncResult{Error: err}, err
	}

	if !online {
		if err := o.queue.Enqueue(ctx, snapshot); err != nil {
			return &SyncResult{Error: err}, err
		}
		return &SyncResult{Queued: true}, nil
	}

	providers := o.activeProviders(providerNames)

	// Queued snapshots drain in FIFO order before this cycle's snapshot.
	drainResult, err := o.queue.Drain(ctx, func(ctx context.Context, snap *models.SyncSnapshot) error {
		return sendConfirmed(ctx, providers, snap, o.logger)
	})
	if err != nil {
		return &SyncResult{Error: err}, err
	}
	if len(drainResult.Failed) > 0 {
		o.logger.Warn("Queue items exceeded retry ceiling", "count", len(drainResult.Failed))
	}

	results := transport.Broadcast(ctx, providers, snapshot, o.logger)

	remotes := make([]*models.SyncSnapshot, 0, len(results))
	succeeded := 0
	var transportErr error
	for _, res := range results {
		if res.Err != nil {
			if transportErr == nil {
				transportErr = res.Err
			}
			continue
		}
		succeeded++
		remotes = append(remotes, res.Snapshots...)
	}

	if len(providers) > 0 && succeeded == 0 {
		// Every channel failed: requeue and retry on the next trigger.
		if err := o.queue.Enqueue(ctx, snapshot); err != nil {
			return &SyncResult{Error: err}, err
		}
		return &SyncResult{Error: transportErr, Queued: true}, nil
	}

	if !o.isOnline() {
		// Connectivity dropped mid-cycle: discard partial results, the
		// cycle is retried in full on the next trigger.
		if err := o.queue.Enqueue(ctx, snapshot); err != nil {
			return &SyncResult{Error: err}, err
		}
		return &SyncResult{Queued: true}, nil
	}

	o.setPhase(PhaseMerging)
	inputs := append([]*models.SyncSnapshot{snapshot}, remotes...)
	merged := o.merger.Merge(o.State(), inputs)

	o.setPhase(PhaseResolving)
	conflicts := o.resolver.Detect(inputs)
	o.resolver.ResolveAll(conflicts)
	if err := o.appendConflictHistory(ctx, conflicts); err != nil {
		return &SyncResult{Error: err}, err
	}

	o.setPhase(PhaseApplying)
	// Durable first: if the store is down the cycle aborts with the
	// in-memory state untouched.
	if err := o.persistState(ctx, merged); err != nil {
		return &SyncResult{Error: err, Conflicts: conflicts}, err
	}

	o.stateMu.Lock()
	o.state = merged
	o.stateMu.Unlock()

	if err := o.registry.ApplyResolved(ctx, merged); err != nil {
		o.logger.Warn("Failed to write resolved state back to registry", "error", err)
	}

	now := o.now()
	o.mu.Lock()
	o.lastSync = now
	o.mu.Unlock()
	if data, err := json.Marshal(now); err == nil {
		if err := o.kv.Set(ctx, storage.KeyLastSyncTime, data); err != nil {
			o.logger.Warn("Failed to persist last sync time", "error", err)
		}
	}

	// Interaction analysis runs on every activation-set change; the
	// resolved active set is exactly what a completed cycle produced.
	reports, err := o.reports.Evaluate(ctx, merged.ActiveExtensionIDs())
	if err != nil {
		o.logger.Warn("Interaction analysis failed", "error", err)
		reports = nil
	}

	o.logger.Info("Sync cycle completed",
		"reason", reason,
		"sources", len(inputs),
		"conflicts", len(conflicts),
		"active_reports", analyzer.ActiveConflictCount(reports))

	return &SyncResult{
		Success:     true,
		MergedState: merged.Clone(),
		Conflicts:   conflicts,
		Reports:     reports,
	}, nil
}

// buildSnapshot assembles this device's immutable snapshot from the
// extension registry.
func (o *Orchestrator) buildSnapshot(ctx context.Context) (*models.SyncSnapshot, error) {
	exts, err := o.registry.GetAllExtensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read extensions: %w", err)
	}
	prefs, err := o.registry.Preferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	counters, err := o.registry.Counters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	return &models.SyncSnapshot{
		DeviceID:        o.deviceID,
		BrowserContext:  o.browserContext,
		Timestamp:       o.now().UnixMilli(),
		Extensions:      exts,
		UserPreferences: prefs,
		UsageCounters:   counters,
	}, nil
}

// ConflictHistory returns the audit trail of resolved data conflicts.
func (o *Orchestrator) ConflictHistory(ctx context.Context) ([]models.DataConflict, error) {
	data, err := o.kv.Get(ctx, storage.KeyConflictHistory)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conflict history: %w", err)
	}
	var history []models.DataConflict
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conflict history: %w", err)
	}
	return history, nil
}

func (o *Orchestrator) appendConflictHistory(ctx context.Context, conflicts []models.DataConflict) error {
	if len(conflicts) == 0 {
		return nil
	}
	history, err := o.ConflictHistory(ctx)
	if err != nil {
		return err
	}
	history = append(history, conflicts...)

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict history: %w", err)
	}
	if err := o.kv.Set(ctx, storage.KeyConflictHistory, data); err != nil {
		return fmt.Errorf("failed to persist conflict history: %w", err)
	}
	return nil
}

func (o *Orchestrator) activeProviders(names []string) []transport.Provider {
	if len(names) == 0 {
		return o.providers
	}
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	out := make([]transport.Provider, 0, len(o.providers))
	for _, p := range o.providers {
		if _, ok := wanted[p.Name()]; ok {
			out = append(out, p)
		}
	}
	return out
}

// sendConfirmed treats a queued snapshot as transmitted once at least one
// provider accepts it (at-least-once delivery, idempotent merge).
func sendConfirmed(ctx context.Context, providers []transport.Provider, snap *models.SyncSnapshot, logger *slog.Logger) error {
	results := transport.Broadcast(ctx, providers, snap, logger)
	var firstErr error
	for _, res := range results {
		if res.Err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = res.Err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("no transport providers configured")
	}
	return firstErr
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// CurrentPhase returns the orchestrator's phase, for status displays.
func (o *Orchestrator) CurrentPhase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) isOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

func (o *Orchestrator) loadState(ctx context.Context) (*models.MergedState, error) {
	data, err := o.kv.Get(ctx, storage.KeyMergedState)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.NewMergedState(), nil
		}
		return nil, fmt.Errorf("failed to load merged state: %w", err)
	}
	return models.ImportState(data)
}

func (o *Orchestrator) persistState(ctx context.Context, state *models.MergedState) error {
	data, err := state.Export()
	if err != nil {
		return err
	}
	if err := o.kv.Set(ctx, storage.KeyMergedState, data); err != nil {
		return fmt.Errorf("failed to persist merged state: %w", err)
	}
	return nil
}
