package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/storage"
)

// ErrReportNotFound is returned when resolving an unknown report id.
var ErrReportNotFound = errors.New("conflict report not found")

// ErrNotAutoResolvable is returned when the engine is asked to resolve a
// report that requires explicit operator action.
var ErrNotAutoResolvable = errors.New("report requires operator resolution")

// Service keeps the durable, append-only report history and reconciles it
// with fresh analysis on every activation-set change. Reports are never
// deleted, only status-transitioned.
type Service struct {
	analyzer *Analyzer
	kv       storage.KV
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewService creates a report service over the storage port.
func NewService(a *Analyzer, kv storage.KV, logger *slog.Logger) *Service {
	return &Service{analyzer: a, kv: kv, logger: logger, now: time.Now}
}

// Evaluate runs the rule table against the active set and reconciles the
// history: newly firing rules append a report, rules already reported stay
// as they are, and active reports whose trigger set is no longer
// concurrently active transition to resolved.
func (s *Service) Evaluate(ctx context.Context, activeIDs []string) ([]models.ConflictReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	current := s.analyzer.Analyze(activeIDs)
	firing := make(map[string]models.ConflictReport, len(current))
	for _, r := range current {
		firing[r.RuleID] = r
	}

	activeByRule := make(map[string]int)
	for i := range history {
		if history[i].Status == models.ReportStatusActive {
			activeByRule[history[i].RuleID] = i
		}
	}

	changed := false

	// Close out reports whose combination broke up.
	for rule, idx := range activeByRule {
		if _, still := firing[rule]; still {
			continue
		}
		history[idx].Status = models.ReportStatusResolved
		history[idx].ResolvedAt = s.now().UnixMilli()
		history[idx].Resolution = "affected extensions no longer concurrently active"
		changed = true
	}

	// Append reports for newly firing rules.
	for rule, report := range firing {
		if _, exists := activeByRule[rule]; exists {
			continue
		}
		history = append(history, report)
		changed = true
		s.logger.Info("Interaction conflict detected",
			"rule", rule, "type", report.Type, "severity", report.Severity)
	}

	if changed {
		if err := s.save(ctx, history); err != nil {
			return nil, err
		}
	}

	return s.snapshotOf(history), nil
}

// Reports returns the full history, active first, then newest first.
func (s *Service) Reports(ctx context.Context) ([]models.ConflictReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.snapshotOf(history), nil
}

// ActiveConflicts returns the number of active, non-synergy reports,
// the total shown to operators.
func (s *Service) ActiveConflicts(ctx context.Context) (int, error) {
	reports, err := s.Reports(ctx)
	if err != nil {
		return 0, err
	}
	return ActiveConflictCount(reports), nil
}

// Resolve records an explicit operator resolution for a report.
func (s *Service) Resolve(ctx context.Context, id, resolution string) error {
	return s.resolve(ctx, id, resolution, false)
}

// AutoResolve lets the engine resolve a report without operator action.
// Permitted only for low-severity performance reports.
func (s *Service) AutoResolve(ctx context.Context, id string) error {
	return s.resolve(ctx, id, "auto-resolved: low performance impact accepted", true)
}

func (s *Service) resolve(ctx context.Context, id, resolution string, auto bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := s.load(ctx)
	if err != nil {
		return err
	}

	for i := range history {
		if history[i].ID != id {
			continue
		}
		if history[i].Status == models.ReportStatusResolved {
			return nil // idempotent
		}
		if auto && !history[i].AutoResolvable() {
			return fmt.Errorf("%w: %s/%s", ErrNotAutoResolvable, history[i].Type, history[i].Severity)
		}
		history[i].Status = models.ReportStatusResolved
		history[i].Resolution = resolution
		history[i].ResolvedAt = s.now().UnixMilli()
		return s.save(ctx, history)
	}

	return fmt.Errorf("%w: %s", ErrReportNotFound, id)
}

func (s *Service) snapshotOf(history []models.ConflictReport) []models.ConflictReport {
	out := make([]models.ConflictReport, len(history))
	copy(out, history)
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Status == models.ReportStatusActive) != (out[j].Status == models.ReportStatusActive) {
			return out[i].Status == models.ReportStatusActive
		}
		return out[i].DetectedAt > out[j].DetectedAt
	})
	return out
}

func (s *Service) load(ctx context.Context) ([]models.ConflictReport, error) {
	data, err := s.kv.Get(ctx, storage.KeyReportHistory)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load report history: %w", err)
	}

	var history []models.ConflictReport
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report history: %w", err)
	}
	return history, nil
}

func (s *Service) save(ctx context.Context, history []models.ConflictReport) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal report history: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyReportHistory, data); err != nil {
		return fmt.Errorf("failed to persist report history: %w", err)
	}
	return nil
}
