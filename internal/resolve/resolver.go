// Package resolve detects and resolves data-field conflicts between merge
// inputs. Every disagreement has a recency answer, so resolution is
// normally automatic; conflicts are still recorded as an audit trail.
package resolve

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/extsync/internal/merge"
	"github.com/iudanet/extsync/internal/models"
)

// ErrPendingManual is returned when a conflict under the manual strategy
// has no user-supplied resolution yet. The caller must not apply the
// disputed value until a concrete resolution exists.
var ErrPendingManual = fmt.Errorf("conflict awaits manual resolution")

// Resolver detects field-level disagreements and applies resolution
// strategies, keeping a per-cycle audit of every decision.
type Resolver struct {
	logger      *slog.Logger
	now         func() time.Time
	localDevice string
}

// NewResolver creates a new Resolver. localDevice identifies this
// device's candidates for the local_wins strategy.
func NewResolver(logger *slog.Logger, localDevice string) *Resolver {
	return &Resolver{logger: logger, now: time.Now, localDevice: localDevice}
}

// Detect scans the merge inputs and returns one DataConflict per field on
// which two or more sources carry distinct values. Candidates are ordered
// newest first, matching the winner the merger will pick.
func (r *Resolver) Detect(sources []*models.SyncSnapshot) []models.DataConflict {
	detectedAt := r.now().UnixMilli()
	candidates := merge.CollectCandidates(sources)

	keys := make([]merge.FieldKey, 0, len(candidates))
	for key := range candidates {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].EntityID != keys[j].EntityID {
			return keys[i].EntityID < keys[j].EntityID
		}
		return keys[i].Field < keys[j].Field
	})

	var conflicts []models.DataConflict
	for _, key := range keys {
		distinct := merge.Distinct(candidates[key])
		if len(distinct) < 2 {
			continue
		}

		cands := make([]models.CandidateValue, 0, len(distinct))
		for _, c := range distinct {
			cands = append(cands, models.CandidateValue{
				Value:           c.Value,
				SourceTimestamp: c.Timestamp,
				SourceDevice:    c.DeviceID,
			})
		}

		conflicts = append(conflicts, models.DataConflict{
			ID:         uuid.New().String(),
			EntityID:   key.EntityID,
			Field:      key.Field,
			Candidates: cands,
			DetectedAt: detectedAt,
		})
	}

	if len(conflicts) > 0 {
		r.logger.Debug("Detected data conflicts", "count", len(conflicts))
	}
	return conflicts
}

// Resolve applies a strategy to a conflict in place and returns the
// resolved value. A strategy failure falls back to latest_wins rather
// than aborting the cycle; only manual defers.
func (r *Resolver) Resolve(conflict *models.DataConflict, strategy models.ResolutionStrategy) (any, error) {
	if len(conflict.Candidates) == 0 {
		return nil, fmt.Errorf("conflict %s has no candidates", conflict.ID)
	}

	var (
		value any
		err   error
	)

	switch strategy {
	case models.ResolutionLatestWins, "":
		strategy = models.ResolutionLatestWins
		value = conflict.Candidates[0].Value
	case models.ResolutionMerge:
		value, err = mergeCandidates(conflict.Candidates)
	case models.ResolutionLocalWins:
		value, err = localCandidate(conflict.Candidates, r.localDevice)
	case models.ResolutionManual:
		// Record the pending state; the caller keeps the previous value.
		conflict.Resolution = models.ResolutionManual
		return nil, ErrPendingManual
	default:
		err = fmt.Errorf("unknown resolution strategy %q", strategy)
	}

	if err != nil {
		// ResolutionError degrades to the recency rule, never aborts.
		r.logger.Warn("Resolution strategy failed, falling back to latest_wins",
			"conflict_id", conflict.ID, "strategy", strategy, "error", err)
		strategy = models.ResolutionLatestWins
		value = conflict.Candidates[0].Value
	}

	conflict.Resolution = strategy
	conflict.ResolvedValue = value
	conflict.ResolvedAt = r.now().UnixMilli()
	return value, nil
}

// ResolveAll applies the default strategy to every conflict, in place.
func (r *Resolver) ResolveAll(conflicts []models.DataConflict) {
	for i := range conflicts {
		// latest_wins cannot fail with a non-empty candidate list.
		if _, err := r.Resolve(&conflicts[i], models.ResolutionLatestWins); err != nil {
			r.logger.Warn("Failed to resolve conflict",
				"conflict_id", conflicts[i].ID, "error", err)
		}
	}
}

// mergeCandidates deep-merges object-valued candidates, older first so
// newer leaves overwrite. Non-object values cannot be merged.
func mergeCandidates(cands []models.CandidateValue) (any, error) {
	out := make(map[string]any)
	merged := 0
	for i := len(cands) - 1; i >= 0; i-- {
		obj, ok := cands[i].Value.(map[string]any)
		if !ok {
			continue
		}
		deepOverlay(out, obj)
		merged++
	}
	if merged == 0 {
		return nil, fmt.Errorf("merge strategy requires object values")
	}
	return out, nil
}

// localCandidate returns the candidate originating from the local device.
func localCandidate(cands []models.CandidateValue, localDevice string) (any, error) {
	for _, c := range cands {
		if c.SourceDevice == localDevice {
			return c.Value, nil
		}
	}
	return nil, fmt.Errorf("no candidate from local device %q", localDevice)
}

// deepOverlay copies src into dst recursively, overwriting leaves.
func deepOverlay(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			dstMap, ok := dst[k].(map[string]any)
			if !ok {
				dstMap = make(map[string]any)
				dst[k] = dstMap
			}
			deepOverlay(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
