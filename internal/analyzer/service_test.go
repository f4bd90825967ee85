package analyzer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
	"github.com/iudanet/extsync/internal/storage"
)

func newTestService() *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(New(logger, nil), storage.NewMemory(), logger)
}

func TestService_EvaluateAppendsOnce(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	active := []string{"ublock-origin", "grammarly"}

	reports, err := s.Evaluate(ctx, active)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	firstID := reports[0].ID

	// Re-evaluating the same activation set must not duplicate reports.
	reports, err = s.Evaluate(ctx, active)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, firstID, reports[0].ID)
}

func TestService_TriggerBreakupResolvesReport(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.Evaluate(ctx, []string{"ublock-origin", "grammarly"})
	require.NoError(t, err)

	// Disabling grammarly breaks the combination; the report transitions
	// to resolved but stays in the history.
	reports, err := s.Evaluate(ctx, []string{"ublock-origin"})
	require.NoError(t, err)
	require.Len(t, reports, 1, "history is append-only, never hard-deleted")
	assert.Equal(t, models.ReportStatusResolved, reports[0].Status)
	assert.NotZero(t, reports[0].ResolvedAt)

	count, err := s.ActiveConflicts(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestService_ReportReappearsAfterReactivation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	pair := []string{"ublock-origin", "grammarly"}
	_, err := s.Evaluate(ctx, pair)
	require.NoError(t, err)
	_, err = s.Evaluate(ctx, []string{"ublock-origin"})
	require.NoError(t, err)

	reports, err := s.Evaluate(ctx, pair)
	require.NoError(t, err)
	require.Len(t, reports, 2, "a fresh report is appended when the combination returns")
	assert.Equal(t, models.ReportStatusActive, reports[0].Status)
}

func TestService_OperatorResolve(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	reports, err := s.Evaluate(ctx, []string{"proton-vpn", "windscribe"})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	require.NoError(t, s.Resolve(ctx, reports[0].ID, "disabled windscribe"))

	reports, err = s.Reports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, models.ReportStatusResolved, reports[0].Status)
	assert.Equal(t, "disabled windscribe", reports[0].Resolution)

	// Resolving twice is idempotent.
	assert.NoError(t, s.Resolve(ctx, reports[0].ID, "again"))

	err = s.Resolve(ctx, "missing", "whatever")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestService_AutoResolveOnlyLowPerformance(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	reports, err := s.Evaluate(ctx, []string{"proton-vpn", "windscribe", "ublock-origin", "grammarly"})
	require.NoError(t, err)

	var security, performance string
	for _, r := range reports {
		switch r.Type {
		case models.ConflictTypeSecurity:
			security = r.ID
		case models.ConflictTypePerformance:
			performance = r.ID
		}
	}
	require.NotEmpty(t, security)
	require.NotEmpty(t, performance)

	assert.ErrorIs(t, s.AutoResolve(ctx, security), ErrNotAutoResolvable)
	assert.NoError(t, s.AutoResolve(ctx, performance))
}
