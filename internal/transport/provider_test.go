package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/extsync/internal/models"
)

type fakeProvider struct {
	send  func(ctx context.Context, s *models.SyncSnapshot) ([]*models.SyncSnapshot, error)
	name  string
	delay time.Duration
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, s *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.send(ctx, s)
}

func testSnapshot() *models.SyncSnapshot {
	return &models.SyncSnapshot{DeviceID: "device-a", Timestamp: 100}
}

func TestBroadcast_AllSettleBeforeReturn(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	remote := &models.SyncSnapshot{DeviceID: "device-b", Timestamp: 200}
	providers := []Provider{
		&fakeProvider{name: "fast-failing", send: func(context.Context, *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
			return nil, NewError("fast-failing", true, fmt.Errorf("down"))
		}},
		&fakeProvider{name: "slow-succeeding", delay: 30 * time.Millisecond, send: func(context.Context, *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
			return []*models.SyncSnapshot{remote}, nil
		}},
	}

	results := Broadcast(context.Background(), providers, testSnapshot(), logger)

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	require.NoError(t, results[1].Err, "a fast failing provider must not short-circuit a slower succeeding one")
	require.Len(t, results[1].Snapshots, 1)
	assert.Equal(t, "device-b", results[1].Snapshots[0].DeviceID)
}

func TestBroadcast_PanicIsolated(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	providers := []Provider{
		&fakeProvider{name: "panicking", send: func(context.Context, *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
			panic("boom")
		}},
		&fakeProvider{name: "healthy", send: func(context.Context, *models.SyncSnapshot) ([]*models.SyncSnapshot, error) {
			return nil, nil
		}},
	}

	results := Broadcast(context.Background(), providers, testSnapshot(), logger)

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}

func TestError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("socket closed")
	err := NewError("peer", true, inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "peer")
}
