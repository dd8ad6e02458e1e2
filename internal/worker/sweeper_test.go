package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwalitptl/opinion-api/internal/model"
	"github.com/jwalitptl/opinion-api/internal/repository/memory"
	"github.com/jwalitptl/opinion-api/internal/service/intake"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
	"github.com/jwalitptl/opinion-api/pkg/validator"
)

var start = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func TestIntakeSweeper(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewManaged(start)
	staging := intake.NewStaging(intake.Config{TTL: time.Hour}, store.Submissions(), validator.New(), clk, logger.Nop(), metrics.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := staging.Stage(ctx, []byte(`{"n":1}`))
		require.NoError(t, err)
	}

	w := NewIntakeSweeper(staging, time.Minute, zap.NewNop())
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.WarpForward(time.Hour)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSessionSweeperKeepsRecentSessions(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewManaged(start)
	ctx := context.Background()

	revokedAt := start.Add(-2 * time.Hour)
	sessions := []*model.ProfessionalSession{
		{ID: uuid.New(), Token: "long-expired", ExpiresAt: start.Add(-48 * time.Hour)},
		{ID: uuid.New(), Token: "recently-expired", ExpiresAt: start.Add(-time.Hour)},
		{ID: uuid.New(), Token: "live", ExpiresAt: start.Add(time.Hour)},
		{ID: uuid.New(), Token: "revoked-long-ago", ExpiresAt: start.Add(time.Hour), RevokedAt: &revokedAt},
	}
	for _, s := range sessions {
		require.NoError(t, store.Sessions().Create(ctx, s))
	}

	w := NewSessionSweeper(store.Sessions(), clk, time.Hour, time.Minute, metrics.NewNop(), zap.NewNop())
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for token, kept := range map[string]bool{
		"long-expired":     false,
		"recently-expired": true,
		"live":             true,
		"revoked-long-ago": false,
	} {
		_, err := store.Sessions().GetByToken(ctx, token)
		assert.Equal(t, kept, err == nil, token)
	}
}

func TestSweeperLogsFailuresAndKeepsRunning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var calls int32
	w := NewSweeper("flaky", 5*time.Millisecond, func(ctx context.Context) (int64, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return 0, errors.New("database unavailable")
		}
		return 1, nil
	}, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	failures := logs.FilterMessage("sweep failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "flaky", failures[0].ContextMap()["sweeper"])
	assert.NotEmpty(t, logs.FilterMessage("sweep removed rows").All())
	assert.Len(t, logs.FilterMessage("sweeper stopped").All(), 1)
}
