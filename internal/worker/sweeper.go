package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/internal/service/intake"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
)

// SweepFunc removes stale rows and reports how many went.
type SweepFunc func(ctx context.Context) (int64, error)

// Sweeper runs a SweepFunc on a fixed interval. A failed run is logged and
// retried on the next tick.
type Sweeper struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
	log      *zap.Logger
}

func NewSweeper(name string, interval time.Duration, sweep SweepFunc, log *zap.Logger) *Sweeper {
	return &Sweeper{
		name:     name,
		interval: interval,
		sweep:    sweep,
		log:      log.With(zap.String("sweeper", name)),
	}
}

// NewIntakeSweeper deletes expired intake submissions.
func NewIntakeSweeper(staging *intake.Staging, interval time.Duration, log *zap.Logger) *Sweeper {
	return NewSweeper("intake", interval, staging.Sweep, log)
}

// NewSessionSweeper deletes sessions that expired or were revoked more than
// grace ago. Recently ended sessions stay around for auditing.
func NewSessionSweeper(repo repository.SessionRepository, clk clock.Clock, grace, interval time.Duration, m *metrics.Metrics, log *zap.Logger) *Sweeper {
	return NewSweeper("session", interval, func(ctx context.Context) (int64, error) {
		n, err := repo.DeleteExpiredBefore(ctx, clk.Now().Add(-grace))
		if err != nil {
			m.SweepFailures.WithLabelValues("session").Inc()
			return 0, err
		}
		m.SweepRemoved.WithLabelValues("session").Add(float64(n))
		return n, nil
	}, log)
}

func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("sweeper started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			// errors are logged inside RunOnce
			_, _ = w.RunOnce(ctx)
		}
	}
}

func (w *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.sweep(ctx)
	if err != nil {
		w.log.Error("sweep failed", zap.Error(err))
		return 0, fmt.Errorf("%s sweep: %w", w.name, err)
	}
	if n > 0 {
		w.log.Info("sweep removed rows", zap.Int64("removed", n))
	}
	return n, nil
}
