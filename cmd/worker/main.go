package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jwalitptl/opinion-api/internal/config"
	"github.com/jwalitptl/opinion-api/internal/repository/postgres"
	"github.com/jwalitptl/opinion-api/internal/service/intake"
	"github.com/jwalitptl/opinion-api/internal/worker"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging/redis"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
	"github.com/jwalitptl/opinion-api/pkg/validator"
)

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func setupHealthCheck(port int, db *sqlx.DB, reg *prometheus.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health check server failed", zap.Error(err))
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Store.Driver != "postgres" {
		log.Fatal("the worker sweeps a shared database; store.driver must be postgres",
			zap.String("driver", cfg.Store.Driver))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(cfg.Server.MetricsPrefix, reg)
	clk := clock.New()

	// Staging and the broker log through the service logger.
	svcLog := logger.NewLogger(&logger.Config{Level: logger.ParseLevel(cfg.Log.Level), Output: os.Stdout, JSON: true})
	staging := intake.NewStaging(
		intake.Config{TTL: cfg.Intake.TTL, MaxPayloadBytes: cfg.Intake.MaxPayloadBytes},
		postgres.NewSubmissionRepository(db),
		validator.New(),
		clk,
		svcLog,
		m,
	)

	sweepers := []*worker.Sweeper{
		worker.NewIntakeSweeper(staging, cfg.Intake.SweepInterval, log),
		worker.NewSessionSweeper(postgres.NewSessionRepository(db), clk, cfg.Session.SweepGrace, cfg.Session.SweepInterval, m, log),
	}

	healthSrv := setupHealthCheck(cfg.Worker.HealthPort, db, reg, log)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup
	if cfg.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, svcLog.ZL)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer broker.Close()

		auditor := worker.NewAssignmentAuditor(broker, m, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := auditor.Start(ctx); err != nil {
				log.Error("auditor failed", zap.Error(err))
			}
		}()
	}
	for _, s := range sweepers {
		wg.Add(1)
		go func(s *worker.Sweeper) {
			defer wg.Done()
			s.Start(ctx)
		}(s)
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = healthSrv.Shutdown(shutdownCtx)
	log.Info("worker exited")
}
