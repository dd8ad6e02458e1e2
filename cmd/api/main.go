package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/opinion-api/internal/config"
	"github.com/jwalitptl/opinion-api/internal/email"
	assignmenthandler "github.com/jwalitptl/opinion-api/internal/handler/assignment"
	"github.com/jwalitptl/opinion-api/internal/handler/health"
	intakehandler "github.com/jwalitptl/opinion-api/internal/handler/intake"
	prometheushandler "github.com/jwalitptl/opinion-api/internal/handler/prometheus"
	sessionhandler "github.com/jwalitptl/opinion-api/internal/handler/session"
	"github.com/jwalitptl/opinion-api/internal/middleware"
	"github.com/jwalitptl/opinion-api/internal/repository"
	"github.com/jwalitptl/opinion-api/internal/repository/memory"
	"github.com/jwalitptl/opinion-api/internal/repository/postgres"
	"github.com/jwalitptl/opinion-api/internal/router"
	"github.com/jwalitptl/opinion-api/internal/service/assignment"
	"github.com/jwalitptl/opinion-api/internal/service/eligibility"
	"github.com/jwalitptl/opinion-api/internal/service/intake"
	"github.com/jwalitptl/opinion-api/internal/service/notification"
	"github.com/jwalitptl/opinion-api/internal/service/session"
	"github.com/jwalitptl/opinion-api/internal/worker"
	"github.com/jwalitptl/opinion-api/pkg/auth"
	"github.com/jwalitptl/opinion-api/pkg/clock"
	"github.com/jwalitptl/opinion-api/pkg/logger"
	"github.com/jwalitptl/opinion-api/pkg/messaging"
	"github.com/jwalitptl/opinion-api/pkg/messaging/redis"
	"github.com/jwalitptl/opinion-api/pkg/metrics"
	"github.com/jwalitptl/opinion-api/pkg/security"
	"github.com/jwalitptl/opinion-api/pkg/validator"
)

type stores struct {
	cases         repository.CaseRepository
	professionals repository.ProfessionalRepository
	assignments   repository.AssignmentRepository
	sessions      repository.SessionRepository
	submissions   repository.SubmissionRepository
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	var (
		st stores
		db *sqlx.DB
	)
	switch cfg.Store.Driver {
	case "postgres":
		db, err = postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			lg.ZL.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				lg.ZL.Fatal().Err(err).Msg("failed to apply schema")
			}
		}
		st = stores{
			cases:         postgres.NewCaseRepository(db),
			professionals: postgres.NewProfessionalRepository(db),
			assignments:   postgres.NewAssignmentRepository(db),
			sessions:      postgres.NewSessionRepository(db),
			submissions:   postgres.NewSubmissionRepository(db),
		}
	default:
		lg.Warn("running on the in-memory store; data is lost on restart")
		mem := memory.NewStore()
		st = stores{
			cases:         mem.Cases(),
			professionals: mem.Professionals(),
			assignments:   mem.Assignments(),
			sessions:      mem.Sessions(),
			submissions:   mem.Submissions(),
		}
	}

	// Messaging
	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, lg.ZL)
		if err != nil {
			lg.ZL.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	} else {
		broker = messaging.NewInProcessBroker(lg.ZL)
	}
	defer broker.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.Server.MetricsPrefix, reg)

	clk := clock.New()

	// Services
	notifier := notification.NewDispatcher(email.NewSMTPService(cfg.SMTP), broker, lg)
	hasher := security.NewBcryptHasher(bcrypt.DefaultCost)
	authority := session.NewAuthority(
		session.Config{
			PendingTTL:      cfg.Session.PendingTTL,
			CodeTTL:         cfg.Session.CodeTTL,
			Lifetime:        cfg.Session.Lifetime,
			CodeDigits:      cfg.Session.CodeDigits,
			MaxCodeAttempts: cfg.Session.MaxCodeAttempts,
		},
		st.sessions,
		st.professionals,
		session.NewPasswordCredentials(st.professionals, hasher),
		notifier,
		auth.NewHMACSigner(cfg.Token.Secret, cfg.Token.Issuer),
		security.NewCodeHasher(cfg.Token.CodeHashKey()),
		clk,
		lg,
		m,
	)

	staging := intake.NewStaging(
		intake.Config{TTL: cfg.Intake.TTL, MaxPayloadBytes: cfg.Intake.MaxPayloadBytes},
		st.submissions,
		validator.New(),
		clk,
		lg,
		m,
	)

	coordinator := assignment.NewCoordinator(
		assignment.Config{MaxAttempts: cfg.Assignment.MaxAttempts},
		assignment.NewLedger(st.assignments, clk, m),
		st.cases,
		st.professionals,
		eligibility.NewFilter(cfg.Eligibility.CompatibleSubspecialties),
		assignment.NewCandidateCache(cfg.Assignment.CandidateCacheTTL),
		broker,
		clk,
		lg,
		m,
	)

	// The worker binary sweeps shared databases and audits Redis events. A
	// memory store and in-process broker are only visible here.
	if db == nil {
		zl, err := zap.NewProduction()
		if err != nil {
			lg.ZL.Fatal().Err(err).Msg("failed to build sweeper logger")
		}
		defer zl.Sync()
		go worker.NewIntakeSweeper(staging, cfg.Intake.SweepInterval, zl).Start(ctx)
		go worker.NewSessionSweeper(st.sessions, clk, cfg.Session.SweepGrace, cfg.Session.SweepInterval, m, zl).Start(ctx)
		if cfg.Redis.URL == "" {
			go func() {
				if err := worker.NewAssignmentAuditor(broker, m, zl).Start(ctx); err != nil {
					lg.Error(err, "assignment auditor failed")
				}
			}()
		}
	}

	// HTTP
	var pinger health.Pinger
	if db != nil {
		pinger = db
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	}
	routerConfig := router.RouterConfig{
		RequestTimeout:  cfg.Server.RequestTimeout,
		CORSConfig:      corsConfig,
		OperatorKey:     cfg.Server.OperatorKey,
		MaxRequestBytes: cfg.Intake.MaxPayloadBytes + 4096,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(authority),
		router.Handlers{
			Session:    sessionhandler.NewHandler(authority),
			Intake:     intakehandler.NewHandler(staging),
			Assignment: assignmenthandler.NewHandler(coordinator),
			Health:     health.NewHandler(pinger),
			Metrics:    prometheushandler.New(cfg.Server.MetricsPrefix, reg),
		},
		lg,
		routerConfig,
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Info("server listening", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.ZL.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.ZL.Fatal().Err(err).Msg("server forced to shutdown")
	}

	lg.Info("server exited properly")
}
