package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	assignmenthandler "github.com/jwalitptl/opinion-api/internal/handler/assignment"
	"github.com/jwalitptl/opinion-api/internal/handler/health"
	intakehandler "github.com/jwalitptl/opinion-api/internal/handler/intake"
	"github.com/jwalitptl/opinion-api/internal/handler/prometheus"
	sessionhandler "github.com/jwalitptl/opinion-api/internal/handler/session"
	"github.com/jwalitptl/opinion-api/internal/middleware"
	"github.com/jwalitptl/opinion-api/pkg/logger"
)

type Handlers struct {
	Session    *sessionhandler.Handler
	Intake     *intakehandler.Handler
	Assignment *assignmenthandler.Handler
	Health     *health.Handler
	Metrics    *prometheus.Handler
}

type RouterConfig struct {
	RequestTimeout time.Duration
	// RateLimit of zero disables rate limiting.
	RateLimit       rate.Limit
	RateBurst       int
	CORSConfig      middleware.CORSConfig
	OperatorKey     string
	MaxRequestBytes int64
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   RouterConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	log *logger.Logger,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
	}

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = middleware.DefaultTimeoutConfig().Duration
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
	)
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}
	engine.Use(
		middleware.ErrorHandler(log),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}
	if config.MaxRequestBytes > 0 {
		engine.Use(middleware.SizeLimit(config.MaxRequestBytes))
	}

	return r
}

func (r *Router) Setup() {
	if r.handlers.Metrics != nil {
		r.engine.GET("/metrics", r.handlers.Metrics.Handler())
	}

	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}

	operator := api.Group("/operator")
	operator.Use(middleware.OperatorKey(r.config.OperatorKey))

	r.handlers.Session.RegisterRoutes(api, r.auth.Bearer())
	r.handlers.Intake.RegisterRoutes(api, operator)
	r.handlers.Assignment.RegisterCaseRoutes(operator)

	protected := api.Group("")
	protected.Use(r.auth.RequireSession())
	r.handlers.Assignment.RegisterAssignmentRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
