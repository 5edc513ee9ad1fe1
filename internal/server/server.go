// Package server wires the gating subsystem and the back-office routes into
// one HTTP server.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/kordun/tresor/internal/auth"
	"github.com/kordun/tresor/internal/challenge"
	"github.com/kordun/tresor/internal/circuitbreaker"
	"github.com/kordun/tresor/internal/config"
	"github.com/kordun/tresor/internal/gate"
	"github.com/kordun/tresor/internal/health"
	"github.com/kordun/tresor/internal/logging"
	"github.com/kordun/tresor/internal/metrics"
	"github.com/kordun/tresor/internal/mfa"
	"github.com/kordun/tresor/internal/ratelimit"
	"github.com/kordun/tresor/internal/scorer"
	"github.com/kordun/tresor/internal/security"
	"github.com/kordun/tresor/internal/sentinel"
	"github.com/kordun/tresor/internal/session"
	"github.com/kordun/tresor/internal/telemetry"
	"github.com/kordun/tresor/internal/traces"
	"github.com/kordun/tresor/internal/treasury"
	"github.com/kordun/tresor/internal/validation"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg *config.Config

	sessions session.Store
	tracker  mfa.Tracker
	scorer   scorer.Client
	breaker  *circuitbreaker.Breaker
	audit    sentinel.Store

	evaluator   *sentinel.Evaluator
	coordinator *challenge.Coordinator
	gateway     *gate.Gate
	authMgr     *auth.Manager
	treasury    *treasury.Service
	simulator   *treasury.Simulator
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry

	redis *redis.Client
	db    *sql.DB

	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

	tracesShutdown func(context.Context) error

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScorer injects a scorer client (for testing).
func WithScorer(c scorer.Client) Option {
	return func(s *Server) {
		s.scorer = c
	}
}

// WithSessionStore injects a session store (for testing).
func WithSessionStore(store session.Store) Option {
	return func(s *Server) {
		s.sessions = store
	}
}

// WithMFATracker injects an MFA tracker (for testing).
func WithMFATracker(t mfa.Tracker) Option {
	return func(s *Server) {
		s.tracker = t
	}
}

// New creates a server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Shared stores: Redis when configured, in-memory otherwise.
	if cfg.RedisAddr != "" && (s.sessions == nil || s.tracker == nil) {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if s.sessions == nil {
			store, err := session.NewRedisStore(ctx, s.redis, cfg.SessionTTL)
			if err != nil {
				return nil, fmt.Errorf("failed to connect session store: %w", err)
			}
			s.sessions = store
		}
		if s.tracker == nil {
			s.tracker = mfa.NewRedisTracker(s.redis, cfg.MFAAbsoluteTTL, cfg.MFAIdleTTL)
		}
		s.logger.Info("using Redis stores", "addr", cfg.RedisAddr)

		s.checks.Register("redis", func(ctx context.Context) health.Status {
			if err := s.redis.Ping(ctx).Err(); err != nil {
				return health.Status{Name: "redis", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "redis", Healthy: true}
		})
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore(cfg.SessionTTL)
		s.logger.Info("using in-memory session store (single node only)")
	}
	if s.tracker == nil {
		s.tracker = mfa.NewMemoryTracker(cfg.MFAAbsoluteTTL, cfg.MFAIdleTTL)
	}

	// Decision audit trail: Postgres when configured, in-memory otherwise.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.audit = sentinel.NewPostgresStore(db)
		s.logger.Info("decision audit trail on PostgreSQL", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("postgres", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "postgres", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "postgres", Healthy: true}
		})
	} else {
		s.audit = sentinel.NewMemoryStore()
		s.logger.Info("decision audit trail in memory (will not persist)")
	}

	// Scorer client: real when configured, mock ALLOW in development.
	if s.scorer == nil {
		if cfg.ScorerURL != "" {
			s.scorer = scorer.NewHTTPClient(cfg.ScorerURL, cfg.ScorerTimeout)
			s.logger.Info("behavioral scorer configured", "url", cfg.ScorerURL)
		} else {
			s.scorer = scorer.NewMock(string(sentinel.DecisionAllow))
			s.logger.Warn("no SCORER_URL set, using mock scorer (every action allowed)")
		}
	}

	s.breaker = circuitbreaker.New("scorer", cfg.BreakerTrips, cfg.BreakerOpenFor)
	s.checks.Register("scorer", func(ctx context.Context) health.Status {
		if state := s.breaker.State(); state == circuitbreaker.StateOpen {
			return health.Status{Name: "scorer", Healthy: false, Detail: "circuit open"}
		}
		return health.Status{Name: "scorer", Healthy: true}
	})

	s.evaluator = sentinel.NewEvaluator(s.sessions, s.tracker, s.scorer, s.breaker, s.audit)
	s.coordinator = challenge.NewCoordinator(cfg.ChallengeTTL)
	s.authMgr = auth.NewManager()
	s.gateway = gate.New(s.evaluator, s.coordinator, s.authMgr)

	s.treasury = treasury.NewService()
	s.simulator = treasury.NewSimulator(s.treasury)

	limitCfg := ratelimit.DefaultConfig()
	if cfg.RateLimitRPM > 0 {
		limitCfg.RequestsPerMinute = cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limitCfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(s.requestLogMiddleware())
}

func (s *Server) requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")

	// Credential issuing. In production the IdP in front of the back office
	// owns login; this endpoint keeps the service exercisable standalone.
	authHandler := auth.NewHandler(s.authMgr)
	v1.POST("/login", authHandler.Login)

	authed := v1.Group("")
	authed.Use(auth.Middleware(s.authMgr))

	// Telemetry ingress: high-frequency, so it alone carries the rate limit.
	ingress := authed.Group("")
	ingress.Use(s.rateLimiter.Middleware())
	telemetryHandler := telemetry.NewHandler(s.sessions, telemetry.NewForwarder(s.scorer, s.cfg.ForwardAttempts))
	telemetryHandler.RegisterRoutes(ingress)

	challengeHandler := challenge.NewHandler(s.coordinator, s.tracker)
	challengeHandler.RegisterRoutes(authed)

	treasuryHandler := treasury.NewHandler(s.treasury, s.simulator, s.gateway)
	treasuryHandler.RegisterRoutes(authed)

	// Decision audit trail (operational, read-only).
	authed.GET("/sessions/:id/decisions", s.listDecisions)
}

// listDecisions handles GET /v1/sessions/:id/decisions
func (s *Server) listDecisions(c *gin.Context) {
	recs, err := s.audit.ListBySession(c.Request.Context(), c.Param("id"), 100)
	if err != nil {
		logging.L(c.Request.Context()).Error("list decisions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list decisions",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// AuthManager exposes the credential manager for tests.
func (s *Server) AuthManager() *auth.Manager {
	return s.authMgr
}

// Coordinator exposes the challenge coordinator for tests.
func (s *Server) Coordinator() *challenge.Coordinator {
	return s.coordinator
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)
	code := http.StatusOK
	status := "ready"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": statuses,
	})
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdown
	}

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and its background goroutines.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.simulator.Stop()
	s.coordinator.Stop()
	s.rateLimiter.Stop()
	if ms, ok := s.sessions.(*session.MemoryStore); ok {
		ms.Stop()
	}
	if mt, ok := s.tracker.(*mfa.MemoryTracker); ok {
		mt.Stop()
	}

	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Warn("traces shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
