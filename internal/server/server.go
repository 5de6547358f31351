// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
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

	"github.com/chibuike-kt/risk-engine/internal/audit"
	"github.com/chibuike-kt/risk-engine/internal/checkpoint"
	"github.com/chibuike-kt/risk-engine/internal/config"
	"github.com/chibuike-kt/risk-engine/internal/decisions"
	"github.com/chibuike-kt/risk-engine/internal/events"
	"github.com/chibuike-kt/risk-engine/internal/health"
	"github.com/chibuike-kt/risk-engine/internal/logging"
	"github.com/chibuike-kt/risk-engine/internal/metrics"
	"github.com/chibuike-kt/risk-engine/internal/profiles"
	"github.com/chibuike-kt/risk-engine/internal/ratelimit"
	"github.com/chibuike-kt/risk-engine/internal/retry"
	"github.com/chibuike-kt/risk-engine/internal/risk"
	"github.com/chibuike-kt/risk-engine/internal/sanctions"
	"github.com/chibuike-kt/risk-engine/internal/security"
	"github.com/chibuike-kt/risk-engine/internal/traces"
	"github.com/chibuike-kt/risk-engine/internal/txn"
	"github.com/chibuike-kt/risk-engine/internal/validation"
	"github.com/chibuike-kt/risk-engine/migrations"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     *config.Config
	version string

	ledger      *audit.Ledger
	sanctions   *sanctions.Service
	decisions   *decisions.Service
	checkpoints *checkpoint.Service
	cpTimer     *checkpoint.Timer
	publisher   events.Publisher
	health      *health.Registry
	rateLimiter *ratelimit.Limiter

	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	shutdownTraces func(context.Context) error
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the build version reported in metrics and traces
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithPublisher replaces the configured event publisher (for testing)
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		version: "dev",
		logger:  logging.New(cfg.LogLevel, cfg.LogFormat),
		health:  health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.shutdownTraces = shutdownTraces

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		auditStore      audit.Store
		sanctionsStore  sanctions.Store
		profileStore    profiles.Store
		decisionStore   decisions.Store
		checkpointStore checkpoint.Store
		tx              txn.Manager
		storage         string
	)
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.logger.Info("connected to PostgreSQL", "dsn", maskDSN(cfg.DatabaseURL))

		if cfg.DBAutoMigrate {
			if err := migrations.Up(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			s.logger.Info("database migrations applied")
		}

		auditStore = audit.NewPostgresStore(db)
		sanctionsStore = sanctions.NewPostgresStore(db)
		profileStore = profiles.NewPostgresStore(db)
		decisionStore = decisions.NewPostgresStore(db)
		checkpointStore = checkpoint.NewPostgresStore(db)
		tx = txn.NewSQLManager(db)
		storage = "postgres"

		s.health.Register("database", health.DatabaseChecker(db, 2*time.Second))
		if err := metrics.RegisterDB(db, "risk"); err != nil {
			s.logger.Warn("failed to register pool metrics", "error", err)
		}
	} else {
		auditStore = audit.NewMemoryStore()
		sanctionsStore = sanctions.NewMemoryStore()
		profileStore = profiles.NewMemoryStore()
		decisionStore = decisions.NewMemoryStore()
		checkpointStore = checkpoint.NewMemoryStore()
		tx = txn.NewMemoryManager()
		storage = "memory"
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")
	}
	metrics.BuildInfo.WithLabelValues(s.version, storage).Set(1)

	if s.publisher == nil {
		if len(cfg.KafkaBrokers) > 0 {
			s.publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, s.logger)
			s.logger.Info("event publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		} else {
			s.publisher = events.NopPublisher{}
		}
	}

	s.ledger = audit.NewLedger(auditStore, tx)
	s.sanctions = sanctions.NewService(sanctionsStore, s.ledger, tx)
	s.decisions = decisions.NewService(
		decisionStore, profileStore, s.sanctions, risk.NewEngine(cfg.Rules), s.ledger, tx,
	).
		WithPublisher(s.publisher).
		WithLogger(s.logger).
		WithBaselineWindow(cfg.BaselineWindow).
		WithCaseListLimit(cfg.CaseListLimit)

	signer, verifier := s.loadKeys()
	s.checkpoints = checkpoint.NewService(checkpointStore, s.ledger, signer).WithVerifier(verifier)
	if cfg.CheckpointInterval > 0 {
		s.cpTimer = checkpoint.NewTimer(s.checkpoints, cfg.CheckpointInterval, s.logger)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// The database may still be starting when the service comes up.
	policy := retry.Policy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// loadKeys loads the checkpoint key pair. Keys that are missing or fail to
// load disable signing; unsigned checkpoints keep working either way. A
// public key that loads on its own still serves signature verification.
func (s *Server) loadKeys() (*checkpoint.Signer, *checkpoint.Verifier) {
	signer, err := checkpoint.LoadSigner(s.cfg.AuditSigningKey, s.cfg.AuditPublicKey)
	if err == nil {
		s.logger.Info("checkpoint signing enabled")
		return signer, signer.Verifier()
	}
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("checkpoint key not found, signed checkpoints disabled",
			"key", s.cfg.AuditSigningKey, "error", err)
	} else {
		s.logger.Error("failed to load checkpoint signing key, signed checkpoints disabled",
			"key", s.cfg.AuditSigningKey, "error", err)
	}

	verifier, err := checkpoint.LoadVerifier(s.cfg.AuditPublicKey)
	switch {
	case err == nil:
		s.logger.Warn("checkpoint signatures can be verified but not created",
			"public_key", s.cfg.AuditPublicKey)
		return nil, verifier
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("checkpoint public key not found, signature verification disabled",
			"public_key", s.cfg.AuditPublicKey)
	default:
		s.logger.Error("failed to load checkpoint public key, signature verification disabled",
			"public_key", s.cfg.AuditPublicKey, "error", err)
	}
	return nil, nil
}

// maskDSN hides password in connection string for logging
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

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Request ID first so every later log line carries it
	s.router.Use(logging.RequestIDMiddleware(s.logger))

	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
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

	if s.cfg.RateLimitRPM > 0 {
		rl := ratelimit.DefaultConfig()
		rl.RequestsPerMinute = s.cfg.RateLimitRPM
		s.rateLimiter = ratelimit.New(rl)
		s.router.Use(s.rateLimiter.Middleware())
	}

	s.router.Use(metrics.Middleware())
	s.router.Use(logging.AccessLogMiddleware())
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	api := s.router.Group("/")
	decisions.NewHandler(s.decisions).RegisterRoutes(api)
	sanctions.NewHandler(s.sanctions).RegisterRoutes(api)
	audit.NewHandler(s.ledger).RegisterRoutes(api)
	checkpoint.NewHandler(s.checkpoints).RegisterRoutes(api)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
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

	healthy, checks := s.health.CheckAll(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "version", s.version)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start scheduled checkpoints
	if s.cpTimer != nil {
		go s.cpTimer.Start(runCtx)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		// Give load balancers time to stop sending traffic
		time.Sleep(5 * time.Second)

		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.cpTimer != nil {
		s.cpTimer.Stop()
		s.logger.Info("checkpoint timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Flush pending events before the database goes away
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("event publisher close error", "error", err)
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	s.closeDB()

	s.logger.Info("server stopped")
	return nil
}

func (s *Server) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	} else {
		s.logger.Info("database connection closed")
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
