// Package httpapi exposes the gateway over HTTP: synchronous and streamed tool
// calls, the tool listing, health, and the admin record lookup.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tool_gateway/internal/auth"
	"tool_gateway/internal/billing"
	"tool_gateway/internal/config"
	"tool_gateway/internal/gateway"
	"tool_gateway/internal/logging"
	"tool_gateway/internal/middleware"
	"tool_gateway/internal/pricing"
	"tool_gateway/internal/queue"
	"tool_gateway/internal/registry"
	"tool_gateway/internal/storage"
	"tool_gateway/internal/tools"
	"tool_gateway/internal/tracking"
	"tool_gateway/internal/utils"
)

// HealthCheck probes one backing service
type HealthCheck func(ctx context.Context) error

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Gateway *gateway.Gateway
	Callers *auth.KeyDeriver
	// Admin validates admin tokens; nil disables the admin routes.
	Admin         *auth.TokenIssuer
	RequireAPIKey bool
	MaxBodyBytes  int64
	HealthChecks  map[string]HealthCheck
	// PoolStats reports database pool usage on /health when set
	PoolStats func() storage.DBStats

	// Background processing, stopped by Shutdown
	BillingWorker *billing.BillingQueueWorker
	Audit         logging.Sink

	closers []func() error
	logger  *utils.Logger
}

// NewRouter creates an HTTP handler with all dependencies wired up
func NewRouter(ctx context.Context, cfg *config.Config) (http.Handler, *Dependencies, error) {
	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewHandler(deps), deps, nil
}

// NewDependencies connects to PostgreSQL and, when configured, Redis, then
// builds the gateway and starts the background workers.
func NewDependencies(ctx context.Context, cfg *config.Config) (_ *Dependencies, err error) {
	logger := utils.NewLogger("httpapi")
	deps := &Dependencies{
		RequireAPIKey: cfg.RequireAPIKey,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		HealthChecks:  map[string]HealthCheck{},
		logger:        logger,
	}
	defer func() {
		if err != nil {
			_ = deps.Shutdown(ctx)
		}
	}()

	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	// Initialize database
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.closers = append(deps.closers, db.Close)
	deps.HealthChecks["database"] = db.Health
	deps.PoolStats = db.GetStats

	// Initialize Redis client (optional)
	var redisClient *storage.RedisClient
	if cfg.RedisEnabled() {
		redisCfg := storage.DefaultRedisConfig()
		redisCfg.Address = cfg.Redis.Address
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisClient, err = storage.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		deps.closers = append(deps.closers, redisClient.Close)
		deps.HealthChecks["redis"] = redisClient.Health
	} else {
		logger.Warn("REDIS_ADDRESS not set, using PostgreSQL volume counts and in-memory queues")
	}

	// Pricing
	model, err := pricing.LoadModel(cfg.Pricing.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing: %w", err)
	}

	// Tracking
	tracker := tracking.NewTracker(db.NewTrackingRepository(), model, tracking.Config{
		StoreTimeout:       cfg.Tracker.StoreTimeout,
		CompletedCacheSize: cfg.Tracker.CompletedCacheSize,
		CompletedCacheTTL:  cfg.Tracker.CompletedCacheTTL,
	})

	// Tools
	router, err := tools.NewRouter(registry.New(db.NewEntityRepository()).Executors(),
		tools.Config{ExecutionTimeout: cfg.Tools.ExecutionTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tool router: %w", err)
	}

	// Monthly volume: Redis counters when available, otherwise derived from tool_requests
	var volume billing.VolumeService
	if redisClient != nil {
		volume = billing.NewRedisVolumeService(redisClient.Client())
	} else {
		volume = db.NewVolumeRepository(tools.Names())
	}

	// Billing queue
	billingWorker, err := newBillingWorker(cfg.BillingQueue, redisClient, volume)
	if err != nil {
		return nil, err
	}
	billingWorker.Start(context.Background())
	deps.BillingWorker = billingWorker

	// Audit sinks
	audit, err := newAuditSink(ctx, cfg, redisClient)
	if err != nil {
		return nil, err
	}
	deps.Audit = audit

	deps.Callers, err = auth.NewKeyDeriver(cfg.CallerKeyPepper)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize caller keys: %w", err)
	}
	if len(cfg.JWTSecret) > 0 {
		deps.Admin, err = auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AdminTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize admin tokens: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set, admin endpoints disabled")
	}

	deps.Gateway, err = gateway.New(gateway.Dependencies{
		Tracker: tracker,
		Router:  router,
		Pricing: model,
		Volume:  volume,
		Billing: billingWorker,
		Audit:   audit,
	}, gateway.Config{VolumeLookupTimeout: cfg.Tools.VolumeLookupTimeout})
	if err != nil {
		return nil, err
	}

	return deps, nil
}

func newBillingWorker(cfg config.QueueConfig, redisClient *storage.RedisClient, volume billing.VolumeService) (*billing.BillingQueueWorker, error) {
	qcfg := queue.DefaultConfig("billing")
	qcfg.Capacity = cfg.Capacity
	qcfg.BatchSize = cfg.BatchSize
	qcfg.BatchTimeout = cfg.BatchTimeout
	qcfg.MaxRetries = cfg.MaxRetries
	qcfg.RetryBackoff = cfg.RetryBackoff

	if redisClient == nil {
		return billing.NewBillingQueueWorker(
			queue.NewMemoryQueue[billing.UsageEvent](qcfg),
			queue.NewMemoryDeadLetterQueue[billing.UsageEvent](),
			volume, qcfg), nil
	}

	q, err := queue.NewRedisQueue[billing.UsageEvent](redisClient.Client(), qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing queue: %w", err)
	}
	dlq, err := queue.NewRedisDeadLetterQueue[billing.UsageEvent](redisClient.Client(), qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing DLQ: %w", err)
	}
	return billing.NewBillingQueueWorker(q, dlq, volume, qcfg), nil
}

// newAuditSink builds the configured audit sinks. With none enabled the
// gateway gets a no-op sink.
func newAuditSink(ctx context.Context, cfg *config.Config, redisClient *storage.RedisClient) (logging.Sink, error) {
	var sinks []logging.Sink
	fail := func(err error) (logging.Sink, error) {
		for _, s := range sinks {
			_ = s.Shutdown(ctx)
		}
		return nil, err
	}

	if cfg.AuditFile.Enabled {
		fileSink, err := logging.NewFileSink(logging.FileSinkConfig{
			FileTemplate:  cfg.AuditFile.FilePathTemplate,
			MaxSize:       cfg.AuditFile.MaxSize,
			MaxFiles:      cfg.AuditFile.MaxFiles,
			BufferSize:    cfg.AuditFile.BufferSize,
			FlushInterval: cfg.AuditFile.FlushInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize audit file: %w", err)
		}
		sinks = append(sinks, fileSink)
	}

	if cfg.AuditS3.Enabled {
		writer, err := logging.NewS3Writer(ctx, logging.S3WriterConfig{
			Bucket:   cfg.AuditS3.S3Bucket,
			Region:   cfg.AuditS3.S3Region,
			Prefix:   cfg.AuditS3.S3Prefix,
			PodName:  cfg.AuditS3.PodName,
			Endpoint: cfg.AuditS3.S3Endpoint,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to initialize audit S3 writer: %w", err))
		}
		sinkCfg := logging.S3SinkConfig{
			BufferSize:    cfg.AuditS3.BufferSize,
			FlushSize:     cfg.AuditS3.FlushSize,
			FlushInterval: cfg.AuditS3.FlushInterval,
		}
		if redisClient != nil {
			// Records survive a pod restart in Redis until some pod flushes them.
			q, err := queue.NewRedisQueue[*logging.LogRecord](redisClient.Client(), queue.DefaultConfig("audit"))
			if err != nil {
				return fail(fmt.Errorf("failed to create audit queue: %w", err))
			}
			sinks = append(sinks, logging.NewS3SinkWithQueue(writer, q, sinkCfg))
		} else {
			sinks = append(sinks, logging.NewS3Sink(writer, sinkCfg))
		}
	}

	if len(sinks) == 0 {
		return logging.NewNoopSink(), nil
	}
	return logging.NewMultiSink(sinks...), nil
}

// NewHandler registers every route on a fresh mux and wraps it with panic recovery
func NewHandler(deps *Dependencies) http.Handler {
	if deps.logger == nil {
		deps.logger = utils.NewLogger("httpapi")
	}
	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return middleware.RecoverMiddleware(deps.logger)(mux)
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Tool endpoints - caller identified by API key
	callerMiddleware := middleware.CallerMiddleware(deps.Callers, deps.RequireAPIKey)
	mux.Handle("POST /v1/tools/{name}", callerMiddleware(http.HandlerFunc(deps.handleCallTool)))
	mux.HandleFunc("GET /v1/tools", deps.handleListTools)

	// Health check endpoint - public
	mux.HandleFunc("GET /health", deps.handleHealth)

	if deps.Admin == nil {
		return
	}

	// Admin endpoints - protected with AdminJWTMiddleware
	viewerMiddleware := middleware.AdminJWTMiddleware(deps.Admin, auth.RoleViewer)
	adminMiddleware := middleware.AdminJWTMiddleware(deps.Admin, auth.RoleAdmin)
	mux.Handle("GET /admin/requests/{id}", viewerMiddleware(http.HandlerFunc(deps.handleGetRequest)))
	mux.Handle("GET /admin/billing/dead-letters", adminMiddleware(http.HandlerFunc(deps.handleListDeadLetters)))
	mux.Handle("POST /admin/billing/dead-letters/{id}/retry", adminMiddleware(http.HandlerFunc(deps.handleRetryDeadLetter)))
}

type healthResponse struct {
	Status          string            `json:"status"`
	Checks          map[string]string `json:"checks,omitempty"`
	PendingRequests int               `json:"pending_requests"`
	DatabasePool    *storage.DBStats  `json:"database_pool,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}, PendingRequests: d.Gateway.Pending()}
	if d.PoolStats != nil {
		stats := d.PoolStats()
		resp.DatabasePool = &stats
	}
	code := http.StatusOK
	for name, check := range d.HealthChecks {
		if err := check(ctx); err != nil {
			d.logger.Warn("Health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	_ = utils.RespondWithJSON(w, code, resp)
}

// Shutdown stops the billing worker, drains the audit sinks and closes
// connections. In-flight HTTP requests must have finished.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	var errs []error
	if d.BillingWorker != nil {
		if err := d.BillingWorker.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("billing worker: %w", err))
		}
	}
	if d.Audit != nil {
		if err := d.Audit.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit sink: %w", err))
		}
	}
	if err := d.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dependencies) closeAll() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
