package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/lighthouse/internal/adapters/http/api"
	"github.com/okian/lighthouse/internal/adapters/http/swagger"
	"github.com/okian/lighthouse/internal/adapters/repository"
	_ "github.com/okian/lighthouse/internal/adapters/repository/boltstore"
	_ "github.com/okian/lighthouse/internal/adapters/repository/filestore"
	_ "github.com/okian/lighthouse/internal/adapters/repository/sqlstore"
	service "github.com/okian/lighthouse/internal/app"
	"github.com/okian/lighthouse/internal/clock"
	"github.com/okian/lighthouse/internal/config"
	"github.com/okian/lighthouse/internal/domain/rating"
	"github.com/okian/lighthouse/internal/health"
	"github.com/okian/lighthouse/internal/telemetry"
	"github.com/okian/lighthouse/pkg/logger"
	"github.com/okian/lighthouse/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 35 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		// The logger may not be initialized yet.
		os.Stderr.WriteString("lighthouse: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> .env -> env)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			os.Stderr.WriteString("telemetry shutdown: " + err.Error() + "\n")
		}
	}()

	if err := initLogging(cfg, tel); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	a, err := newApplication(ctx, cfg, tel.TracerProvider.Tracer("github.com/okian/lighthouse"))
	if err != nil {
		return err
	}
	if err := a.svc.Start(ctx); err != nil {
		_ = a.store.Close()
		return fmt.Errorf("starting service: %w", err)
	}
	a.health.SetReady(true)

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, a.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store.Driver),
			logger.String("strategy", cfg.Rating.Strategy),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}
	log.Info(ctx, "shutting down server...")
	a.health.SetReady(false)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := a.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return runErr
}

func initLogging(cfg *config.Config, tel *telemetry.Provider) error {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if h := tel.LogHandler(); h != nil {
		opts = append(opts, logger.WithHandler(h))
	}
	if err := logger.Init(opts...); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

type application struct {
	store   repository.Store
	svc     *service.Service
	health  *health.Handler
	handler http.Handler
}

// newApplication opens the store and wires the engine, service and routes.
// The caller owns Start and Stop.
func newApplication(ctx context.Context, cfg *config.Config, tracer trace.Tracer) (*application, error) {
	log := logger.Get()

	store, err := repository.Open(ctx, cfg.Store, clock.Real{})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}

	engine, err := service.NewEngine(store, cfg.Rating,
		rating.WithLogger(log.Named("rating")),
		rating.WithTracer(tracer),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	svc := service.New(store, engine,
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		service.WithMinMatches(cfg.Rating.MinMatches),
	)

	hh := health.NewHandler(clock.Real{}, health.Checker{Name: "store", Check: svc.Ping})
	srv := api.NewServer(svc,
		api.WithHealth(hh),
		api.WithDocs(func(r chi.Router) { swagger.Register(ctx, r) }),
	)

	return &application{store: store, svc: svc, health: hh, handler: srv.Router()}, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// updateServiceMetrics refreshes gauges from service stats. Stats already
// updates the tracked player count.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats, err := svc.Stats(ctx)
	if err != nil {
		return
	}
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	metrics.UpdateWorkerCount(stats.Workers)
	if stats.LastApplied != nil {
		metrics.UpdateLastApplied(stats.LastApplied.Time)
	}
}
