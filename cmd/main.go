package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/strata/internal/adapters/ai"
	"github.com/okian/strata/internal/adapters/http/api"
	"github.com/okian/strata/internal/adapters/repository"
	app "github.com/okian/strata/internal/app"
	"github.com/okian/strata/internal/config"
	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/suggest"
	"github.com/okian/strata/pkg/logger"
	"github.com/okian/strata/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 2 * time.Minute
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		// Logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "service exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := newStore(cfg)
	if err != nil {
		return err
	}

	engine := newEngine(cfg)
	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithEngine(engine),
		app.WithSuggester(newSuggester(cfg, engine, log)),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithJobTimeout(cfg.JobTimeout()),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("storage", cfg.StorageDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func newStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		s, err := repository.NewSQLiteStore(cfg.StorageDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	default:
		return repository.NewMemStore(), nil
	}
}

func newEngine(cfg *config.Config) *correlation.Engine {
	return correlation.NewEngine(
		correlation.WithMinOverlap(cfg.MinOverlap),
		correlation.WithMaxGridPoints(cfg.MaxGridPoints),
		correlation.WithResolution(cfg.CorrelationResolution),
	)
}

// newSuggester asks the remote service first when one is configured and
// falls back to the deterministic correlation suggester.
func newSuggester(cfg *config.Config, engine *correlation.Engine, log logger.Logger) suggest.Suggester {
	local := suggest.NewCorrelationSuggester(
		suggest.WithEngine(engine),
		suggest.WithTopK(cfg.SuggestTopK),
		suggest.WithAnchors(cfg.SuggestAnchors),
		suggest.WithMaxLag(cfg.SuggestMaxLag),
		suggest.WithLagStep(cfg.SuggestLagStep),
	)
	if cfg.AIEndpoint == "" {
		return local
	}
	remote := ai.NewRemoteSuggester(cfg.AIEndpoint,
		ai.WithTimeout(cfg.AITimeout()),
		ai.WithRetries(cfg.AIRetries),
		ai.WithBackoff(cfg.AIBackoff()),
		ai.WithLogger(log.Named("ai")),
	)
	return suggest.Fallback{Primary: remote, Secondary: local}
}

// startSystemMetricsUpdater refreshes memory and goroutine gauges.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateSystemStats()
		}
	}
}
