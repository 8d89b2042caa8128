package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/ericfisherdev/cookiepool/internal/adapter/driven/chromium"
	"github.com/ericfisherdev/cookiepool/internal/adapter/driven/filestore"
	"github.com/ericfisherdev/cookiepool/internal/adapter/driven/metrics"
	"github.com/ericfisherdev/cookiepool/internal/adapter/driven/process"
	sqliteadapter "github.com/ericfisherdev/cookiepool/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/cookiepool/internal/adapter/driving/http"
	"github.com/ericfisherdev/cookiepool/internal/application"
	"github.com/ericfisherdev/cookiepool/internal/config"
	"github.com/ericfisherdev/cookiepool/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"db_path", cfg.DBPath,
		"extractor", cfg.ExtractorPath,
		"health_check_interval", cfg.HealthCheckInterval,
		"fallback_enabled", cfg.FallbackEnabled,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "version", version)

	// 5. Wire adapters.
	clk := clock.RealClock{}
	poolStore := sqliteadapter.NewPoolRepo(db)
	files, err := filestore.NewCredentialFiles(cfg.CookiesDir())
	if err != nil {
		return err
	}
	runner := process.NewRunner()
	prom := metrics.NewPrometheus()
	warmer, err := chromium.NewWarmer(chromium.Config{
		ExecPath:   cfg.ChromePath,
		ProfileDir: cfg.ChromeProfileDir,
		Dir:        cfg.EphemeralDir(),
		Timeout:    cfg.WarmupTimeout,
	}, clk)
	if err != nil {
		return err
	}

	// 6. Create the pool and bring it in line with the cookies directory.
	pool := application.NewCredentialPool(poolStore, files, clk, cfg.FailureThreshold, cfg.FormatMarker)
	orphans, dangling, err := pool.Reconcile(ctx)
	if err != nil {
		return err
	}
	if orphans > 0 || dangling > 0 {
		slog.Warn("pool reconciled with cookies directory", "orphan_files", orphans, "dangling_records", dangling)
	}

	// 7. Create services.
	classifier := application.NewClassifier(cfg.ExtraBlockMarkers)
	probe := application.NewHealthProbe(runner, classifier, cfg.ExtractorPath, cfg.ProbeTargets, cfg.ProbeTimeout)
	healthSvc := application.NewHealthService(pool, probe, prom, clk, cfg.ProbeDelay)
	healthSvc.PublishStats(ctx)

	scheduler := application.NewHealthScheduler(healthSvc, clk, cfg.HealthCheckInitialDelay, cfg.HealthCheckInterval)

	orchestrator := application.NewFallbackOrchestrator(pool, warmer, prom, clk, application.FallbackConfig{
		MaxRotations:  cfg.MaxRotations,
		RotationDelay: cfg.RotationDelay,
		Enabled:       cfg.FallbackEnabled,
		EphemeralTTL:  cfg.EphemeralTTL,
	})
	extractor := application.NewExtractor(runner, classifier, cfg.ExtractorPath, cfg.ExtractTimeout)
	resolver := application.NewResolver(orchestrator, extractor)

	// 8. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(pool, healthSvc, scheduler, resolver, logger)

	// Resolve may run the extractor once per rotation plus a browser warm-up.
	writeTimeout := cfg.ExtractTimeout*time.Duration(cfg.MaxRotations+2) + cfg.WarmupTimeout

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, prom.Handler(), logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// 9. Wait for shutdown signal or a server failure.
		<-gctx.Done()
		slog.Info("shutting down")

		// 10. Graceful shutdown with 10s timeout for in-flight requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	slog.Info("cookiepool started",
		"listen_addr", cfg.ListenAddr,
		"failure_threshold", cfg.FailureThreshold,
		"max_rotations", cfg.MaxRotations,
	)

	if err := g.Wait(); err != nil {
		return err
	}

	// 11. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}
