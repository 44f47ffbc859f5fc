package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/niavasha/greenledger/internal/adapters/artifact"
	"github.com/niavasha/greenledger/internal/adapters/http/api"
	"github.com/niavasha/greenledger/internal/adapters/ledger"
	"github.com/niavasha/greenledger/internal/adapters/reportsvc"
	app "github.com/niavasha/greenledger/internal/app"
	"github.com/niavasha/greenledger/internal/config"
	"github.com/niavasha/greenledger/pkg/logger"
	"github.com/niavasha/greenledger/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Disable default Go metrics collection; the service exports its
	// own system metrics on the custom registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env).
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel), logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	store, err := buildLedger(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open ledger", logger.Error(err))
		return
	}

	artifacts, err := buildArtifacts(ctx, cfg)
	if err != nil {
		log.Error(ctx, "failed to open artifact store", logger.Error(err))
		return
	}

	opts := []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithArtifacts(artifacts),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithThresholds(cfg.ThresholdSet()),
		app.WithVelocityWindow(time.Duration(cfg.VelocityWindowDays) * 24 * time.Hour),
		app.WithMaxNarrativeBytes(cfg.ReportMaxNarrativeBytes),
	}
	if cfg.ReportServiceURL != "" {
		retry := reportsvc.DefaultRetryConfig()
		retry.MaxAttempts = cfg.ReportMaxRetries
		client := reportsvc.NewHTTPClient(cfg.ReportServiceURL,
			reportsvc.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.ReportTimeoutMS) * time.Millisecond}),
			reportsvc.WithRetryConfig(retry),
			reportsvc.WithLogger(log.Named("reportsvc")),
		)
		opts = append(opts, app.WithReportClient(client))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Error(ctx, "ledger close failed", logger.Error(err))
		}
	}

	log.Info(ctx, "server stopped")
}

// buildLedger opens the configured ledger backend.
func buildLedger(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	if cfg.LedgerDriver == "sqlite" {
		return ledger.OpenSQLite(ctx, cfg.LedgerSQLitePath)
	}
	return ledger.NewMemoryStore(), nil
}

// buildArtifacts opens the configured artifact backend.
func buildArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.ArtifactBackend {
	case "fs":
		return artifact.NewFSStore(cfg.ArtifactFSDir)
	case "s3":
		var opts []artifact.S3Option
		if cfg.ArtifactS3Prefix != "" {
			opts = append(opts, artifact.WithS3Prefix(cfg.ArtifactS3Prefix))
		}
		return artifact.NewS3Store(ctx, cfg.ArtifactS3Bucket, opts...)
	default:
		return artifact.NewMemoryStore(), nil
	}
}

// startSystemMetricsUpdater updates system metrics on an interval.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}

// startServiceMetricsUpdater refreshes queue depth from the service.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(svc.QueueLen(ctx))
		}
	}
}
