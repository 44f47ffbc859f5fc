package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	"github.com/niavasha/greenledger/internal/adapters/http/api"
	app "github.com/niavasha/greenledger/internal/app"
	"github.com/niavasha/greenledger/internal/config"
	"github.com/niavasha/greenledger/pkg/logger"
	"github.com/niavasha/greenledger/pkg/metrics"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("GREENLEDGER_ADDR", ":8080")
			_ = os.Setenv("GREENLEDGER_QUEUE_SIZE", "1000")
			_ = os.Setenv("GREENLEDGER_WORKER_COUNT", "4")
			defer func() {
				_ = os.Unsetenv("GREENLEDGER_ADDR")
				_ = os.Unsetenv("GREENLEDGER_QUEUE_SIZE")
				_ = os.Unsetenv("GREENLEDGER_WORKER_COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing service creation", func() {
			convey.Convey("Then service should be creatable with default options", func() {
				svc := app.New()
				convey.So(svc, convey.ShouldNotBeNil)
			})

			convey.Convey("And service should be creatable with custom options", func() {
				svc := app.New(
					app.WithWorkerCount(8),
					app.WithQueueSize(2000),
					app.WithDedupeSize(1000),
				)
				convey.So(svc, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing HTTP server creation", func() {
			svc := app.New()
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then HTTP server should be creatable", func() {
				server := api.NewServer(svc, svc)
				convey.So(server, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			convey.Convey("Then metrics manager should be creatable", func() {
				registry := prometheus.NewRegistry()
				manager := metrics.NewManager(metrics.WithPrometheusRegistry(registry))
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestBackendBuilders(t *testing.T) {
	convey.Convey("Given the backend builders", t, func() {
		ctx := context.Background()

		convey.Convey("When the ledger driver is memory", func() {
			cfg := config.New()
			store, err := buildLedger(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store, convey.ShouldNotBeNil)
		})

		convey.Convey("When the ledger driver is sqlite", func() {
			cfg := config.New()
			cfg.LedgerDriver = "sqlite"
			cfg.LedgerSQLitePath = t.TempDir() + "/ledger.db"
			store, err := buildLedger(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(store, convey.ShouldNotBeNil)

			if closer, ok := store.(interface{ Close() error }); ok {
				convey.So(closer.Close(), convey.ShouldBeNil)
			}
		})

		convey.Convey("When the artifact backend is memory", func() {
			cfg := config.New()
			artifacts, err := buildArtifacts(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(artifacts, convey.ShouldNotBeNil)
		})

		convey.Convey("When the artifact backend is fs", func() {
			cfg := config.New()
			cfg.ArtifactBackend = "fs"
			cfg.ArtifactFSDir = t.TempDir()
			artifacts, err := buildArtifacts(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(artifacts, convey.ShouldNotBeNil)
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given main application integration", t, func() {
		convey.Convey("When testing full application setup", func() {
			_ = os.Setenv("GREENLEDGER_ADDR", ":8080")
			_ = os.Setenv("GREENLEDGER_QUEUE_SIZE", "1000")
			_ = os.Setenv("GREENLEDGER_WORKER_COUNT", "2")
			defer func() {
				_ = os.Unsetenv("GREENLEDGER_ADDR")
				_ = os.Unsetenv("GREENLEDGER_QUEUE_SIZE")
				_ = os.Unsetenv("GREENLEDGER_WORKER_COUNT")
			}()

			convey.Convey("Then all components should work together", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)

				svc := app.New(
					app.WithWorkerCount(cfg.WorkerCount),
					app.WithQueueSize(cfg.EventQueueSize),
					app.WithDedupeSize(cfg.DedupeSize),
				)
				convey.So(svc, convey.ShouldNotBeNil)
				convey.So(svc.Start(ctx), convey.ShouldBeNil)
				defer svc.Stop()

				server := api.NewServer(svc, svc)
				convey.So(server, convey.ShouldNotBeNil)

				mux := http.NewServeMux()
				server.Register(ctx, mux)
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("GREENLEDGER_ADDR", "")
			defer func() { _ = os.Unsetenv("GREENLEDGER_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
