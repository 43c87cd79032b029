package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"

	"github.com/mkanda/torifuda/internal/adapters/http/api"
	"github.com/mkanda/torifuda/internal/adapters/scheduler"
	"github.com/mkanda/torifuda/internal/app"
	"github.com/mkanda/torifuda/internal/config"
	"github.com/mkanda/torifuda/pkg/logger"
	"github.com/mkanda/torifuda/pkg/metrics"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("TORIFUDA_ADDR", ":8080")
			t.Setenv("TORIFUDA_QUEUE_SIZE", "1000")
			t.Setenv("TORIFUDA_WORKER_COUNT", "4")

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing service creation", func() {
			svc, err := app.New(context.Background(), config.New())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc, convey.ShouldNotBeNil)

			convey.Convey("Then the HTTP server should be creatable", func() {
				server := api.NewServer(svc)
				convey.So(server, convey.ShouldNotBeNil)

				mux := http.NewServeMux()
				server.Register(context.Background(), mux)
			})
		})

		convey.Convey("When testing scheduler creation", func() {
			cfg := config.New()
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)

			sched, err := scheduler.New(cfg.BoundarySchedule, loc, func(context.Context) {})
			convey.So(err, convey.ShouldBeNil)
			convey.So(sched, convey.ShouldNotBeNil)

			convey.Convey("And an invalid schedule should fail", func() {
				_, err := scheduler.New("not a cron spec", loc, func(context.Context) {})
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When testing metrics initialization", func() {
			registry := prometheus.NewRegistry()
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(registry))
			convey.So(manager, convey.ShouldNotBeNil)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing the system metrics updater", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() {
				startSystemMetricsUpdater(ctx)
			}, convey.ShouldNotPanic)
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the address is cleared", func() {
			t.Setenv("TORIFUDA_ADDR", "")

			convey.Convey("Then configuration loading should fail", func() {
				_, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}
