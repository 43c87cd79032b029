package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty or nil option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the defaults stay in place", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "torifuda")
				So(manager.subsystem, ShouldEqual, "competition")
			})
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the global registry", t, func() {
		Convey("Then it should be available for the metrics handler", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given metrics recording", t, func() {
		Convey("When recording confirmation metrics", func() {
			So(func() {
				RecordConfirmation("confirmed")
				RecordConfirmation("invalid")
				RecordConfirmation("expired")
				RecordConfirmation("duplicate")
				RecordAnomalyCode("TOO_FAST")
				RecordAnomalyCode("ROUND_COUNT_MISMATCH")
				RecordConfirmationLatency(2.5)
			}, ShouldNotPanic)
		})

		Convey("When recording projection metrics", func() {
			So(func() {
				RecordRankingUpsert()
				RecordProjectionLatency(1.0)
				UpdateLeaderboardSize("2026-summer", "general", 42)
			}, ShouldNotPanic)
		})

		Convey("When recording season and promotion metrics", func() {
			So(func() {
				RecordSeasonTransition("frozen")
				RecordSeasonTransition("finalized")
				RecordPromotion("dan")
				RecordPromotion("kyui")
			}, ShouldNotPanic)
		})

		Convey("When recording store metrics", func() {
			So(func() {
				RecordStoreUpdateLatency(0.5)
				RecordStoreRetry()
				RecordStoreConflict()
			}, ShouldNotPanic)
		})

		Convey("When recording queue metrics", func() {
			So(func() {
				UpdateQueueSize(100)
				UpdateQueueCapacity(100_000)
				UpdateQueueUtilization(0.001)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
			}, ShouldNotPanic)
		})

		Convey("When recording worker metrics", func() {
			So(func() {
				UpdateWorkerActiveCount(8)
				RecordWorkerError()
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("sessions", "POST", "201")
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("sessions", "POST", "201", 5.0)
				RecordErrorByComponent("http", "client_error")
			}, ShouldNotPanic)
		})

		Convey("When recording system metrics", func() {
			So(func() {
				UpdateSystemMetrics()
			}, ShouldNotPanic)
		})

		Convey("When recording with edge values", func() {
			So(func() {
				UpdateQueueSize(0)
				UpdateQueueSize(-1)
				UpdateLeaderboardSize("", "", 0)
				RecordHTTPRequest("", "", "")
				RecordConfirmationLatency(0)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recording", t, func() {
		done := make(chan bool, 10)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordRankingUpsert()
					UpdateQueueSize(j)
					RecordConfirmationLatency(float64(j))
					RecordHTTPRequest("sessions", "POST", "201")
				}
				done <- true
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then concurrent access should not panic", func() {
			So(true, ShouldBeTrue)
		})
	})
}
