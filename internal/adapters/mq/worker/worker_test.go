package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mkanda/torifuda/internal/adapters/mq/queue"
	"github.com/mkanda/torifuda/internal/adapters/mq/worker"
	"github.com/mkanda/torifuda/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

type recordingProjector struct {
	mu       sync.Mutex
	sessions []string
	failures int
}

func (r *recordingProjector) apply(e worker.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("projection blew up")
	}
	r.sessions = append(r.sessions, e.SessionID)
	return nil
}

func (r *recordingProjector) setFailures(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

func (r *recordingProjector) failuresLeft() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *recordingProjector) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sessions...)
}

type ranker struct{ *recordingProjector }

func (r ranker) Upsert(_ context.Context, e worker.Event) error { return r.apply(e) }

type stats struct{ *recordingProjector }

func (s stats) Apply(_ context.Context, e worker.Event) error { return s.apply(e) }

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestWorkerProcessing(t *testing.T) {
	Convey("Given a worker wired to recording projectors", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16), queue.WithBufferSize(16))
		rk := ranker{&recordingProjector{}}
		st := stats{&recordingProjector{}}
		w := worker.NewInMemoryWorker(q, rk, st, worker.WithName("worker-test"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		Convey("When an event is enqueued", func() {
			So(q.Enqueue(ctx, worker.Event{SessionID: "s1", PlayerID: "p1"}), ShouldBeTrue)

			Convey("Then both projections are applied", func() {
				So(waitFor(func() bool { return len(rk.seen()) == 1 && len(st.seen()) == 1 }), ShouldBeTrue)
				So(rk.seen()[0], ShouldEqual, "s1")
				So(st.seen()[0], ShouldEqual, "s1")
			})
		})

		Convey("When the leaderboard projection fails transiently", func() {
			rk.setFailures(2)
			So(q.Enqueue(ctx, worker.Event{SessionID: "s2", PlayerID: "p1"}), ShouldBeTrue)
			So(q.Enqueue(ctx, worker.Event{SessionID: "s3", PlayerID: "p1"}), ShouldBeTrue)
			So(q.Enqueue(ctx, worker.Event{SessionID: "s4", PlayerID: "p1"}), ShouldBeTrue)

			Convey("Then failed events are requeued until every one lands", func() {
				So(waitFor(func() bool { return len(rk.seen()) == 3 }), ShouldBeTrue)

				landed := map[string]bool{}
				for _, id := range rk.seen() {
					landed[id] = true
				}
				So(landed, ShouldResemble, map[string]bool{"s2": true, "s3": true, "s4": true})
			})
		})

		Convey("When a projection keeps failing", func() {
			rk.setFailures(100)
			So(q.Enqueue(ctx, worker.Event{SessionID: "s9", PlayerID: "p1"}), ShouldBeTrue)

			Convey("Then delivery stops after the attempt limit", func() {
				// Five deliveries, then the event is dropped.
				So(waitFor(func() bool { return rk.failuresLeft() == 95 }), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				So(rk.failuresLeft(), ShouldEqual, 95)
				So(rk.seen(), ShouldBeEmpty)
			})
		})

		Convey("When the worker is shut down", func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), time.Second)
			defer cancelShutdown()
			So(w.Shutdown(shutdownCtx), ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64), queue.WithBufferSize(64))
		rk := ranker{&recordingProjector{}}
		st := stats{&recordingProjector{}}
		pool := worker.NewPool(4, q, rk, st)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		Convey("When many events are enqueued", func() {
			for i := 0; i < 20; i++ {
				So(q.Enqueue(ctx, worker.Event{SessionID: "s", PlayerID: "p"}), ShouldBeTrue)
			}

			Convey("Then every event is projected exactly once", func() {
				So(waitFor(func() bool { return len(rk.seen()) == 20 && len(st.seen()) == 20 }), ShouldBeTrue)
			})
		})

		Convey("When the pool shuts down", func() {
			So(pool.Shutdown(ctx), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
		})
	})
}
