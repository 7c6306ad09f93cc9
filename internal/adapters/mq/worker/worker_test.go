package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/pokearena/scoresync/internal/adapters/mq/queue"
	"github.com/pokearena/scoresync/internal/adapters/mq/worker"
	"github.com/pokearena/scoresync/internal/adapters/repository"
	"github.com/pokearena/scoresync/internal/domain/model"
	"github.com/pokearena/scoresync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

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

func TestPoolAppliesQueuedSubmissions(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool over a queue and a memory store", t, func() {
		store := repository.NewMemoryStore()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		pool := worker.NewPool(4, q, store)
		pool.Start(ctx)
		defer pool.Stop()

		Convey("When deltas for one device are enqueued", func() {
			const n = 20
			for i := range n {
				ok := q.Enqueue(ctx, model.Submission{
					Scheme:   model.SchemeDevice,
					UID:      "bulk-1",
					Player:   "Lan",
					Mode:     model.ModeDelta,
					Counters: model.Counters{Rounds: 1},
					Marker:   int64(i + 1),
				})
				So(ok, ShouldBeTrue)
			}

			Convey("Then every delta lands exactly once", func() {
				So(waitFor(func() bool {
					agg, err := store.Get(ctx, model.SchemeDevice, "bulk-1")
					return err == nil && agg.Rounds == n
				}), ShouldBeTrue)
			})
		})

		Convey("When the same sequence is enqueued twice", func() {
			for range 2 {
				So(q.Enqueue(ctx, model.Submission{
					Scheme:   model.SchemeDevice,
					UID:      "bulk-2",
					Player:   "Minh",
					Mode:     model.ModeDelta,
					Counters: model.Counters{KOs: 3},
					Marker:   7,
				}), ShouldBeTrue)
			}

			Convey("Then the duplicate is a no-op", func() {
				So(waitFor(func() bool {
					agg, err := store.Get(ctx, model.SchemeDevice, "bulk-2")
					return err == nil && agg.KOs == 3
				}), ShouldBeTrue)
				// Give the duplicate a moment to (not) apply.
				time.Sleep(50 * time.Millisecond)
				agg, err := store.Get(ctx, model.SchemeDevice, "bulk-2")
				So(err, ShouldBeNil)
				So(agg.KOs, ShouldEqual, 3)
			})
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running worker", t, func() {
		store := repository.NewMemoryStore()
		q := queue.NewInMemoryQueue()
		w := worker.NewWorker(q, store, worker.WithName("test-worker"))
		go w.Run(ctx)

		Convey("Then shutdown completes promptly", func() {
			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			So(w.Shutdown(sctx), ShouldBeNil)
		})
	})
}
