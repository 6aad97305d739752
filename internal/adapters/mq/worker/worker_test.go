package worker_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/strata/internal/adapters/mq/queue"
	"github.com/okian/strata/internal/adapters/mq/worker"
	"github.com/okian/strata/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func waitFinal(j *queue.Job) queue.Snapshot {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := j.Snapshot(); s.Status.Final() {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	return j.Snapshot()
}

func TestPool(t *testing.T) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}

	convey.Convey("Given a started pool of two workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		pool := worker.NewPool(q, worker.WithWorkers(2), worker.WithJobTimeout(time.Second))
		pool.Start(ctx)
		convey.Reset(func() { _ = pool.Shutdown(ctx) })

		convey.Convey("When jobs are enqueued", func() {
			var ran atomic.Int32
			jobs := make([]*queue.Job, 5)
			for i := range jobs {
				jobs[i] = queue.NewJob(queue.KindCrossSection, func(context.Context) (any, error) {
					ran.Add(1)
					return "curve", nil
				})
				convey.So(q.Enqueue(ctx, jobs[i]), convey.ShouldBeNil)
			}

			convey.Convey("Then every job completes with its result", func() {
				for _, j := range jobs {
					s := waitFinal(j)
					convey.So(s.Status, convey.ShouldEqual, queue.StatusDone)
					convey.So(s.Result, convey.ShouldEqual, "curve")
				}
				convey.So(ran.Load(), convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a job fails", func() {
			j := queue.NewJob(queue.KindLeadLag, func(context.Context) (any, error) {
				return nil, errors.New("insufficient overlap")
			})
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeNil)

			convey.Convey("Then it is marked failed with the error", func() {
				s := waitFinal(j)
				convey.So(s.Status, convey.ShouldEqual, queue.StatusFailed)
				convey.So(s.Err.Error(), convey.ShouldEqual, "insufficient overlap")
			})
		})

		convey.Convey("When a job panics", func() {
			bad := queue.NewJob(queue.KindSuggest, func(context.Context) (any, error) {
				var curve []float64
				return curve[3], nil
			})
			convey.So(q.Enqueue(ctx, bad), convey.ShouldBeNil)

			convey.Convey("Then it fails and the workers keep serving", func() {
				s := waitFinal(bad)
				convey.So(s.Status, convey.ShouldEqual, queue.StatusFailed)
				convey.So(errors.Is(s.Err, queue.ErrTaskPanic), convey.ShouldBeTrue)

				good := queue.NewJob(queue.KindSuggest, func(context.Context) (any, error) { return "ok", nil })
				convey.So(q.Enqueue(ctx, good), convey.ShouldBeNil)
				convey.So(waitFinal(good).Status, convey.ShouldEqual, queue.StatusDone)
			})
		})

		convey.Convey("When a running job is cancelled", func() {
			started := make(chan struct{})
			j := queue.NewJob(queue.KindSuggest, func(ctx context.Context) (any, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			})
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeNil)
			<-started
			j.Cancel()

			convey.Convey("Then it stops and reports cancelled", func() {
				convey.So(waitFinal(j).Status, convey.ShouldEqual, queue.StatusCancelled)
			})
		})

		convey.Convey("When a job outlives the timeout", func() {
			q2 := queue.NewInMemoryQueue()
			short := worker.NewPool(q2, worker.WithWorkers(1), worker.WithJobTimeout(10*time.Millisecond))
			short.Start(ctx)
			convey.Reset(func() { _ = short.Shutdown(ctx) })

			j := queue.NewJob(queue.KindCrossSection, func(ctx context.Context) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
			convey.So(q2.Enqueue(ctx, j), convey.ShouldBeNil)

			convey.Convey("Then it fails with a deadline error", func() {
				s := waitFinal(j)
				convey.So(s.Status, convey.ShouldEqual, queue.StatusFailed)
				convey.So(errors.Is(s.Err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPoolShutdown(t *testing.T) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		t.Fatal(err)
	}

	convey.Convey("Given a single busy worker with jobs still queued", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		pool := worker.NewPool(q, worker.WithWorkers(1))
		pool.Start(ctx)

		started := make(chan struct{})
		release := make(chan struct{})
		busy := queue.NewJob(queue.KindCrossSection, func(context.Context) (any, error) {
			close(started)
			<-release
			return "curve", nil
		})
		convey.So(q.Enqueue(ctx, busy), convey.ShouldBeNil)
		<-started

		queued := []*queue.Job{
			queue.NewJob(queue.KindLeadLag, func(context.Context) (any, error) { return "b", nil }),
			queue.NewJob(queue.KindLeadLag, func(context.Context) (any, error) { return "c", nil }),
		}
		for _, j := range queued {
			convey.So(q.Enqueue(ctx, j), convey.ShouldBeNil)
		}

		convey.Convey("When the pool shuts down", func() {
			errc := make(chan error, 1)
			go func() { errc <- pool.Shutdown(ctx) }()
			close(release)

			convey.Convey("Then it returns and leaves no job pending", func() {
				select {
				case err := <-errc:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(2 * time.Second):
					t.Fatal("shutdown did not return")
				}
				convey.So(waitFinal(busy).Status, convey.ShouldEqual, queue.StatusDone)
				for _, j := range queued {
					convey.So(j.Snapshot().Status.Final(), convey.ShouldBeTrue)
				}
				convey.So(q.Len(), convey.ShouldEqual, 0)
			})
		})
	})
}
