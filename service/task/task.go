package task

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/fraudguard-labs/fraudguard/env"
	"github.com/fraudguard-labs/fraudguard/service/logger"
	"github.com/fraudguard-labs/fraudguard/util/retry"
	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
)

// ErrOverloaded is returned when the pending queue is full; callers should
// surface it as backpressure rather than blocking.
var ErrOverloaded = errors.New("task queue is full")

const (
	defaultWorkers   = 8
	defaultQueueSize = 256
)

// Func is one unit of background work. It receives a context detached from
// the originating request so an early client disconnect does not cancel it.
type Func func(ctx context.Context) error

// Scheduler runs background tasks on a bounded worker pool. Failed tasks are
// retried with exponential backoff; terminal failures are logged and dropped.
type Scheduler struct {
	pool    *workerpool.WorkerPool
	pending int64
	limit   int64
	retry   retry.Retry
}

// New creates a scheduler with the given worker count and queue bound;
// non-positive values fall back to defaults.
func New(workers, queueSize int) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Scheduler{
		pool:  workerpool.New(workers),
		limit: int64(queueSize),
		retry: retry.DefaultRetry,
	}
}

// NewFromEnv creates a scheduler sized by TASK_QUEUE_SIZE
func NewFromEnv(ctx context.Context) *Scheduler {
	return New(defaultWorkers, env.GetInt(ctx, "TASK_QUEUE_SIZE"))
}

// Submit enqueues a task. It returns ErrOverloaded without enqueueing when
// the pending queue is at its bound.
func (s *Scheduler) Submit(ctx context.Context, name string, fn Func) error {
	if atomic.AddInt64(&s.pending, 1) > s.limit {
		atomic.AddInt64(&s.pending, -1)
		return ErrOverloaded
	}

	// Carry the request's log fields but not its cancellation
	taskCtx := logger.NewContextWithFields(context.Background(), logrus.Fields{"task": name})

	s.pool.Submit(func() {
		defer atomic.AddInt64(&s.pending, -1)
		s.run(taskCtx, name, fn)
	})
	return nil
}

func (s *Scheduler) run(ctx context.Context, name string, fn Func) {
	err := retry.RetryFunc(ctx, fn, func(err error) bool {
		logger.For(ctx).Warnf("task %s failed, will retry: %s", name, err)
		return true
	}, s.retry)
	if err != nil {
		logger.For(ctx).Errorf("task %s failed permanently: %s", name, err)
	}
}

// Pending reports the number of queued or running tasks
func (s *Scheduler) Pending() int {
	return int(atomic.LoadInt64(&s.pending))
}

// StopWait stops accepting tasks and blocks until queued tasks finish
func (s *Scheduler) StopWait() {
	s.pool.StopWait()
}
