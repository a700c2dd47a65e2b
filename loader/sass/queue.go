package sass

import (
	"context"
	"os"
	"strconv"

	"golang.org/x/sync/semaphore"
)

// ThreadPoolEnv overrides size of the I/O pool the queue is derived from.
const ThreadPoolEnv = "STYLEPIPE_THREADPOOL_SIZE"

const defaultThreadPool = 4

// Queue limits number of concurrently running compilations. Admission is
// FIFO.
type Queue struct {
	sem  *semaphore.Weighted
	size int
}

// NewQueue creates queue admitting up to size tasks at once.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns queue capacity.
func (q *Queue) Size() int {
	return q.size
}

// Add waits for a free slot and runs task. Waiting is abandoned when ctx is
// done.
func (q *Queue) Add(ctx context.Context, task func() error) error {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer q.sem.Release(1)
	return task()
}

// QueueSize returns capacity derived from thread pool size: one less than
// the pool so compilations never take all of it. Non positive pool means
// take it from environment.
func QueueSize(pool int) int {
	if pool <= 0 {
		pool = defaultThreadPool
		if v, err := strconv.Atoi(os.Getenv(ThreadPoolEnv)); err == nil && v > 0 {
			pool = v
		}
	}
	return max(pool-1, 1)
}
