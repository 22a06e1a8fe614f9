package scoring

import (
	"context"
	"sync"
	"time"
)

// poolLogger is the slice of the charm logger the pool needs.
type poolLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// Job is a unit of work executed on the pool.
type Job[T any] interface {
	Process(ctx context.Context) (T, error)
}

// JobResult pairs a job with what came out of it.
type JobResult[J Job[R], R any] struct {
	Job    J
	Result R
	Error  error
}

// WorkerPool runs jobs on a fixed number of workers pulling from a shared
// queue, so slow jobs never block unrelated fast ones behind a static split.
type WorkerPool[J Job[R], R any] struct {
	workers int
	logger  poolLogger
}

func NewWorkerPool[J Job[R], R any](workers int, logger poolLogger) *WorkerPool[J, R] {
	if workers <= 0 {
		workers = 1
	}
	return &WorkerPool[J, R]{workers: workers, logger: logger}
}

// Process runs all jobs and streams results as they finish. The returned
// channel closes once every job has been drained or the context expired.
// jobTimeout bounds each individual job.
func (wp *WorkerPool[J, R]) Process(ctx context.Context, jobs []J, jobTimeout time.Duration) <-chan JobResult[J, R] {
	queue := make(chan J, len(jobs))
	results := make(chan JobResult[J, R], len(jobs))

	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			wp.run(ctx, id, queue, results, jobTimeout)
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func (wp *WorkerPool[J, R]) run(ctx context.Context, id int, queue <-chan J, results chan<- JobResult[J, R], jobTimeout time.Duration) {
	completed := 0
	started := time.Now()

	for job := range queue {
		if ctx.Err() != nil {
			wp.logger.Infof("Worker %d: stopping after %d jobs, context done", id, completed)
			return
		}

		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		result, err := job.Process(jobCtx)
		cancel()

		if err != nil {
			wp.logger.Debugf("Worker %d: job failed: %v", id, err)
		} else {
			completed++
		}

		select {
		case results <- JobResult[J, R]{Job: job, Result: result, Error: err}:
		case <-ctx.Done():
			wp.logger.Infof("Worker %d: stopping after %d jobs, context done", id, completed)
			return
		}
	}

	if completed > 0 {
		wp.logger.Debugf("Worker %d: completed %d jobs in %v", id, completed, time.Since(started))
	}
}
