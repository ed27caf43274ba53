/**
 * @description
 * Backfill worker. Consumes jobs from the queue one at a time and fans each
 * job's timestamps out to the price resolver under a bounded-concurrency
 * limiter, with exponential backoff on transient failures.
 *
 * @dependencies
 * - backend/internal/alchemy
 * - backend/internal/pricing
 * - golang.org/x/sync/semaphore
 */

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/logger"
	"github.com/chronoprice-project/backend/internal/pricing"
	"golang.org/x/sync/semaphore"
)

const (
	dequeueTimeout = 5 * time.Second

	backoffInitial = 3 * time.Second
	backoffFactor  = 2
	backoffCap     = 15 * time.Second
)

// Resolver is the price lookup a worker drives for each timestamp.
type Resolver interface {
	Resolve(ctx context.Context, token, network string, ts time.Time) (pricing.ResolvedPrice, error)
}

type Worker struct {
	Queue    *Queue
	Resolver Resolver

	// Concurrency bounds the per-timestamp fan-out within one active job.
	// Width 1 fully serializes timestamps in submission order.
	Concurrency int64

	// MaxRetries is how many times a failed timestamp is retried after its
	// first attempt. Only transient failures are retried.
	MaxRetries int

	// sleep is swapped out in tests to observe the backoff schedule
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWorker(q *Queue, resolver Resolver, concurrency int64, maxRetries int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		Queue:       q,
		Resolver:    resolver,
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		sleep:       sleepCtx,
	}
}

// Run consumes jobs until ctx is cancelled. Jobs are processed strictly one
// at a time; an active job always runs to completion (no job cancellation),
// shutdown takes effect between jobs.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to dequeue backfill job: %v", err)
			_ = sleepCtx(ctx, time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.processJob(job)
	}
}

// processJob resolves every timestamp of the job, isolating failures per
// timestamp. The job terminates as completed, or partially_failed with the
// exhausted timestamps enumerated.
func (w *Worker) processJob(job *Job) {
	// The job survives worker shutdown signals once started
	ctx := context.Background()

	logger.Info("⚙️  Backfill job %s started: %s on %s, %d timestamps", job.ID, job.Token, job.Network, len(job.Timestamps))

	status := JobStatus{
		ID:         job.ID,
		Token:      job.Token,
		Network:    job.Network,
		State:      StateActive,
		Total:      len(job.Timestamps),
		EnqueuedAt: time.Now().UTC(),
	}
	if existing, err := w.Queue.GetStatus(ctx, job.ID); err == nil {
		status.EnqueuedAt = existing.EnqueuedAt
	}
	if err := w.Queue.SetStatus(ctx, status); err != nil {
		logger.Error("Failed to mark job %s active: %v", job.ID, err)
	}
	w.Queue.PublishProgress(ctx, status)

	sem := semaphore.NewWeighted(w.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, ts := range job.Timestamps {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(ts time.Time) {
			defer wg.Done()
			defer sem.Release(1)

			err := w.resolveWithRetry(ctx, job, ts)

			mu.Lock()
			status.Completed++
			if err != nil {
				status.FailedTimestamps = append(status.FailedTimestamps, ts.Format(time.RFC3339))
			}
			snapshot := status
			mu.Unlock()

			if err := w.Queue.SetStatus(ctx, snapshot); err != nil {
				logger.Error("Failed to update job %s status: %v", job.ID, err)
			}
			w.Queue.PublishProgress(ctx, snapshot)
		}(ts)
	}

	wg.Wait()

	finished := time.Now().UTC()
	status.FinishedAt = &finished
	if len(status.FailedTimestamps) > 0 {
		status.State = StatePartiallyFailed
	} else {
		status.State = StateCompleted
	}
	if err := w.Queue.SetStatus(ctx, status); err != nil {
		logger.Error("Failed to finalize job %s status: %v", job.ID, err)
	}
	w.Queue.PublishProgress(ctx, status)

	logger.Info("✅ Backfill job %s finished: %s, %d/%d succeeded", job.ID, status.State, status.Total-len(status.FailedTimestamps), status.Total)
}

// resolveWithRetry attempts one timestamp with exponential backoff. Permanent
// failures stop immediately; transient ones retry up to MaxRetries.
func (w *Worker) resolveWithRetry(ctx context.Context, job *Job, ts time.Time) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		_, err := w.Resolver.Resolve(ctx, job.Token, job.Network, ts)
		if err == nil {
			return nil
		}
		lastErr = err

		if !alchemy.IsTransient(err) {
			logger.Error("Job %s timestamp %s failed permanently: %v", job.ID, ts.Format(time.RFC3339), err)
			return err
		}
		if attempt >= w.MaxRetries {
			logger.Error("Job %s timestamp %s exhausted %d retries: %v", job.ID, ts.Format(time.RFC3339), w.MaxRetries, err)
			return lastErr
		}

		delay := backoffDelay(attempt + 1)
		logger.Info("Job %s timestamp %s attempt %d failed, retrying in %s: %v", job.ID, ts.Format(time.RFC3339), attempt+1, delay, err)
		if err := w.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
}

// backoffDelay returns the wait before retry n (1-based): 3s doubling per
// retry, capped at 15s — 3s, 6s, 12s, 15s, 15s, ...
func backoffDelay(retry int) time.Duration {
	delay := backoffInitial
	for i := 1; i < retry; i++ {
		delay *= backoffFactor
		if delay >= backoffCap {
			return backoffCap
		}
	}
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
