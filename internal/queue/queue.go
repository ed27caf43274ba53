/**
 * @description
 * Durable backfill job queue backed by Redis.
 * Jobs are JSON blobs pushed onto a list and popped by a single worker;
 * per-job status lives in its own key and transitions
 * queued → active → completed | partially_failed.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - github.com/google/uuid
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// QueueKey is the Redis list holding pending job payloads
	QueueKey = "backfill:queue"

	// ProgressChannel carries per-job progress updates over pub/sub
	ProgressChannel = "backfill:progress"

	jobStatusKeyPrefix = "backfill:job:"
	jobStatusTTL       = 7 * 24 * time.Hour
)

// Job states
const (
	StateQueued          = "queued"
	StateActive          = "active"
	StateCompleted       = "completed"
	StatePartiallyFailed = "partially_failed"
)

// ErrJobNotFound is returned when a job status key is missing or expired.
var ErrJobNotFound = errors.New("job not found")

// Job is a backfill unit of work: every daily timestamp of a token's lifetime.
// A job is created once by the scheduler and consumed exactly once.
type Job struct {
	ID         string      `json:"id"`
	Token      string      `json:"token"`
	Network    string      `json:"network"`
	Timestamps []time.Time `json:"timestamps"`
}

// JobStatus is the externally visible state of a job.
type JobStatus struct {
	ID               string     `json:"id"`
	Token            string     `json:"token"`
	Network          string     `json:"network"`
	State            string     `json:"state"`
	Total            int        `json:"total"`
	Completed        int        `json:"completed"`
	FailedTimestamps []string   `json:"failed_timestamps,omitempty"`
	EnqueuedAt       time.Time  `json:"enqueued_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

type Queue struct {
	Redis *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{Redis: rdb}
}

// Enqueue assigns the job an ID, records its queued status, and pushes it
// onto the list.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	status := JobStatus{
		ID:         job.ID,
		Token:      job.Token,
		Network:    job.Network,
		State:      StateQueued,
		Total:      len(job.Timestamps),
		EnqueuedAt: time.Now().UTC(),
	}
	if err := q.SetStatus(ctx, status); err != nil {
		return fmt.Errorf("failed to record job status: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.Redis.LPush(ctx, QueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when the
// wait times out with an empty queue.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.Redis.BRPop(ctx, timeout, QueueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// BRPOP returns [key, value]
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("malformed job payload: %w", err)
	}
	return &job, nil
}

// GetStatus fetches the current status of a job by ID.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	raw, err := q.Redis.Get(ctx, jobStatusKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	var status JobStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetStatus overwrites a job's status record.
func (q *Queue) SetStatus(ctx context.Context, status JobStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return q.Redis.Set(ctx, jobStatusKeyPrefix+status.ID, payload, jobStatusTTL).Err()
}

// PublishProgress broadcasts a status snapshot on the progress channel.
// Failures are ignored; progress streaming is best-effort.
func (q *Queue) PublishProgress(ctx context.Context, status JobStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	_ = q.Redis.Publish(ctx, ProgressChannel, payload).Err()
}
