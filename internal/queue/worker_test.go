package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/pricing"
	"github.com/redis/go-redis/v9"
)

type fakeResolver struct {
	mu       sync.Mutex
	attempts map[string]int
	fail     func(ts time.Time, attempt int) error
}

func (f *fakeResolver) Resolve(ctx context.Context, token, network string, ts time.Time) (pricing.ResolvedPrice, error) {
	key := ts.Format(time.RFC3339)
	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[key]++
	attempt := f.attempts[key]
	f.mu.Unlock()

	if err := f.fail(ts, attempt); err != nil {
		return pricing.ResolvedPrice{}, err
	}
	return pricing.ResolvedPrice{Price: 1, Source: pricing.SourceExact}, nil
}

func (f *fakeResolver) attemptCount(ts time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[ts.Format(time.RFC3339)]
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	return NewQueue(redisClient)
}

// newTestWorker swaps the backoff sleep for a recorder so tests observe the
// schedule without waiting it out.
func newTestWorker(q *Queue, resolver Resolver, concurrency int64) (*Worker, *[]time.Duration) {
	w := NewWorker(q, resolver, concurrency, 5)
	var delays []time.Duration
	var mu sync.Mutex
	w.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return nil
	}
	return w, &delays
}

func dailyTimestamps(days int) []time.Time {
	var out []time.Time
	for i := 0; i < days; i++ {
		out = append(out, time.Date(2023, 1, 1+i, 0, 0, 0, 0, time.UTC))
	}
	return out
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	transient := &alchemy.APIError{StatusCode: 500, Message: "upstream down"}
	badDay := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	resolver := &fakeResolver{fail: func(ts time.Time, attempt int) error {
		if ts.Equal(badDay) {
			return transient
		}
		return nil
	}}

	q := newTestQueue(t)
	w, delays := newTestWorker(q, resolver, 1)

	job := &Job{ID: "job-1", Token: "0xabc", Network: "ethereum", Timestamps: dailyTimestamps(3)}
	w.processJob(job)

	// 1 initial attempt + 5 retries for the failing timestamp
	if got := resolver.attemptCount(badDay); got != 6 {
		t.Fatalf("expected 6 attempts on the failing timestamp, got %d", got)
	}

	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 15 * time.Second, 15 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d backoff sleeps, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("backoff %d: got %v, want %v", i, (*delays)[i], d)
		}
	}

	// Siblings still complete; the job lands partially failed with the
	// failing timestamp enumerated
	status, err := q.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status lookup failed: %v", err)
	}
	if status.State != StatePartiallyFailed {
		t.Fatalf("expected partially_failed, got %s", status.State)
	}
	if status.Completed != 3 {
		t.Fatalf("expected all 3 timestamps attempted, got %d", status.Completed)
	}
	if len(status.FailedTimestamps) != 1 || status.FailedTimestamps[0] != badDay.Format(time.RFC3339) {
		t.Fatalf("unexpected failed timestamps: %v", status.FailedTimestamps)
	}
}

func TestWorkerPermanentErrorNotRetried(t *testing.T) {
	permanent := &alchemy.APIError{StatusCode: 400, Message: "address out of range"}
	resolver := &fakeResolver{fail: func(ts time.Time, attempt int) error {
		return permanent
	}}

	q := newTestQueue(t)
	w, delays := newTestWorker(q, resolver, 1)

	job := &Job{ID: "job-2", Token: "0xabc", Network: "ethereum", Timestamps: dailyTimestamps(1)}
	w.processJob(job)

	if got := resolver.attemptCount(job.Timestamps[0]); got != 1 {
		t.Fatalf("permanent failures must not be retried, got %d attempts", got)
	}
	if len(*delays) != 0 {
		t.Fatalf("expected no backoff sleeps, got %v", *delays)
	}
}

func TestWorkerCompletesCleanJob(t *testing.T) {
	resolver := &fakeResolver{fail: func(ts time.Time, attempt int) error {
		return nil
	}}

	q := newTestQueue(t)
	w, _ := newTestWorker(q, resolver, 1)

	job := &Job{ID: "job-3", Token: "0xabc", Network: "ethereum", Timestamps: dailyTimestamps(4)}
	w.processJob(job)

	status, err := q.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status lookup failed: %v", err)
	}
	if status.State != StateCompleted {
		t.Fatalf("expected completed, got %s", status.State)
	}
	if status.Completed != 4 || len(status.FailedTimestamps) != 0 {
		t.Fatalf("unexpected terminal status: %+v", status)
	}
}

func TestWorkerRecoversAfterTransientFailure(t *testing.T) {
	transient := &alchemy.APIError{StatusCode: 429, Message: "rate limited"}
	resolver := &fakeResolver{fail: func(ts time.Time, attempt int) error {
		if attempt <= 2 {
			return transient
		}
		return nil
	}}

	q := newTestQueue(t)
	w, delays := newTestWorker(q, resolver, 1)

	job := &Job{ID: "job-4", Token: "0xabc", Network: "ethereum", Timestamps: dailyTimestamps(1)}
	w.processJob(job)

	if got := resolver.attemptCount(job.Timestamps[0]); got != 3 {
		t.Fatalf("expected success on the third attempt, got %d attempts", got)
	}
	if len(*delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps before success, got %v", *delays)
	}

	status, err := q.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status lookup failed: %v", err)
	}
	if status.State != StateCompleted {
		t.Fatalf("expected completed, got %s", status.State)
	}
}

func TestQueueRoundTrip(t *testing.T) {
	q := newTestQueue(t)

	job := &Job{Token: "0xabc", Network: "ethereum", Timestamps: dailyTimestamps(2)}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("enqueue must assign a job ID")
	}

	got, err := q.Dequeue(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("dequeued wrong job: %+v", got)
	}
	if len(got.Timestamps) != 2 {
		t.Fatalf("timestamps lost in transit: %+v", got.Timestamps)
	}
}

func TestJobStatusFinishedAtOmittedUntilTerminal(t *testing.T) {
	q := newTestQueue(t)

	job := &Job{Token: "0xabc", Network: "ethereum", Timestamps: dailyTimestamps(1)}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	raw, err := q.Redis.Get(context.Background(), jobStatusKeyPrefix+job.ID).Result()
	if err != nil {
		t.Fatalf("status key lookup failed: %v", err)
	}
	if strings.Contains(raw, "finished_at") {
		t.Fatalf("queued status must not carry a finished time: %s", raw)
	}

	resolver := &fakeResolver{fail: func(ts time.Time, attempt int) error {
		return nil
	}}
	w, _ := newTestWorker(q, resolver, 1)
	w.processJob(job)

	status, err := q.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("status lookup failed: %v", err)
	}
	if status.FinishedAt == nil || status.FinishedAt.IsZero() {
		t.Fatalf("terminal status must carry a finished time: %+v", status)
	}
}
