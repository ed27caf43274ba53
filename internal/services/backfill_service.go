/**
 * @description
 * Service layer for backfill scheduling.
 * Expands a token's lifetime into one UTC-midnight timestamp per calendar day
 * and enqueues a single job carrying the whole sequence.
 *
 * @dependencies
 * - backend/internal/alchemy
 * - backend/internal/queue
 */

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/pricing"
	"github.com/chronoprice-project/backend/internal/queue"
)

// ScheduleResult reports what a backfill request enqueued.
type ScheduleResult struct {
	JobID string    `json:"job_id"`
	Count int       `json:"count"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

type BackfillService struct {
	Queue     *queue.Queue
	Birthdate BirthdateProvider

	// now is swapped out in tests to pin the schedule's upper bound
	now func() time.Time
}

func NewBackfillService(q *queue.Queue, birthdate BirthdateProvider) *BackfillService {
	return &BackfillService{
		Queue:     q,
		Birthdate: birthdate,
		now:       time.Now,
	}
}

// Schedule looks up the token's birthdate, expands one timestamp per calendar
// day from that date through today inclusive (ascending), and enqueues exactly
// one job. A failed birthdate lookup is a scheduling error; nothing is
// enqueued.
func (s *BackfillService) Schedule(ctx context.Context, token, network string) (*ScheduleResult, error) {
	if _, ok := alchemy.NetworkID(network); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}

	birthdate, err := s.Birthdate.TokenBirthdate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get token birthdate: %w", err)
	}

	today := pricing.DayMidnight(s.now())
	var timestamps []time.Time
	for current := pricing.DayMidnight(birthdate); !current.After(today); current = current.AddDate(0, 0, 1) {
		timestamps = append(timestamps, current)
	}

	if len(timestamps) == 0 {
		return nil, fmt.Errorf("token birthdate %s is in the future", birthdate.Format(time.RFC3339))
	}

	job := &queue.Job{
		Token:      token,
		Network:    network,
		Timestamps: timestamps,
	}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		return nil, err
	}

	return &ScheduleResult{
		JobID: job.ID,
		Count: len(timestamps),
		From:  timestamps[0],
		To:    timestamps[len(timestamps)-1],
	}, nil
}
