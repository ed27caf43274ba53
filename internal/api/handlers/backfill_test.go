package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/chronoprice-project/backend/internal/queue"
	"github.com/chronoprice-project/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func newBackfillApp(t *testing.T, birthdate services.BirthdateProvider) (*fiber.App, *queue.Queue) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	q := queue.NewQueue(redisClient)
	service := services.NewBackfillService(q, birthdate)
	handler := NewBackfillHandler(service, q, redisClient)

	app := fiber.New()
	app.Post("/api/v1/backfill", handler.ScheduleBackfill)
	app.Get("/api/v1/backfill/stream", handler.StreamProgress)
	app.Get("/api/v1/backfill/:id", handler.GetJobStatus)
	return app, q
}

func TestScheduleBackfillMissingFields(t *testing.T) {
	app, _ := newBackfillApp(t, &stubBirthdate{})

	payload, _ := json.Marshal(map[string]string{"tokenAddress": "0xabc"})
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/backfill", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", resp.StatusCode)
	}
}

func TestScheduleBackfillAndStatus(t *testing.T) {
	birthdate := &stubBirthdate{birthdate: time.Now().UTC().AddDate(0, 0, -2)}
	app, q := newBackfillApp(t, birthdate)

	payload, _ := json.Marshal(map[string]string{"tokenAddress": "0xabc", "network": "ethereum"})
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/backfill", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		JobID string  `json:"jobId"`
		Count float64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 3 {
		t.Fatalf("expected 3 scheduled timestamps, got %v", body.Count)
	}

	job, err := q.Dequeue(context.Background(), time.Second)
	if err != nil || job == nil {
		t.Fatalf("expected an enqueued job, got %v / %v", job, err)
	}
	if job.ID != body.JobID {
		t.Fatalf("response job ID %s does not match enqueued job %s", body.JobID, job.ID)
	}

	statusReq, _ := http.NewRequest(http.MethodGet, "/api/v1/backfill/"+body.JobID, nil)
	statusResp, err := app.Test(statusReq, 5000)
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for job status, got %d", statusResp.StatusCode)
	}
}

func TestGetJobStatusNotFound(t *testing.T) {
	app, _ := newBackfillApp(t, &stubBirthdate{})

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/backfill/no-such-job", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", resp.StatusCode)
	}
}

func TestStreamProgress(t *testing.T) {
	app, q := newBackfillApp(t, &stubBirthdate{})

	// app.Test buffers the whole body, so serve over a real listener
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open listener: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// Re-publish until the test ends so a late pub/sub subscription still sees it
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.PublishProgress(context.Background(), queue.JobStatus{
					ID:    "test-job",
					State: queue.StateActive,
					Total: 10,
				})
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ln.Addr().String()+"/api/v1/backfill/stream", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to call SSE endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-timeout:
			t.Fatal("timed out waiting for SSE data")
		default:
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read SSE line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				if !strings.Contains(line, `"test-job"`) {
					t.Fatalf("unexpected SSE payload: %s", line)
				}
				return
			}
		}
	}
}
