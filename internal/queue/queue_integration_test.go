//go:build integration
// +build integration

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func setupTestQueue(t *testing.T) *Queue {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skipf("skipping: redis not available: %v", err)
		return nil
	}
	q := NewWithClient(client)
	q.prefix = fmt.Sprintf("test:%d", time.Now().UnixNano())
	return q
}

func TestQueueEnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q := setupTestQueue(t)
	if q == nil {
		return
	}
	defer q.Close()

	if err := q.Enqueue(ctx, Transcription, "job-1", "", map[string]string{"episodeId": "ep-1"}, 3); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	stats, err := q.Stats(ctx, Transcription)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Waiting < 1 {
		t.Errorf("expected waiting >= 1, got %d", stats.Waiting)
	}

	h, err := q.Dequeue(ctx, Transcription)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if h == nil {
		t.Fatal("expected a job, got nil")
	}
	if h.ID() != "job-1" {
		t.Errorf("expected job-1, got %s", h.ID())
	}

	var payload map[string]string
	if err := h.Data(&payload); err != nil {
		t.Fatalf("data: %v", err)
	}
	if payload["episodeId"] != "ep-1" {
		t.Errorf("expected episodeId ep-1, got %v", payload)
	}
}

func TestQueueDedup(t *testing.T) {
	ctx := context.Background()
	q := setupTestQueue(t)
	if q == nil {
		return
	}
	defer q.Close()

	if err := q.Enqueue(ctx, Analysis, "job-a", "ep-1", map[string]string{}, 3); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	err := q.Enqueue(ctx, Analysis, "job-b", "ep-1", map[string]string{}, 3)
	if err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestHandleCompleteAndFail(t *testing.T) {
	ctx := context.Background()
	q := setupTestQueue(t)
	if q == nil {
		return
	}
	defer q.Close()

	if err := q.Enqueue(ctx, Curation, "job-c", "", map[string]string{}, 2); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	h, err := q.Dequeue(ctx, Curation)
	if err != nil || h == nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := h.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := q.Enqueue(ctx, Curation, "job-d", "", map[string]string{}, 2); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	h2, err := q.Dequeue(ctx, Curation)
	if err != nil || h2 == nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := h2.Fail(ctx, true, fmt.Errorf("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}

	stats, err := q.Stats(ctx, Curation)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Delayed < 1 {
		t.Errorf("expected a retry scheduled, got delayed=%d", stats.Delayed)
	}

	n, err := q.PromoteDueJobs(ctx, Curation)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	_ = n // backoff delay hasn't elapsed yet in this test run; just exercise the call
}
