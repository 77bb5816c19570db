package queue

import (
	"testing"
	"time"
)

func TestJobFieldsRoundTrip(t *testing.T) {
	job := Job{
		ID:          "test-id-123",
		Queue:       Transcription,
		DedupKey:    "episode:abc",
		Payload:     []byte(`{"episodeId":"abc"}`),
		MaxAttempts: 3,
		Status:      "queued",
		CreatedAt:   time.Now().UTC(),
	}

	fields := jobFields(job)
	if fields["id"] != job.ID {
		t.Errorf("expected id %q, got %v", job.ID, fields["id"])
	}
	if fields["queue"] != string(job.Queue) {
		t.Errorf("expected queue %q, got %v", job.Queue, fields["queue"])
	}
	if fields["dedup_key"] != job.DedupKey {
		t.Errorf("expected dedup_key %q, got %v", job.DedupKey, fields["dedup_key"])
	}
}

func TestQueueNames(t *testing.T) {
	names := []Name{Transcription, Analysis, Curation, Assembly, Orchestrator}
	for _, n := range names {
		if n == "" {
			t.Error("queue name should not be empty")
		}
	}
}

func TestKeyHelpers(t *testing.T) {
	q := &Queue{prefix: "sifter"}
	if got := q.waitingKey(Transcription); got != "sifter:transcription:waiting" {
		t.Errorf("unexpected waiting key: %s", got)
	}
	if got := q.delayedKey(Analysis); got != "sifter:analysis:delayed" {
		t.Errorf("unexpected delayed key: %s", got)
	}
	if got := q.jobKey("abc"); got != "sifter:job:abc" {
		t.Errorf("unexpected job key: %s", got)
	}
	if got := q.dedupKey("episode:abc"); got != "sifter:dedup:episode:abc" {
		t.Errorf("unexpected dedup key: %s", got)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt)
		if d < prev {
			t.Errorf("backoff should not shrink: attempt %d gave %v after %v", attempt, d, prev)
		}
		if d > BackoffCap {
			t.Errorf("backoff exceeded cap: attempt %d gave %v", attempt, d)
		}
		prev = d
	}
}
