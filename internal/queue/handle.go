package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Handle is a dequeued Job plus the progress/log surface stage handlers
// use while working it. It implements the stagectx.Context shape (ID, Log,
// UpdateProgress, Data) so the same stage handler bodies run whether
// invoked from a worker loop or from the Orchestrator's in-process shim.
type Handle struct {
	q   *Queue
	job Job
}

// ID returns the job's identifier.
func (h *Handle) ID() string { return h.job.ID }

// Data unmarshals the job's payload into v.
func (h *Handle) Data(v interface{}) error {
	return json.Unmarshal(h.job.Payload, v)
}

// Log writes a structured line tagged with this job's id and queue.
func (h *Handle) Log(msg string, args ...interface{}) {
	allArgs := append([]interface{}{"job_id", h.job.ID, "queue", string(h.job.Queue)}, args...)
	slog.Info(msg, allArgs...)
}

// UpdateProgress records a human-readable progress string against the job
// hash, visible from the admin observability endpoints.
func (h *Handle) UpdateProgress(ctx context.Context, progress string) error {
	return h.q.client.HSet(ctx, h.q.jobKey(h.job.ID), "progress", progress).Err()
}

// Complete marks the job succeeded and retires it into the success set.
func (h *Handle) Complete(ctx context.Context) error {
	pipe := h.q.client.Pipeline()
	pipe.HSet(ctx, h.q.jobKey(h.job.ID), "status", "completed")
	pipe.Expire(ctx, h.q.jobKey(h.job.ID), JobRetention)
	pipe.SRem(ctx, h.q.runningKey(h.job.Queue), h.job.ID)
	pipe.SAdd(ctx, h.q.successKey(h.job.Queue), h.job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records failErr against the job. If attempts remain, it schedules
// an exponential-backoff retry onto the delayed set; otherwise it retires
// the job into the failed set.
func (h *Handle) Fail(ctx context.Context, retryable bool, failErr error) error {
	h.job.Attempts++
	pipe := h.q.client.Pipeline()
	pipe.HSet(ctx, h.q.jobKey(h.job.ID), map[string]interface{}{
		"attempts":   h.job.Attempts,
		"last_error": failErr.Error(),
	})
	pipe.SRem(ctx, h.q.runningKey(h.job.Queue), h.job.ID)

	if retryable && h.job.Attempts < h.job.MaxAttempts {
		delay := backoffDelay(h.job.Attempts)
		pipe.HSet(ctx, h.q.jobKey(h.job.ID), "status", "queued")
		pipe.ZAdd(ctx, h.q.delayedKey(h.job.Queue), redis.Z{Score: float64(time.Now().Add(delay).Unix()), Member: h.job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("schedule retry: %w", err)
		}
		slog.Warn("job failed, retrying", "job_id", h.job.ID, "queue", h.job.Queue, "attempt", h.job.Attempts, "delay", delay, "error", failErr)
		return nil
	}

	pipe.HSet(ctx, h.q.jobKey(h.job.ID), "status", "failed")
	pipe.Expire(ctx, h.q.jobKey(h.job.ID), JobRetention)
	pipe.SAdd(ctx, h.q.failedKey(h.job.Queue), h.job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record terminal failure: %w", err)
	}
	slog.Error("job failed permanently", "job_id", h.job.ID, "queue", h.job.Queue, "attempts", h.job.Attempts, "error", failErr)
	return nil
}

// backoffDelay returns BackoffBase*2^(attempt-1), capped at BackoffCap.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(float64(BackoffBase) * math.Pow(2, float64(attempt-1)))
	if d > BackoffCap {
		return BackoffCap
	}
	return d
}
