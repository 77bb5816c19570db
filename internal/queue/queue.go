// Package queue implements the Redis-backed durable job queue shared by
// every pipeline stage: at-least-once delivery via BRPOP, per-job dedup,
// exponential backoff retries via a delayed sorted set, and a small
// admin-observable surface (waiting/running/delayed/success/failed counts).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Name identifies one of the pipeline's named queues. Each stage owns
// exactly one.
type Name string

const (
	Transcription Name = "transcription"
	Analysis      Name = "analysis"
	Curation      Name = "curation"
	Assembly      Name = "assembly"
	Orchestrator  Name = "orchestrator"
)

// ErrDuplicate is returned by Enqueue when an identical dedup key was
// already claimed by an earlier Enqueue within DedupTTL.
var ErrDuplicate = errors.New("queue: duplicate job")

const (
	BlockTimeout       = 5 * time.Second
	JobRetention       = 7 * 24 * time.Hour
	DedupTTL           = 24 * time.Hour
	DefaultMaxAttempts = 5
	BackoffBase        = 2 * time.Second
	BackoffCap         = 5 * time.Minute
)

// Job is the durable record for one unit of work on a named queue.
type Job struct {
	ID          string          `json:"id"`
	Queue       Name            `json:"queue"`
	DedupKey    string          `json:"dedupKey,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Status      string          `json:"status"` // queued, running, completed, failed
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Enqueuer is the subset of Queue's API that stage and orchestrator code
// depends on to submit follow-on work, letting tests substitute
// queue/mock.MockQueue instead of a real Redis connection.
type Enqueuer interface {
	Enqueue(ctx context.Context, name Name, id, dedupKey string, payload interface{}, maxAttempts int) error
}

// Queue manages Redis-backed job lists for the pipeline's named queues.
type Queue struct {
	client *redis.Client
	prefix string
}

// New connects to addr and returns a ready Queue.
func New(ctx context.Context, addr string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Queue{client: client, prefix: "sifter"}, nil
}

// NewWithClient wraps an existing client, for tests.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client, prefix: "sifter"}
}

func (q *Queue) Close() error { return q.client.Close() }

func (q *Queue) waitingKey(name Name) string { return fmt.Sprintf("%s:%s:waiting", q.prefix, name) }
func (q *Queue) delayedKey(name Name) string { return fmt.Sprintf("%s:%s:delayed", q.prefix, name) }
func (q *Queue) runningKey(name Name) string { return fmt.Sprintf("%s:%s:running", q.prefix, name) }
func (q *Queue) successKey(name Name) string { return fmt.Sprintf("%s:%s:success", q.prefix, name) }
func (q *Queue) failedKey(name Name) string  { return fmt.Sprintf("%s:%s:failed", q.prefix, name) }
func (q *Queue) jobKey(id string) string     { return fmt.Sprintf("%s:job:%s", q.prefix, id) }
func (q *Queue) dedupKey(k string) string    { return fmt.Sprintf("%s:dedup:%s", q.prefix, k) }

// Enqueue pushes a new job onto name's waiting list. If dedupKey is
// non-empty and was already claimed within the last DedupTTL, Enqueue
// returns ErrDuplicate and does not enqueue a second time. The claim is
// not released when the job completes or fails; it lapses only when
// DedupTTL expires.
func (q *Queue) Enqueue(ctx context.Context, name Name, id, dedupKey string, payload interface{}, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if dedupKey != "" {
		ok, err := q.client.SetNX(ctx, q.dedupKey(dedupKey), id, DedupTTL).Result()
		if err != nil {
			return fmt.Errorf("check dedup key: %w", err)
		}
		if !ok {
			return ErrDuplicate
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	job := Job{
		ID:          id,
		Queue:       name,
		DedupKey:    dedupKey,
		Payload:     body,
		MaxAttempts: maxAttempts,
		Status:      "queued",
		CreatedAt:   time.Now().UTC(),
	}

	pipe := q.client.Pipeline()
	pipe.HSet(ctx, q.jobKey(id), jobFields(job))
	pipe.LPush(ctx, q.waitingKey(name), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	slog.Info("job enqueued", "queue", name, "job_id", id)
	return nil
}

func jobFields(j Job) map[string]interface{} {
	return map[string]interface{}{
		"id":           j.ID,
		"queue":        string(j.Queue),
		"dedup_key":    j.DedupKey,
		"payload":      string(j.Payload),
		"attempts":     j.Attempts,
		"max_attempts": j.MaxAttempts,
		"status":       j.Status,
		"last_error":   j.LastError,
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
	}
}

// Dequeue blocks up to BlockTimeout waiting for a job on name, and returns
// a Handle wrapping it, or (nil, nil) on timeout.
func (q *Queue) Dequeue(ctx context.Context, name Name) (*Handle, error) {
	result, err := q.client.BRPop(ctx, BlockTimeout, q.waitingKey(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("dequeue: malformed BRPOP result %v", result)
	}
	id := result[1]
	job, err := q.getJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("dequeue: job %s vanished", id)
	}
	job.Status = "running"
	if err := q.client.HSet(ctx, q.jobKey(id), "status", "running").Err(); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	q.client.SAdd(ctx, q.runningKey(name), id)
	return &Handle{q: q, job: *job}, nil
}

// GetJob fetches one job's current record for admin observability
// endpoints, without dequeuing it. Returns (nil, nil) if no such job
// exists or it has already expired past JobRetention.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.getJob(ctx, id)
}

func (q *Queue) getJob(ctx context.Context, id string) (*Job, error) {
	m, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	var j Job
	j.ID = m["id"]
	j.Queue = Name(m["queue"])
	j.DedupKey = m["dedup_key"]
	j.Payload = json.RawMessage(m["payload"])
	j.Status = m["status"]
	j.LastError = m["last_error"]
	fmt.Sscanf(m["attempts"], "%d", &j.Attempts)
	fmt.Sscanf(m["max_attempts"], "%d", &j.MaxAttempts)
	if t, err := time.Parse(time.RFC3339Nano, m["created_at"]); err == nil {
		j.CreatedAt = t
	}
	return &j, nil
}

// PromoteDueJobs moves jobs from name's delayed set whose backoff has
// elapsed back onto the waiting list. Callers (worker main loops) invoke
// this once per poll tick.
func (q *Queue) PromoteDueJobs(ctx context.Context, name Name) (int, error) {
	now := float64(time.Now().Unix())
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(name), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed jobs: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := q.client.Pipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.delayedKey(name), id)
		pipe.LPush(ctx, q.waitingKey(name), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return len(ids), nil
}

// CleanupExpired drops completed/failed job records older than JobRetention.
func (q *Queue) CleanupExpired(ctx context.Context, name Name) error {
	cutoff := time.Now().Add(-JobRetention)
	for _, key := range []string{q.successKey(name), q.failedKey(name)} {
		ids, err := q.client.SMembers(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("list %s: %w", key, err)
		}
		for _, id := range ids {
			job, err := q.getJob(ctx, id)
			if err != nil || job == nil {
				continue
			}
			if job.CreatedAt.Before(cutoff) {
				pipe := q.client.Pipeline()
				pipe.SRem(ctx, key, id)
				pipe.Del(ctx, q.jobKey(id))
				if _, err := pipe.Exec(ctx); err != nil {
					slog.Error("cleanup job failed", "job_id", id, "error", err)
				}
			}
		}
	}
	return nil
}

// Counts reports queue depth for admin observability endpoints.
type Counts struct {
	Waiting int64
	Running int64
	Delayed int64
	Success int64
	Failed  int64
}

func (q *Queue) Stats(ctx context.Context, name Name) (Counts, error) {
	var c Counts
	var err error
	if c.Waiting, err = q.client.LLen(ctx, q.waitingKey(name)).Result(); err != nil {
		return c, err
	}
	if c.Running, err = q.client.SCard(ctx, q.runningKey(name)).Result(); err != nil {
		return c, err
	}
	if c.Delayed, err = q.client.ZCard(ctx, q.delayedKey(name)).Result(); err != nil {
		return c, err
	}
	if c.Success, err = q.client.SCard(ctx, q.successKey(name)).Result(); err != nil {
		return c, err
	}
	if c.Failed, err = q.client.SCard(ctx, q.failedKey(name)).Result(); err != nil {
		return c, err
	}
	return c, nil
}
