// Package stagectx defines the narrow interface stage handlers run
// against, so the same handler body executes whether it was dequeued from
// Redis by a worker process or invoked in-process by the Orchestrator.
package stagectx

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Context is satisfied by both *queue.Handle and the Orchestrator's
// in-process shim.
type Context interface {
	ID() string
	Data(v interface{}) error
	Log(msg string, args ...interface{})
	UpdateProgress(ctx context.Context, progress string) error
}

// Shim is a minimal in-process Context for stage invocations the
// Orchestrator drives directly rather than through a queue dequeue.
type Shim struct {
	JobID   string
	Payload interface{}
}

func (s *Shim) ID() string { return s.JobID }

// Data round-trips Payload through JSON, matching queue.Handle.Data's
// unmarshal semantics so stage handlers don't need to know which caller
// invoked them.
func (s *Shim) Data(v interface{}) error {
	b, err := json.Marshal(s.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *Shim) Log(msg string, args ...interface{}) {
	allArgs := append([]interface{}{"job_id", s.JobID}, args...)
	slog.Info(msg, allArgs...)
}

func (s *Shim) UpdateProgress(ctx context.Context, progress string) error {
	return nil
}
