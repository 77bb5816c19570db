// Package orchestration adapts the Orchestrator's per-user digest cycle
// into a stage handler, so it can be dequeued from the Orchestrator queue
// by the same worker loop that runs every other stage.
package orchestration

import (
	"context"

	"sifter/internal/errs"
	"sifter/internal/orchestrator"
	"sifter/internal/stagectx"
)

// Payload is the job data enqueued onto the orchestrator queue.
type Payload struct {
	UserID string `json:"userId"`
}

// Handler runs one end-to-end digest cycle for a user.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
}

// Handle runs RunForUser and logs the outcome; "no new episodes" is not
// an error, just an empty cycle.
func (h *Handler) Handle(ctx context.Context, jc stagectx.Context) error {
	var p Payload
	if err := jc.Data(&p); err != nil {
		return errs.Parse("unmarshal orchestration payload", err)
	}

	digest, err := h.Orchestrator.RunForUser(ctx, jc, p.UserID)
	if err != nil {
		return err
	}
	if digest == nil {
		jc.Log("digest cycle produced nothing new", "user_id", p.UserID)
		return nil
	}
	jc.Log("digest cycle complete", "user_id", p.UserID, "digest_id", digest.ID)
	return nil
}
