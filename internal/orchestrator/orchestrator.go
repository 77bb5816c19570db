// Package orchestrator drives one end-to-end digest cycle for a user:
// pick the episodes published since their last digest, push them through
// Transcription and Analysis on the durable queue, then run Curation and
// Assembly in-process once every episode has settled, using the same
// stage handlers workers use via the stagectx shim.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"sifter/internal/config"
	"sifter/internal/db"
	"sifter/internal/errs"
	"sifter/internal/models"
	"sifter/internal/queue"
	"sifter/internal/stage/assembly"
	"sifter/internal/stage/curation"
	"sifter/internal/stagectx"
	"sifter/internal/state"

	"github.com/google/uuid"
)

// StageHandler is satisfied by curation.Handler and assembly.Handler,
// letting the orchestrator invoke either in-process through the same
// Handle(ctx, stagectx.Context) signature workers use.
type StageHandler interface {
	Handle(ctx context.Context, jc stagectx.Context) error
}

// Orchestrator coordinates one digest cycle end to end.
type Orchestrator struct {
	Store    db.Store
	Queue    queue.Enqueuer
	Curation StageHandler
	Assembly StageHandler
	// State tracks each user's last successful cycle so RunForUser windows
	// from "since you were last caught up" once they've run at least once.
	// Optional: nil falls back to a fixed daily/weekly lookback.
	State *state.Manager
}

// RunForUser builds and publishes one digest for userID covering episodes
// published since their last window, or returns a nil Digest if nothing
// new qualified. jc receives progress updates through the run; pass
// &stagectx.Shim{} when no caller is watching progress.
func (o *Orchestrator) RunForUser(ctx context.Context, jc stagectx.Context, userID string) (*models.Digest, error) {
	user, err := o.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, errs.Transport("load user", err)
	}
	if user == nil {
		return nil, errs.NotFound("user " + userID + " not found")
	}

	podcastIDs, err := o.Store.ListSubscribedPodcastIDs(ctx, userID)
	if err != nil {
		return nil, errs.Transport("list subscribed podcasts", err)
	}
	if len(podcastIDs) == 0 {
		return nil, nil
	}

	since, err := o.windowStart(ctx, user)
	if err != nil {
		return nil, err
	}
	episodes, err := o.Store.ListEpisodesForPodcastsSince(ctx, podcastIDs, since)
	if err != nil {
		return nil, errs.Transport("list episodes since window start", err)
	}
	if len(episodes) == 0 {
		return nil, nil
	}

	ids := make([]string, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.ID
	}
	if err := o.Store.ResetFailedEpisodesToPending(ctx, ids); err != nil {
		return nil, errs.Transport("reset failed episodes", err)
	}

	if err := o.enqueuePendingTranscriptions(ctx, episodes); err != nil {
		return nil, err
	}

	analyzed, err := o.settleEpisodes(ctx, jc, user, ids)
	if err != nil {
		return nil, err
	}
	if len(analyzed) == 0 {
		return nil, errs.InvariantViolation("no episodes reached analyzed status for user " + userID)
	}

	digest := &models.Digest{
		ID:         uuid.New().String(),
		UserID:     userID,
		Status:     models.DigestStatusCurating,
		EpisodeIDs: analyzed,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := o.Store.CreateDigest(ctx, digest); err != nil {
		return nil, errs.Transport("create digest", err)
	}

	if err := o.Curation.Handle(ctx, &stagectx.Shim{
		JobID:   digest.ID,
		Payload: curation.Payload{DigestID: digest.ID},
	}); err != nil {
		return nil, err
	}

	if err := o.Assembly.Handle(ctx, &stagectx.Shim{
		JobID:   digest.ID,
		Payload: assembly.Payload{DigestID: digest.ID},
	}); err != nil {
		return nil, err
	}

	final, err := o.Store.GetDigest(ctx, digest.ID)
	if err != nil {
		return nil, errs.Transport("reload published digest", err)
	}

	if o.State != nil {
		if err := o.State.Save(ctx, userID, time.Now().UTC()); err != nil {
			return nil, errs.Transport("save digest cycle state", err)
		}
	}
	return final, nil
}

// windowStart returns the lower bound for episode selection: the user's
// last successful cycle if one is on record, otherwise a fixed lookback
// sized to their digest frequency.
func (o *Orchestrator) windowStart(ctx context.Context, user *models.User) (time.Time, error) {
	if o.State != nil {
		prior, err := o.State.Get(ctx, user.ID)
		if err != nil {
			return time.Time{}, errs.Transport("load digest cycle state", err)
		}
		if prior != nil {
			return prior.LastRunAt, nil
		}
	}
	now := time.Now().UTC()
	if user.Frequency == models.FrequencyWeekly {
		return now.AddDate(0, 0, -7), nil
	}
	return now.AddDate(0, 0, -1), nil
}

func (o *Orchestrator) enqueuePendingTranscriptions(ctx context.Context, episodes []*models.Episode) error {
	for _, ep := range episodes {
		if ep.Status != models.EpisodeStatusPending && ep.Status != models.EpisodeStatusFailed {
			continue
		}
		payload := map[string]string{"episodeId": ep.ID}
		err := o.Queue.Enqueue(ctx, queue.Transcription, "transcribe-"+ep.ID, ep.ID, payload, queue.DefaultMaxAttempts)
		if err != nil && err != queue.ErrDuplicate {
			return errs.Transport("enqueue transcription for episode "+ep.ID, err)
		}
	}
	return nil
}

// settleEpisodes polls episode status until every one reaches a terminal
// state (analyzed or failed), enqueuing Analysis as soon as an episode
// finishes transcription, and returns the IDs that made it to analyzed.
// It gives up at config.OrchestratorPollCeiling and returns whatever
// settled by then.
func (o *Orchestrator) settleEpisodes(ctx context.Context, jc stagectx.Context, user *models.User, ids []string) ([]string, error) {
	deadline := time.Now().Add(config.OrchestratorPollCeiling)
	total := len(ids)
	analysisQueued := make(map[string]bool, len(ids))
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	var analyzed []string
	failed := 0
	ticker := time.NewTicker(config.OrchestratorPollInterval)
	defer ticker.Stop()

	for len(pending) > 0 && time.Now().Before(deadline) {
		for id := range pending {
			ep, err := o.Store.GetEpisode(ctx, id)
			if err != nil {
				return nil, errs.Transport("poll episode "+id, err)
			}
			if ep == nil {
				delete(pending, id)
				continue
			}
			switch ep.Status {
			case models.EpisodeStatusAnalyzed:
				analyzed = append(analyzed, ep.ID)
				delete(pending, id)
			case models.EpisodeStatusFailed:
				failed++
				delete(pending, id)
			case models.EpisodeStatusTranscribed:
				if !analysisQueued[id] {
					payload := map[string]interface{}{"episodeId": ep.ID, "interests": user.Interests}
					err := o.Queue.Enqueue(ctx, queue.Analysis, "analyze-"+ep.ID, ep.ID+":analysis", payload, queue.DefaultMaxAttempts)
					if err != nil && err != queue.ErrDuplicate {
						return nil, errs.Transport("enqueue analysis for episode "+ep.ID, err)
					}
					analysisQueued[id] = true
				}
			}
		}

		pct := int(math.Ceil(float64(len(analyzed)+failed) / float64(total) * 50))
		if err := jc.UpdateProgress(ctx, fmt.Sprintf("%d", pct)); err != nil {
			jc.Log("update progress failed", "error", err)
		}

		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return analyzed, ctx.Err()
		case <-ticker.C:
		}
	}
	return analyzed, nil
}
