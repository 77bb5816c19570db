// Package curation implements the Curation stage: given every clip
// collected across a user's subscribed podcasts in the current window,
// ask the LLM Adapter to select a cross-episode shortlist that fits the
// user's target digest duration.
package curation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sifter/internal/config"
	"sifter/internal/db"
	"sifter/internal/errs"
	"sifter/internal/llm"
	"sifter/internal/models"
	"sifter/internal/stagectx"
)

// Payload is the job data enqueued onto the curation queue.
type Payload struct {
	DigestID string `json:"digestId"`
}

// Handler runs one Curation job.
type Handler struct {
	Store db.Store
	LLM   llm.Client
}

type llmSelection struct {
	ClipIDs []string `json:"clipIds"`
}

// Handle selects the clips for one digest from its candidate episode set
// and orders them.
func (h *Handler) Handle(ctx context.Context, jc stagectx.Context) error {
	var p Payload
	if err := jc.Data(&p); err != nil {
		return errs.Parse("unmarshal curation payload", err)
	}

	digest, err := h.Store.GetDigest(ctx, p.DigestID)
	if err != nil {
		return errs.Transport("load digest", err)
	}
	if digest == nil {
		return errs.NotFound("digest " + p.DigestID + " not found")
	}

	existing, err := h.Store.ListDigestClips(ctx, digest.ID)
	if err != nil {
		return errs.Transport("list existing digest clips", err)
	}
	if len(existing) > 0 && digest.NarratorScript != nil {
		jc.Log("digest already curated, skipping", "digest_id", digest.ID)
		return nil
	}
	if len(existing) > 0 {
		jc.Log("digest clips already selected, reusing for assembly", "digest_id", digest.ID)
		if digest.Status == models.DigestStatusCurating {
			ok, err := h.Store.TransitionDigestStatus(ctx, digest.ID, []models.DigestStatus{models.DigestStatusCurating}, models.DigestStatusPending)
			if err != nil {
				return errs.Transport("transition digest to pending", err)
			}
			if !ok {
				return errs.InvariantViolation("digest " + digest.ID + " left curating state unexpectedly")
			}
		}
		return nil
	}

	candidates, err := h.Store.ListClipsForEpisodesWithEpisode(ctx, digest.EpisodeIDs)
	if err != nil {
		return errs.Transport("list candidate clips", err)
	}
	if len(candidates) == 0 {
		return errs.InvariantViolation("digest " + digest.ID + " has no candidate clips")
	}

	user, err := h.Store.GetUser(ctx, digest.UserID)
	if err != nil {
		return errs.Transport("load user", err)
	}
	if user == nil {
		return errs.NotFound("user " + digest.UserID + " not found")
	}

	targetSeconds := targetDurationSeconds(user)
	selected, err := h.selectClips(ctx, candidates, targetSeconds)
	if err != nil {
		return err
	}

	ids := make([]string, len(selected))
	for i, c := range selected {
		ids[i] = c.ID
	}
	if err := h.Store.ReplaceDigestClips(ctx, digest.ID, ids); err != nil {
		return errs.Transport("persist digest clips", err)
	}
	if err := h.Store.SetNarratorScript(ctx, digest.ID, nil); err != nil {
		return errs.Transport("clear stale narrator script", err)
	}

	ok, err := h.Store.TransitionDigestStatus(ctx, digest.ID, []models.DigestStatus{models.DigestStatusCurating}, models.DigestStatusPending)
	if err != nil {
		return errs.Transport("transition digest to pending", err)
	}
	if !ok {
		return errs.InvariantViolation("digest " + digest.ID + " left curating state unexpectedly")
	}

	jc.Log("curation complete", "digest_id", digest.ID, "clips", len(selected))
	return nil
}

func targetDurationSeconds(u *models.User) int {
	if u.PreferredMinutes > 0 {
		return u.PreferredMinutes * 60
	}
	return config.CurationTargetDurationSeconds
}

func (h *Handler) selectClips(ctx context.Context, candidates []*models.ClipWithEpisode, targetSeconds int) ([]*models.ClipWithEpisode, error) {
	raw, err := h.LLM.Complete(ctx, systemPrompt, buildPrompt(candidates, targetSeconds))
	if err != nil {
		return nil, errs.Transport("llm curation", err)
	}

	var sel llmSelection
	if err := llm.ExtractJSON(raw, &sel); err != nil {
		return nil, err
	}

	byID := make(map[string]*models.ClipWithEpisode, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	var chosen []*models.ClipWithEpisode
	for _, id := range sel.ClipIDs {
		if c, ok := byID[id]; ok {
			chosen = append(chosen, c)
		}
	}

	if len(chosen) < config.CurationMinClips {
		chosen = fillToMinimum(chosen, candidates)
	}
	return chosen, nil
}

// fillToMinimum keeps the LLM's valid selection and greedily appends the
// next highest-scored unselected candidates until config.CurationMinClips
// is met, used when the LLM's own selection is too small rather than
// discarding it.
func fillToMinimum(chosen []*models.ClipWithEpisode, candidates []*models.ClipWithEpisode) []*models.ClipWithEpisode {
	already := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		already[c.ID] = true
	}

	remaining := make([]*models.ClipWithEpisode, 0, len(candidates))
	for _, c := range candidates {
		if !already[c.ID] {
			remaining = append(remaining, c)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].RelevanceScore > remaining[j].RelevanceScore })

	for _, c := range remaining {
		if len(chosen) >= config.CurationMinClips || len(chosen) >= config.CurationMaxClips {
			break
		}
		chosen = append(chosen, c)
	}
	return chosen
}

const systemPrompt = `You are a podcast producer's assistant selecting clips for a personalized
audio digest. Given candidate clips across multiple episodes, choose a subset
that together approximate the target duration, preferring the highest
relevance scores and avoiding redundant topics. Respond with JSON only:
{"clipIds": [string, ...]} in the order they should play.`

func buildPrompt(candidates []*models.ClipWithEpisode, targetSeconds int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target total duration: %d seconds (min %d clips, max %d clips)\n\n", targetSeconds, config.CurationMinClips, config.CurationMaxClips)
	for _, c := range candidates {
		fmt.Fprintf(&b, "id=%s podcast=%q episode=%q duration=%.0fs score=%.2f summary=%q\n",
			c.ID, c.PodcastTitle, c.EpisodeTitle, c.Duration(), c.RelevanceScore, c.Summary)
	}
	return b.String()
}
