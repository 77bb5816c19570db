// Package analysis implements the Analysis stage: given a transcribed
// episode, ask the LLM Adapter to identify relevance-scored clips against
// a subscriber's stated interests, then persist them, replacing any prior
// analysis for the episode wholesale.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"sifter/internal/db"
	"sifter/internal/errs"
	"sifter/internal/llm"
	"sifter/internal/models"
	"sifter/internal/stagectx"

	"github.com/google/uuid"
)

// Payload is the job data enqueued onto the analysis queue.
type Payload struct {
	EpisodeID string   `json:"episodeId"`
	Interests []string `json:"interests"`
}

// Handler runs one Analysis job.
type Handler struct {
	Store db.Store
	LLM   llm.Client
}

type llmClip struct {
	StartTime      float64 `json:"startTime"`
	EndTime        float64 `json:"endTime"`
	RelevanceScore float64 `json:"relevanceScore"`
	Reasoning      string  `json:"reasoning"`
	Summary        string  `json:"summary"`
}

type llmClipResponse struct {
	Clips []llmClip `json:"clips"`
}

// Handle analyzes one transcribed episode against interests and replaces
// its clip set.
func (h *Handler) Handle(ctx context.Context, jc stagectx.Context) error {
	var p Payload
	if err := jc.Data(&p); err != nil {
		return errs.Parse("unmarshal analysis payload", err)
	}

	ep, err := h.Store.GetEpisode(ctx, p.EpisodeID)
	if err != nil {
		return errs.Transport("load episode", err)
	}
	if ep == nil {
		return errs.NotFound("episode " + p.EpisodeID + " not found")
	}
	if ep.Status == models.EpisodeStatusAnalyzed {
		jc.Log("episode already analyzed, skipping", "episode_id", ep.ID)
		return nil
	}
	if ep.Transcript == nil {
		return errs.InvariantViolation("episode " + ep.ID + " has no transcript to analyze")
	}

	ok, err := h.Store.TransitionEpisodeStatus(ctx, ep.ID, []models.EpisodeStatus{models.EpisodeStatusTranscribed, models.EpisodeStatusFailed}, models.EpisodeStatusAnalyzing)
	if err != nil {
		return errs.Transport("transition episode to analyzing", err)
	}
	if !ok {
		return errs.Busy("episode " + ep.ID + " is not in an analyzable state")
	}

	clips, err := h.extractClips(ctx, ep, p.Interests)
	if err != nil {
		h.fail(ctx, ep.ID)
		return err
	}

	if err := h.Store.ReplaceClipsForEpisode(ctx, ep.ID, clips); err != nil {
		h.fail(ctx, ep.ID)
		return errs.Transport("persist clips", err)
	}

	ok, err = h.Store.TransitionEpisodeStatus(ctx, ep.ID, []models.EpisodeStatus{models.EpisodeStatusAnalyzing}, models.EpisodeStatusAnalyzed)
	if err != nil {
		return errs.Transport("transition episode to analyzed", err)
	}
	if !ok {
		return errs.InvariantViolation("episode " + ep.ID + " left analyzing state unexpectedly")
	}

	jc.Log("analysis complete", "episode_id", ep.ID, "clips", len(clips))
	return nil
}

func (h *Handler) extractClips(ctx context.Context, ep *models.Episode, interests []string) ([]*models.Clip, error) {
	prompt := buildPrompt(ep, interests)
	raw, err := h.LLM.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, errs.Transport("llm clip extraction", err)
	}

	var resp llmClipResponse
	if err := llm.ExtractJSON(raw, &resp); err != nil {
		return nil, err
	}

	clips := make([]*models.Clip, 0, len(resp.Clips))
	for _, c := range resp.Clips {
		if c.EndTime <= c.StartTime {
			continue
		}
		if c.StartTime < 0 || c.EndTime > ep.Transcript.Duration {
			continue
		}
		clips = append(clips, &models.Clip{
			ID:             uuid.New().String(),
			EpisodeID:      ep.ID,
			StartTime:      c.StartTime,
			EndTime:        c.EndTime,
			Transcript:     transcriptSlice(ep.Transcript, c.StartTime, c.EndTime),
			RelevanceScore: c.RelevanceScore,
			Reasoning:      c.Reasoning,
			Summary:        c.Summary,
		})
	}
	if len(clips) == 0 {
		return nil, errs.InvariantViolation("llm returned no usable clips for episode " + ep.ID)
	}
	return clips, nil
}

const systemPrompt = `You are a podcast producer's assistant. Given an episode transcript and a
listener's stated interests, identify the most relevant self-contained clips.
Respond with JSON only: {"clips": [{"startTime": number, "endTime": number,
"relevanceScore": number between 0 and 100, "reasoning": string, "summary": string}]}.
Clips should be 60-300 seconds long and make sense without additional context.`

func buildPrompt(ep *models.Episode, interests []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Listener interests: %s\n\n", strings.Join(interests, ", "))
	fmt.Fprintf(&b, "Episode: %s\n\n", ep.Title)
	b.WriteString("Transcript segments (start-end: text):\n")
	for _, seg := range ep.Transcript.Segments {
		fmt.Fprintf(&b, "%.1f-%.1f: %s\n", seg.Start, seg.End, seg.Text)
	}
	return b.String()
}

// transcriptSlice concatenates segment text overlapping [start, end).
func transcriptSlice(t *models.Transcript, start, end float64) string {
	var b strings.Builder
	for _, seg := range t.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

func (h *Handler) fail(ctx context.Context, episodeID string) {
	h.Store.TransitionEpisodeStatus(ctx, episodeID, []models.EpisodeStatus{models.EpisodeStatusAnalyzing}, models.EpisodeStatusFailed)
}
