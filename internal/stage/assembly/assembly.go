// Package assembly implements the Digest Assembly stage: write a narrator
// script that introduces and bridges the curated clips, synthesize it,
// extract each clip's audio from its source episode, fade and concatenate
// everything in order, and publish the result to the Blob Store.
package assembly

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"sifter/internal/audio"
	"sifter/internal/blobcache"
	"sifter/internal/blobstore"
	"sifter/internal/config"
	"sifter/internal/db"
	"sifter/internal/errs"
	"sifter/internal/llm"
	"sifter/internal/models"
	"sifter/internal/podcast"
	"sifter/internal/stagectx"
	"sifter/internal/tts"
)

// ExistingTTSPaths points at a prior run's narrator audio, so assembly can
// resume after a crash between TTS synthesis and stitching without
// re-synthesizing the narration.
type ExistingTTSPaths struct {
	Intro       string   `json:"intro"`
	Transitions []string `json:"transitions"`
	Outro       string   `json:"outro"`
}

// Payload is the job data enqueued onto the assembly queue.
type Payload struct {
	DigestID             string            `json:"digestId"`
	SkipScriptGeneration bool              `json:"skipScriptGeneration"`
	ExistingTTSPaths     *ExistingTTSPaths `json:"existingTtsPaths,omitempty"`
}

// Handler runs one Assembly job.
type Handler struct {
	Store     db.Store
	LLM       llm.Client
	TTS       tts.Synthesizer
	BlobStore blobstore.Store
}

type scriptResponse struct {
	Intro       string   `json:"intro"`
	Transitions []string `json:"transitions"`
	Outro       string   `json:"outro"`
}

// Handle assembles one digest's final audio from its curated clips.
func (h *Handler) Handle(ctx context.Context, jc stagectx.Context) error {
	var p Payload
	if err := jc.Data(&p); err != nil {
		return errs.Parse("unmarshal assembly payload", err)
	}

	digest, err := h.Store.GetDigest(ctx, p.DigestID)
	if err != nil {
		return errs.Transport("load digest", err)
	}
	if digest == nil {
		return errs.NotFound("digest " + p.DigestID + " not found")
	}

	clips, err := h.Store.ListDigestClipsWithEpisode(ctx, digest.ID)
	if err != nil {
		return errs.Transport("list digest clips", err)
	}
	if len(clips) == 0 {
		return errs.InvariantViolation("digest " + digest.ID + " has no clips to assemble")
	}

	workDir, err := blobcache.DigestWorkDir(digest.ID)
	if err != nil {
		return h.fail(ctx, digest.ID, errs.Transport("create digest working dir", err))
	}
	defer blobcache.CleanupDigest(digest.ID)

	ok, err := h.Store.TransitionDigestStatus(ctx, digest.ID, []models.DigestStatus{models.DigestStatusPending, models.DigestStatusFailed}, models.DigestStatusGeneratingScript)
	if err != nil {
		return errs.Transport("transition digest to generating_script", err)
	}
	if !ok {
		return errs.Busy("digest " + digest.ID + " is not in an assemblable state")
	}

	var script *models.NarratorScript
	if p.SkipScriptGeneration && digest.NarratorScript != nil {
		jc.Log("reusing existing narrator script", "digest_id", digest.ID)
		script, err = parseNarratorScript(*digest.NarratorScript)
		if err != nil {
			return h.fail(ctx, digest.ID, err)
		}
	} else {
		script, err = h.generateScript(ctx, clips)
		if err != nil {
			return h.fail(ctx, digest.ID, err)
		}
		scriptJSON, err := json.Marshal(script)
		if err != nil {
			return h.fail(ctx, digest.ID, errs.InvariantViolation("marshal narrator script: "+err.Error()))
		}
		scriptStr := string(scriptJSON)
		if err := h.Store.SetNarratorScript(ctx, digest.ID, &scriptStr); err != nil {
			return h.fail(ctx, digest.ID, errs.Transport("save narrator script", err))
		}
	}

	if _, err := h.Store.TransitionDigestStatus(ctx, digest.ID, []models.DigestStatus{models.DigestStatusGeneratingScript}, models.DigestStatusGeneratingAudio); err != nil {
		return h.fail(ctx, digest.ID, errs.Transport("transition digest to generating_audio", err))
	}

	parts, err := h.buildParts(ctx, jc, workDir, digest, script, clips, p.ExistingTTSPaths)
	if err != nil {
		return h.fail(ctx, digest.ID, err)
	}

	if _, err := h.Store.TransitionDigestStatus(ctx, digest.ID, []models.DigestStatus{models.DigestStatusGeneratingAudio}, models.DigestStatusStitching); err != nil {
		return h.fail(ctx, digest.ID, errs.Transport("transition digest to stitching", err))
	}

	finalPath := filepath.Join(workDir, "digest.mp3")
	if err := audio.Concatenate(ctx, parts, finalPath); err != nil {
		return h.fail(ctx, digest.ID, errs.Parse("concatenate digest parts", err))
	}

	duration, err := publishedDuration(finalPath)
	if err != nil {
		return h.fail(ctx, digest.ID, errs.Transport("stat final digest", err))
	}

	key := fmt.Sprintf("digests/%s.mp3", digest.ID)
	url, err := h.BlobStore.PutFile(ctx, key, finalPath, "audio/mpeg")
	if err != nil {
		return h.fail(ctx, digest.ID, errs.Transport("publish digest audio", err))
	}

	if err := h.Store.PublishDigest(ctx, digest.ID, url, duration); err != nil {
		return errs.Transport("record published digest", err)
	}

	jc.Log("assembly complete", "digest_id", digest.ID, "duration", duration, "clips", len(clips))
	return nil
}

func (h *Handler) generateScript(ctx context.Context, clips []*models.ClipWithEpisode) (*models.NarratorScript, error) {
	raw, err := h.LLM.Complete(ctx, systemPrompt, buildScriptPrompt(clips))
	if err != nil {
		return nil, errs.Transport("llm script generation", err)
	}
	var resp scriptResponse
	if err := llm.ExtractJSON(raw, &resp); err != nil {
		return nil, err
	}
	if len(resp.Transitions) != len(clips)-1 {
		// The LLM didn't return exactly one transition per clip boundary.
		// Pair up what we got rather than failing the whole digest —
		// missing boundaries just play back-to-back with no bridge line.
		slog.Warn("narrator script transition count mismatch", "want", len(clips)-1, "got", len(resp.Transitions))
		resp.Transitions = padOrTrim(resp.Transitions, len(clips)-1)
	}
	return &models.NarratorScript{Intro: resp.Intro, Transitions: resp.Transitions, Outro: resp.Outro}, nil
}

// parseNarratorScript decodes a digest's persisted narrator script back
// into a NarratorScript, for the skipScriptGeneration resume path.
func parseNarratorScript(raw string) (*models.NarratorScript, error) {
	var script models.NarratorScript
	if err := json.Unmarshal([]byte(raw), &script); err != nil {
		return nil, errs.Parse("parse persisted narrator script", err)
	}
	return &script, nil
}

// publishedDuration estimates a published digest's duration from its file
// size, assuming the canonical 128 kbps encode.
func publishedDuration(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / (128 * 1024 / 8), nil
}

func padOrTrim(transitions []string, want int) []string {
	if want < 0 {
		want = 0
	}
	if len(transitions) == want {
		return transitions
	}
	out := make([]string, want)
	copy(out, transitions)
	return out
}

// buildParts synthesizes narration and extracts clip audio in playback
// order, fading each clip, and returns the ordered list of part paths
// ready for concatenation.
func (h *Handler) buildParts(ctx context.Context, jc stagectx.Context, workDir string, digest *models.Digest, script *models.NarratorScript, clips []*models.ClipWithEpisode, existingTTS *ExistingTTSPaths) ([]string, error) {
	var parts []string

	introExisting := ""
	if existingTTS != nil {
		introExisting = existingTTS.Intro
	}
	introPath, err := h.resolveOrSynthesize(ctx, script.Intro, introExisting, filepath.Join(workDir, "intro.mp3"))
	if err != nil {
		return nil, errs.Transport("synthesize intro", err)
	}
	parts = append(parts, introPath)

	for i, clip := range clips {
		episode, err := h.Store.GetEpisode(ctx, clip.EpisodeID)
		if err != nil {
			return nil, errs.Transport("load clip episode", err)
		}
		if episode == nil {
			return nil, errs.NotFound("episode " + clip.EpisodeID + " not found for clip " + clip.ID)
		}

		sourcePath := filepath.Join(workDir, fmt.Sprintf("source-%d.mp3", i))
		if err := podcast.DownloadEpisodeAudio(ctx, episode.AudioURL, sourcePath); err != nil {
			return nil, err
		}

		rawClipPath := filepath.Join(workDir, fmt.Sprintf("clip-%d-raw.mp3", i))
		if err := audio.SliceClip(ctx, sourcePath, clip.StartTime, clip.EndTime, rawClipPath); err != nil {
			return nil, errs.Parse(fmt.Sprintf("slice clip %d", i), err)
		}

		fadedClipPath := filepath.Join(workDir, fmt.Sprintf("clip-%d.mp3", i))
		if err := audio.AddFades(ctx, rawClipPath, config.ClipFadeSeconds, fadedClipPath); err != nil {
			return nil, errs.Parse(fmt.Sprintf("fade clip %d", i), err)
		}
		parts = append(parts, fadedClipPath)

		jc.Log("prepared clip", "index", i, "clip_id", clip.ID)

		if i < len(script.Transitions) && script.Transitions[i] != "" {
			transitionExisting := ""
			if existingTTS != nil && i < len(existingTTS.Transitions) {
				transitionExisting = existingTTS.Transitions[i]
			}
			transitionPath, err := h.resolveOrSynthesize(ctx, script.Transitions[i], transitionExisting, filepath.Join(workDir, fmt.Sprintf("transition-%d.mp3", i)))
			if err != nil {
				return nil, errs.Transport(fmt.Sprintf("synthesize transition %d", i), err)
			}
			parts = append(parts, transitionPath)
		}

		pct := 50 + int(math.Ceil(float64(i+1)/float64(len(clips))*30))
		if err := jc.UpdateProgress(ctx, fmt.Sprintf("%d", pct)); err != nil {
			jc.Log("update progress failed", "error", err)
		}
	}

	outroExisting := ""
	if existingTTS != nil {
		outroExisting = existingTTS.Outro
	}
	outroPath, err := h.resolveOrSynthesize(ctx, script.Outro, outroExisting, filepath.Join(workDir, "outro.mp3"))
	if err != nil {
		return nil, errs.Transport("synthesize outro", err)
	}
	parts = append(parts, outroPath)

	return parts, nil
}

// resolveOrSynthesize reuses existingPath if it's non-empty and the file
// actually exists (the resumption path after a crash between TTS and
// stitching), otherwise synthesizes text to dstPath.
func (h *Handler) resolveOrSynthesize(ctx context.Context, text, existingPath, dstPath string) (string, error) {
	if existingPath != "" {
		if _, err := os.Stat(existingPath); err != nil {
			return "", errs.InvariantViolation("existing tts path " + existingPath + " does not exist: " + err.Error())
		}
		return existingPath, nil
	}
	if _, err := h.TTS.Synthesize(ctx, text, config.TTSDefaultVoice, dstPath); err != nil {
		return "", err
	}
	return dstPath, nil
}

const systemPrompt = `You are a podcast narrator writing a short script to introduce and bridge
clips drawn from several episodes into one personalized digest. Respond with
JSON only: {"intro": string, "transitions": [string, ...], "outro": string}.
There must be exactly one transition per gap between consecutive clips
(clips-1 total). Keep each line to one or two sentences.`

func buildScriptPrompt(clips []*models.ClipWithEpisode) string {
	out := "Clips in playback order:\n"
	for i, c := range clips {
		out += fmt.Sprintf("%d. podcast=%q episode=%q summary=%q\n", i+1, c.PodcastTitle, c.EpisodeTitle, c.Summary)
	}
	return out
}

func (h *Handler) fail(ctx context.Context, digestID string, cause error) error {
	h.Store.TransitionDigestStatus(ctx, digestID, []models.DigestStatus{
		models.DigestStatusGeneratingScript, models.DigestStatusGeneratingAudio, models.DigestStatusStitching, models.DigestStatusPending,
	}, models.DigestStatusFailed)
	return cause
}
