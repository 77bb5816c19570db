// Package transcription implements the Transcription stage: download an
// episode's audio, split it into overlap-bounded chunks small enough for
// the configured Speech-to-Text Adapter, transcribe each chunk, and merge
// the results into one Transcript with timestamps relative to the whole
// episode.
package transcription

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"sifter/internal/audio"
	"sifter/internal/blobcache"
	"sifter/internal/config"
	"sifter/internal/db"
	"sifter/internal/errs"
	"sifter/internal/models"
	"sifter/internal/podcast"
	"sifter/internal/stagectx"
	"sifter/internal/stt"
)

// Payload is the job data enqueued onto the transcription queue.
type Payload struct {
	EpisodeID string `json:"episodeId"`
}

// Handler runs one Transcription job.
type Handler struct {
	Store       db.Store
	Transcriber stt.Transcriber
}

// Handle downloads, chunks, transcribes, and persists one episode's
// transcript, transitioning its status through downloading →
// transcribing → transcribed (or back to failed on error).
func (h *Handler) Handle(ctx context.Context, jc stagectx.Context) error {
	var p Payload
	if err := jc.Data(&p); err != nil {
		return errs.Parse("unmarshal transcription payload", err)
	}

	ep, err := h.Store.GetEpisode(ctx, p.EpisodeID)
	if err != nil {
		return errs.Transport("load episode", err)
	}
	if ep == nil {
		return errs.NotFound("episode " + p.EpisodeID + " not found")
	}
	if ep.Status == models.EpisodeStatusTranscribed || ep.Status == models.EpisodeStatusAnalyzing || ep.Status == models.EpisodeStatusAnalyzed {
		jc.Log("episode already transcribed, skipping", "episode_id", ep.ID)
		return nil
	}

	ok, err := h.Store.TransitionEpisodeStatus(ctx, ep.ID, []models.EpisodeStatus{models.EpisodeStatusPending, models.EpisodeStatusFailed}, models.EpisodeStatusDownloading)
	if err != nil {
		return errs.Transport("transition episode to downloading", err)
	}
	if !ok {
		return errs.Busy("episode " + ep.ID + " is not in a transcribable state")
	}

	episodeDir, err := blobcache.EpisodeDir(ep.ID)
	if err != nil {
		return h.fail(ctx, ep.ID, errs.Transport("create episode working dir", err))
	}
	defer blobcache.CleanupEpisode(ep.ID)

	sourcePath := filepath.Join(episodeDir, "source.mp3")
	jc.Log("downloading episode audio", "episode_id", ep.ID, "url", ep.AudioURL)
	if err := podcast.DownloadEpisodeAudio(ctx, ep.AudioURL, sourcePath); err != nil {
		return h.fail(ctx, ep.ID, err)
	}

	if _, err := h.Store.TransitionEpisodeStatus(ctx, ep.ID, []models.EpisodeStatus{models.EpisodeStatusDownloading}, models.EpisodeStatusTranscribing); err != nil {
		return h.fail(ctx, ep.ID, errs.Transport("transition episode to transcribing", err))
	}

	chunks, err := h.chunkAudio(ctx, ep.ID, sourcePath)
	if err != nil {
		return h.fail(ctx, ep.ID, err)
	}

	transcript, err := h.transcribeChunks(ctx, jc, chunks)
	if err != nil {
		return h.fail(ctx, ep.ID, err)
	}

	if err := h.Store.SaveTranscript(ctx, ep.ID, transcript); err != nil {
		return h.fail(ctx, ep.ID, errs.Transport("save transcript", err))
	}

	ok, err = h.Store.TransitionEpisodeStatus(ctx, ep.ID, []models.EpisodeStatus{models.EpisodeStatusTranscribing}, models.EpisodeStatusTranscribed)
	if err != nil {
		return errs.Transport("transition episode to transcribed", err)
	}
	if !ok {
		return errs.InvariantViolation("episode " + ep.ID + " left transcribing state unexpectedly")
	}

	jc.Log("transcription complete", "episode_id", ep.ID, "segments", len(transcript.Segments))
	return nil
}

type audioChunk struct {
	path  string
	start float64
}

// chunkAudio checks whether sourcePath already fits the configured STT
// upload limit; if not, it runs a single low-bitrate compression pass and
// uses the compressed stream as one chunk if that now fits, or otherwise
// windows the compressed stream into ~config.CompressedChunkSeconds
// segments with config.ChunkOverlapSeconds of overlap so STT context isn't
// lost at chunk boundaries.
func (h *Handler) chunkAudio(ctx context.Context, episodeID, sourcePath string) ([]audioChunk, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, errs.Transport("stat episode audio", err)
	}
	if info.Size() <= config.STTMaxFileSize {
		return []audioChunk{{path: sourcePath, start: 0}}, nil
	}

	compressedPath, err := blobcache.CompressedPath(episodeID)
	if err != nil {
		return nil, errs.Transport("build compressed path", err)
	}
	if err := audio.Compress(ctx, sourcePath, compressedPath, audio.LowBitrate); err != nil {
		return nil, errs.Parse("compress episode audio", err)
	}

	compressedInfo, err := os.Stat(compressedPath)
	if err != nil {
		return nil, errs.Transport("stat compressed audio", err)
	}
	if compressedInfo.Size() <= config.STTMaxFileSize {
		return []audioChunk{{path: compressedPath, start: 0}}, nil
	}

	compressedDuration, err := audio.Probe(ctx, compressedPath)
	if err != nil {
		return nil, errs.Parse("probe compressed audio", err)
	}

	chunkSeconds := float64(config.CompressedChunkSeconds)
	overlap := float64(config.ChunkOverlapSeconds)

	var chunks []audioChunk
	index := 0
	for start := 0.0; start < compressedDuration; start += chunkSeconds {
		end := start + chunkSeconds + overlap
		if end > compressedDuration {
			end = compressedDuration
		}
		chunkPath, err := blobcache.ChunkPath(episodeID, index)
		if err != nil {
			return nil, errs.Transport("build chunk path", err)
		}
		if err := audio.SliceClip(ctx, compressedPath, start, end, chunkPath); err != nil {
			return nil, errs.Parse(fmt.Sprintf("slice chunk %d", index), err)
		}
		chunks = append(chunks, audioChunk{path: chunkPath, start: start})
		index++
	}
	return chunks, nil
}

// transcribeChunks transcribes chunks sequentially, passing the first
// chunk's detected language as a hint to every subsequent chunk, and
// merges segments in chunk order, offsetting timestamps by each chunk's
// start time so the merged transcript is relative to the whole episode.
func (h *Handler) transcribeChunks(ctx context.Context, jc stagectx.Context, chunks []audioChunk) (*models.Transcript, error) {
	merged := &models.Transcript{}
	languageHint := ""

	for i, c := range chunks {
		jc.Log("transcribing chunk", "index", i, "of", len(chunks))
		t, err := h.Transcriber.Transcribe(ctx, c.path, languageHint)
		if err != nil {
			return nil, errs.Transport(fmt.Sprintf("transcribe chunk %d", i), err)
		}
		if languageHint == "" {
			languageHint = t.Language
		}

		chunkDuration := t.Duration
		if chunkDuration == 0 {
			probed, err := audio.Probe(ctx, c.path)
			if err == nil {
				chunkDuration = probed
			}
		}

		for _, seg := range t.Segments {
			merged.Segments = append(merged.Segments, models.Segment{
				Start: seg.Start + c.start,
				End:   seg.End + c.start,
				Text:  seg.Text,
			})
		}
		if merged.Text != "" && t.Text != "" {
			merged.Text += " "
		}
		merged.Text += t.Text
		if merged.Language == "" {
			merged.Language = t.Language
		}
		end := c.start + chunkDuration
		if end > merged.Duration {
			merged.Duration = end
		}

		pct := int(math.Ceil(float64(i+1) / float64(len(chunks)) * 100))
		if err := jc.UpdateProgress(ctx, fmt.Sprintf("%d", pct)); err != nil {
			jc.Log("update progress failed", "error", err)
		}
	}

	sort.Slice(merged.Segments, func(i, j int) bool {
		return merged.Segments[i].Start < merged.Segments[j].Start
	})
	return merged, nil
}

func (h *Handler) fail(ctx context.Context, episodeID string, cause error) error {
	if _, err := h.Store.TransitionEpisodeStatus(ctx, episodeID, []models.EpisodeStatus{
		models.EpisodeStatusDownloading, models.EpisodeStatusTranscribing, models.EpisodeStatusPending,
	}, models.EpisodeStatusFailed); err != nil {
		return fmt.Errorf("transition to failed after %w: %w", cause, err)
	}
	return cause
}
