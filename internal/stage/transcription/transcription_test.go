package transcription

import (
	"context"
	"testing"

	"sifter/internal/db/dbtest"
	"sifter/internal/models"
	"sifter/internal/stagectx"
	"sifter/internal/stt/mock"
)

func TestHandleSkipsAlreadyTranscribedEpisode(t *testing.T) {
	store := dbtest.New()
	store.Episodes["e1"] = &models.Episode{ID: "e1", Status: models.EpisodeStatusTranscribed}
	h := &Handler{Store: store}

	err := h.Handle(context.Background(), &stagectx.Shim{JobID: "e1", Payload: Payload{EpisodeID: "e1"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	ep, err := store.GetEpisode(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if ep.Status != models.EpisodeStatusTranscribed {
		t.Fatalf("expected status unchanged at transcribed, got %s", ep.Status)
	}
}

func TestHandleRejectsMissingEpisode(t *testing.T) {
	store := dbtest.New()
	h := &Handler{Store: store}

	err := h.Handle(context.Background(), &stagectx.Shim{JobID: "missing", Payload: Payload{EpisodeID: "missing"}})
	if err == nil {
		t.Fatal("expected error for missing episode")
	}
}

func TestHandleRejectsEpisodeNotInTranscribableState(t *testing.T) {
	store := dbtest.New()
	store.Episodes["e1"] = &models.Episode{ID: "e1", Status: models.EpisodeStatusDownloading}
	h := &Handler{Store: store}

	err := h.Handle(context.Background(), &stagectx.Shim{JobID: "e1", Payload: Payload{EpisodeID: "e1"}})
	if err == nil {
		t.Fatal("expected error for episode outside pending/failed states")
	}
}

func TestTranscribeChunksMergesSequentialResultsInOrder(t *testing.T) {
	byPath := map[string]*models.Transcript{
		"c0.mp3": {Text: "zero", Segments: []models.Segment{{Start: 0, End: 1, Text: "zero"}}, Language: "en-US", Duration: 1},
		"c1.mp3": {Text: "one", Segments: []models.Segment{{Start: 0, End: 1, Text: "one"}}, Duration: 1},
		"c2.mp3": {Text: "two", Segments: []models.Segment{{Start: 0, End: 1, Text: "two"}}, Duration: 1},
	}
	transcriber := &mock.MockTranscriber{
		TranscribeFunc: func(ctx context.Context, audioPath, languageHint string) (*models.Transcript, error) {
			return byPath[audioPath], nil
		},
	}
	h := &Handler{Transcriber: transcriber}

	chunks := []audioChunk{
		{path: "c0.mp3", start: 0},
		{path: "c1.mp3", start: 10},
		{path: "c2.mp3", start: 20},
	}
	merged, err := h.transcribeChunks(context.Background(), &stagectx.Shim{}, chunks)
	if err != nil {
		t.Fatalf("transcribeChunks: %v", err)
	}

	if merged.Text != "zero one two" {
		t.Fatalf("expected merged text in chunk order, got %q", merged.Text)
	}
	if merged.Language != "en-US" {
		t.Fatalf("expected first-chunk language to win, got %q", merged.Language)
	}
	if len(merged.Segments) != 3 {
		t.Fatalf("expected 3 merged segments, got %d", len(merged.Segments))
	}
	if merged.Segments[1].Start != 10 || merged.Segments[2].Start != 20 {
		t.Fatalf("expected segment starts offset by chunk start, got %+v", merged.Segments)
	}
	if merged.Duration != 21 {
		t.Fatalf("expected merged duration 21 (chunk2 start 20 + duration 1), got %v", merged.Duration)
	}
}

func TestTranscribeChunksPropagatesFirstChunkLanguage(t *testing.T) {
	var hints []string
	transcriber := &mock.MockTranscriber{
		TranscribeFunc: func(ctx context.Context, audioPath, languageHint string) (*models.Transcript, error) {
			hints = append(hints, languageHint)
			if languageHint == "" {
				return &models.Transcript{Text: "first", Language: "fr-FR", Duration: 1}, nil
			}
			return &models.Transcript{Text: "rest", Duration: 1}, nil
		},
	}
	h := &Handler{Transcriber: transcriber}

	chunks := []audioChunk{{path: "c0.mp3", start: 0}, {path: "c1.mp3", start: 1}, {path: "c2.mp3", start: 2}}
	if _, err := h.transcribeChunks(context.Background(), &stagectx.Shim{}, chunks); err != nil {
		t.Fatalf("transcribeChunks: %v", err)
	}

	if hints[0] != "" {
		t.Fatalf("expected first chunk to get no language hint, got %q", hints[0])
	}
	for _, h := range hints[1:] {
		if h != "fr-FR" {
			t.Fatalf("expected subsequent chunks to receive first chunk's language, got %q", h)
		}
	}
}

func TestTranscribeChunksReturnsErrorFromAnyChunk(t *testing.T) {
	transcriber := &mock.MockTranscriber{
		TranscribeFunc: func(ctx context.Context, audioPath, languageHint string) (*models.Transcript, error) {
			if audioPath == "bad.mp3" {
				return nil, context.DeadlineExceeded
			}
			return &models.Transcript{Text: "ok", Duration: 1}, nil
		},
	}
	h := &Handler{Transcriber: transcriber}

	chunks := []audioChunk{{path: "good.mp3", start: 0}, {path: "bad.mp3", start: 5}}
	if _, err := h.transcribeChunks(context.Background(), &stagectx.Shim{}, chunks); err == nil {
		t.Fatal("expected error propagated from failing chunk")
	}
}
