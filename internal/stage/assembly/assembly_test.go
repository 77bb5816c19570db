package assembly

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"sifter/internal/db/dbtest"
	"sifter/internal/llm/mock"
	"sifter/internal/models"
	"sifter/internal/stagectx"
	ttsmock "sifter/internal/tts/mock"
)

func TestHandleRejectsDigestWithNoClips(t *testing.T) {
	store := dbtest.New()
	store.Digests["d1"] = &models.Digest{ID: "d1", Status: models.DigestStatusPending}
	h := &Handler{Store: store, LLM: &mock.MockClient{}}

	err := h.Handle(context.Background(), &stagectx.Shim{JobID: "d1", Payload: Payload{DigestID: "d1"}})
	if err == nil {
		t.Fatal("expected error for digest with no clips")
	}
}

func TestHandleRejectsMissingDigest(t *testing.T) {
	store := dbtest.New()
	h := &Handler{Store: store, LLM: &mock.MockClient{}}

	err := h.Handle(context.Background(), &stagectx.Shim{JobID: "missing", Payload: Payload{DigestID: "missing"}})
	if err == nil {
		t.Fatal("expected error for missing digest")
	}
}

func TestGenerateScriptPadsShortTransitionList(t *testing.T) {
	llmClient := &mock.MockClient{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return `{"intro":"hi","transitions":["only one"],"outro":"bye"}`, nil
		},
	}
	h := &Handler{LLM: llmClient}

	clips := []*models.ClipWithEpisode{{}, {}, {}}
	script, err := h.generateScript(context.Background(), clips)
	if err != nil {
		t.Fatalf("generateScript: %v", err)
	}
	if len(script.Transitions) != len(clips)-1 {
		t.Fatalf("expected %d transitions, got %d", len(clips)-1, len(script.Transitions))
	}
	if script.Transitions[0] != "only one" {
		t.Fatalf("expected first transition preserved, got %q", script.Transitions[0])
	}
}

func TestPadOrTrimTruncatesLongerList(t *testing.T) {
	got := padOrTrim([]string{"a", "b", "c"}, 1)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected [a], got %v", got)
	}
}

func TestPadOrTrimExpandsShorterList(t *testing.T) {
	got := padOrTrim([]string{"a"}, 3)
	if len(got) != 3 || got[0] != "a" || got[1] != "" || got[2] != "" {
		t.Fatalf("expected [a, \"\", \"\"], got %v", got)
	}
}

func TestParseNarratorScriptRoundTrips(t *testing.T) {
	raw := `{"intro":"hi","transitions":["t0","t1"],"outro":"bye"}`
	script, err := parseNarratorScript(raw)
	if err != nil {
		t.Fatalf("parseNarratorScript: %v", err)
	}
	if script.Intro != "hi" || len(script.Transitions) != 2 || script.Outro != "bye" {
		t.Fatalf("unexpected script: %+v", script)
	}
}

func TestPublishedDurationUsesFileSizeAt128kbps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digest.mp3")
	// 16384 bytes/sec at 128kbps (128*1024/8), so 32768 bytes == 2 seconds.
	if err := os.WriteFile(path, make([]byte, 32768), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := publishedDuration(path)
	if err != nil {
		t.Fatalf("publishedDuration: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected duration 2, got %v", got)
	}
}

func TestResolveOrSynthesizeReusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	existingPath := filepath.Join(dir, "existing.mp3")
	if err := os.WriteFile(existingPath, []byte("narration"), 0o644); err != nil {
		t.Fatalf("write existing: %v", err)
	}

	h := &Handler{TTS: &ttsmock.MockSynthesizer{
		SynthesizeFunc: func(ctx context.Context, text, voice, outputPath string) (float64, error) {
			t.Fatal("Synthesize should not be called when reusing an existing tts file")
			return 0, nil
		},
	}}
	path, err := h.resolveOrSynthesize(context.Background(), "some text", existingPath, filepath.Join(dir, "new.mp3"))
	if err != nil {
		t.Fatalf("resolveOrSynthesize: %v", err)
	}
	if path != existingPath {
		t.Fatalf("expected existing path reused, got %q", path)
	}
}

func TestResolveOrSynthesizeRejectsMissingExistingFile(t *testing.T) {
	h := &Handler{}
	_, err := h.resolveOrSynthesize(context.Background(), "some text", "/nonexistent/path.mp3", "/tmp/new.mp3")
	if err == nil {
		t.Fatal("expected error for missing existing tts file")
	}
}
