package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSliceClipRejectsNonPositiveDuration(t *testing.T) {
	err := SliceClip(context.Background(), "src.mp3", 10, 10, "dst.mp3")
	if err == nil {
		t.Fatal("expected error for zero-length clip")
	}
	err = SliceClip(context.Background(), "src.mp3", 10, 5, "dst.mp3")
	if err == nil {
		t.Fatal("expected error for negative-length clip")
	}
}

func TestConcatenateRejectsEmptyPartsList(t *testing.T) {
	err := Concatenate(context.Background(), nil, "dst.mp3")
	if err == nil {
		t.Fatal("expected error for empty parts list")
	}
}

func TestConcatenateCopiesSinglePartUnchanged(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.mp3")
	if err := os.WriteFile(srcPath, []byte("fake mp3 bytes"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	dstPath := filepath.Join(dir, "dst.mp3")

	if err := Concatenate(context.Background(), []string{srcPath}, dstPath); err != nil {
		t.Fatalf("Concatenate: %v", err)
	}

	got, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("read dst: %v", err)
	}
	if string(got) != "fake mp3 bytes" {
		t.Fatalf("expected single part copied unchanged, got %q", got)
	}
}

func TestMixTracksRejectsEmptyTrackList(t *testing.T) {
	if err := MixTracks(context.Background(), nil, "dst.mp3"); err == nil {
		t.Fatal("expected error for empty track list")
	}
}

func TestFormatSecondsUsesThreeDecimalPlaces(t *testing.T) {
	if got := formatSeconds(12.5); got != "12.500" {
		t.Fatalf("expected 12.500, got %q", got)
	}
	if got := formatSeconds(0); got != "0.000" {
		t.Fatalf("expected 0.000, got %q", got)
	}
}
