// Package stt is the Speech-to-Text Adapter: a uniform interface over a
// managed cloud transcription backend (Google Cloud Speech) and a local
// exec-based backend (a whisper binary), selected by config.STTMode so
// the Transcription stage never branches on provider.
package stt

import (
	"context"

	"sifter/internal/models"
)

// Transcriber turns a chunk of audio on disk into a Transcript. Segment
// timestamps are relative to the start of audioPath, not the original
// episode — the Transcription stage offsets them by the chunk's start time
// before merging.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, languageHint string) (*models.Transcript, error)
}

// New selects a Transcriber per config.STTMode ("api" or "local").
func New(mode string) (Transcriber, error) {
	switch mode {
	case "local":
		return NewLocalTranscriber(), nil
	default:
		return NewGoogleTranscriber()
	}
}
