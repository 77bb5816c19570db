// Package mock is a configurable test double for stt.Transcriber.
package mock

import (
	"context"

	"sifter/internal/models"
)

type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audioPath, languageHint string) (*models.Transcript, error)
	Calls          []string
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audioPath string, languageHint string) (*models.Transcript, error) {
	m.Calls = append(m.Calls, audioPath)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audioPath, languageHint)
	}
	return &models.Transcript{Text: "mock transcript", Language: "en-US", Duration: 60}, nil
}
