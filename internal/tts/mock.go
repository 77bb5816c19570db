package tts

import (
	"context"
	"fmt"
	"os/exec"

	"sifter/internal/config"
	"sifter/internal/errs"
)

// MockSynthesizer estimates spoken duration from word count at
// wordsPerMinute and renders silence of that duration, so the rest of the
// pipeline (probing, slicing, concatenation) has a real file to operate on
// without calling out to a paid TTS provider.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voice, outputPath string) (float64, error) {
	seconds := estimateSeconds(text)
	if seconds <= 0 {
		seconds = 1
	}

	cmd := exec.CommandContext(ctx, config.FFmpegPath,
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", fmt.Sprintf("%.3f", seconds),
		"-b:a", "128k",
		"-y", outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return 0, errs.Transport(fmt.Sprintf("render mock narration: %s", string(out)), err)
	}
	return seconds, nil
}
