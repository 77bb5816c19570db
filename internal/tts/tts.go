// Package tts is the Text-to-Speech Adapter: Google Cloud Text-to-Speech
// for production narration, and a deterministic mock backend (used in
// development and tests) that estimates spoken duration from word count
// rather than calling out to a provider.
package tts

import "context"

// Synthesizer renders text to an MP3 file at outputPath and reports the
// resulting duration in seconds.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, outputPath string) (durationSeconds float64, err error)
}

// New selects a Synthesizer per config.TTSProvider ("google" or "mock").
func New(provider string) (Synthesizer, error) {
	switch provider {
	case "mock":
		return NewMockSynthesizer(), nil
	default:
		return NewGoogleSynthesizer()
	}
}

// wordsPerMinute is the rate used to estimate spoken duration when a
// backend can't be measured directly (the mock synthesizer).
const wordsPerMinute = 150

func estimateSeconds(text string) float64 {
	words := wordCount(text)
	if words == 0 {
		return 0
	}
	minutes := float64(words) / wordsPerMinute
	return minutes * 60
}

func wordCount(s string) int {
	count := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}
