// Package mock is a configurable test double for tts.Synthesizer, for
// stage unit tests that shouldn't shell out to ffmpeg at all.
package mock

import "context"

type MockSynthesizer struct {
	SynthesizeFunc func(ctx context.Context, text, voice, outputPath string) (float64, error)
	Calls          []string
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voice, outputPath string) (float64, error) {
	m.Calls = append(m.Calls, text)
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text, voice, outputPath)
	}
	return 10, nil
}
