package tts

import (
	"context"
	"os"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"sifter/internal/audio"
	"sifter/internal/errs"
)

// GoogleSynthesizer renders narrator text via Cloud Text-to-Speech.
type GoogleSynthesizer struct {
	client *texttospeech.Client
}

func NewGoogleSynthesizer() (*GoogleSynthesizer, error) {
	ctx := context.Background()
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, errs.Unavailable("create texttospeech client", err)
	}
	return &GoogleSynthesizer{client: client}, nil
}

func (g *GoogleSynthesizer) Synthesize(ctx context.Context, text, voice, outputPath string) (float64, error) {
	if voice == "" {
		voice = "en-US-Neural2-D"
	}
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   texttospeechpb.AudioEncoding_MP3,
			SampleRateHertz: 44100,
		},
	})
	if err != nil {
		return 0, errs.Transport("synthesize speech", err)
	}

	if err := os.WriteFile(outputPath, resp.AudioContent, 0o644); err != nil {
		return 0, errs.Transport("write synthesized audio", err)
	}

	duration, err := audio.Probe(ctx, outputPath)
	if err != nil {
		return 0, errs.Parse("probe synthesized audio", err)
	}
	return duration, nil
}
