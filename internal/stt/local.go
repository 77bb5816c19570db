package stt

import (
	"context"
	"encoding/json"
	"os/exec"

	"sifter/internal/config"
	"sifter/internal/errs"
	"sifter/internal/models"
)

// LocalTranscriber shells out to a local whisper-compatible binary that
// writes a JSON transcript (segments with start/end/text) to stdout. Used
// in development and in self-hosted deployments that don't want a Cloud
// Speech dependency.
type LocalTranscriber struct {
	binaryPath string
	model      string
}

func NewLocalTranscriber() *LocalTranscriber {
	return &LocalTranscriber{binaryPath: config.STTLocalBinaryPath, model: config.STTModel}
}

type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (l *LocalTranscriber) Transcribe(ctx context.Context, audioPath string, languageHint string) (*models.Transcript, error) {
	args := []string{"--model", l.model, "--output-format", "json", "--output-stdout", audioPath}
	if languageHint != "" {
		args = append(args, "--language", languageHint)
	}

	cmd := exec.CommandContext(ctx, l.binaryPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, errs.Transport("run local whisper binary", err)
	}

	var w whisperOutput
	if err := json.Unmarshal(out, &w); err != nil {
		return nil, errs.Parse("parse local whisper output", err)
	}

	t := &models.Transcript{Text: w.Text, Language: w.Language}
	for _, s := range w.Segments {
		t.Segments = append(t.Segments, models.Segment{Start: s.Start, End: s.End, Text: s.Text})
		if s.End > t.Duration {
			t.Duration = s.End
		}
	}
	return t, nil
}
