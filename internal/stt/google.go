package stt

import (
	"context"
	"os"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"sifter/internal/errs"
	"sifter/internal/models"
)

// GoogleTranscriber transcribes via Cloud Speech-to-Text's long-running
// recognize operation, which this pipeline always uses since episode
// chunks run well past the synchronous API's duration limit.
type GoogleTranscriber struct {
	client *speech.Client
}

func NewGoogleTranscriber() (*GoogleTranscriber, error) {
	ctx := context.Background()
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, errs.Unavailable("create speech client", err)
	}
	return &GoogleTranscriber{client: client}, nil
}

func (g *GoogleTranscriber) Transcribe(ctx context.Context, audioPath string, languageHint string) (*models.Transcript, error) {
	content, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, errs.Transport("read audio file", err)
	}
	if languageHint == "" {
		languageHint = "en-US"
	}

	op, err := g.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_MP3,
			SampleRateHertz:            44100,
			AudioChannelCount:          2,
			LanguageCode:               languageHint,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return nil, classifyGoogleErr("start recognize operation", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, classifyGoogleErr("wait for recognize operation", err)
	}

	return toTranscript(resp, languageHint), nil
}

func toTranscript(resp *speechpb.LongRunningRecognizeResponse, language string) *models.Transcript {
	var t models.Transcript
	t.Language = language
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		if t.Text != "" {
			t.Text += " "
		}
		t.Text += alt.Transcript

		seg := segmentFromWords(alt.Words, alt.Transcript)
		t.Segments = append(t.Segments, seg)
		if seg.End > t.Duration {
			t.Duration = seg.End
		}
	}
	return &t
}

func segmentFromWords(words []*speechpb.WordInfo, text string) models.Segment {
	seg := models.Segment{Text: text}
	if len(words) == 0 {
		return seg
	}
	seg.Start = words[0].StartTime.AsDuration().Seconds()
	seg.End = words[len(words)-1].EndTime.AsDuration().Seconds()
	return seg
}

func classifyGoogleErr(message string, err error) error {
	return errs.Transport(message, err)
}
