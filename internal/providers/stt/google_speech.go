package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
	// Speakers enables diarization when above one.
	Speakers int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: 16000,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// Transcribe recognizes a short segment synchronously. Results cover consecutive
// portions of the audio; the best alternative of each is joined in order.
// language example: "en-US", "ko-KR"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, language string) (Transcript, error) {
	if language == "" {
		language = "en-US"
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   g.Encoding,
		SampleRateHertz:            g.SampleRateHz,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	if g.Speakers > 1 {
		cfg.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          2,
			MaxSpeakerCount:          g.Speakers,
		}
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return Transcript{}, err
	}

	var (
		parts []string
		conf  float64
		out   Transcript
	)
	for _, r := range resp.GetResults() {
		var best *speechpb.SpeechRecognitionAlternative
		for _, alt := range r.GetAlternatives() {
			if alt.GetTranscript() != "" && (best == nil || alt.GetConfidence() > best.GetConfidence()) {
				best = alt
			}
		}
		if best == nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(best.GetTranscript()))
		conf += float64(best.GetConfidence())
		out.DurationMS = r.GetResultEndTime().AsDuration().Milliseconds()
	}
	if len(parts) > 0 {
		out.Text = strings.Join(parts, " ")
		out.Confidence = conf / float64(len(parts))
	}
	return out, nil
}
