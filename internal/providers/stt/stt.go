package stt

import "context"

// Transcript is one finalized recognition of an audio segment.
type Transcript struct {
	Text       string
	Confidence float64 // mean over recognized segments, 0..1
	DurationMS int64   // end offset of the last segment, 0 when unknown
}

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (Transcript, error)
	Close() error
}
