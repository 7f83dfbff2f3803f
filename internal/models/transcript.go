package models

import "time"

// FinalizedUtterance is what the upstream speech-to-text collaborator hands over once a
// segment of speech is final. Interim hypotheses never take this shape.
type FinalizedUtterance struct {
	MeetingID   string    `json:"meeting_id"`
	Speaker     string    `json:"speaker" binding:"required"` // participant id
	SpeakerName string    `json:"speaker_name,omitempty"`
	Text        string    `json:"text" binding:"required"`
	Sequence    int64     `json:"sequence" binding:"required"`
	Timestamp   time.Time `json:"timestamp"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
}

type TranscriptEntry struct {
	ID          string    `bson:"id" json:"id"`
	MeetingID   string    `bson:"meeting_id" json:"meeting_id"`
	Speaker     string    `bson:"speaker" json:"speaker"`
	SpeakerName string    `bson:"speaker_name,omitempty" json:"speaker_name,omitempty"`
	Text        string    `bson:"text" json:"text"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"` // advisory only
	Sequence    int64     `bson:"sequence" json:"sequence"`   // ordering authority
	DurationMS  int64     `bson:"duration_ms,omitempty" json:"duration_ms,omitempty"`
	Confidence  float64   `bson:"confidence,omitempty" json:"confidence,omitempty"`
}

// Label is the name used when the entry is rendered into a prompt or a document.
func (e TranscriptEntry) Label() string {
	if e.SpeakerName != "" {
		return e.SpeakerName
	}
	return e.Speaker
}
