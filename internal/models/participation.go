package models

type SpeakerStats struct {
	Speaker    string  `json:"speaker"`
	Utterances int     `json:"utterances"`
	SpeakingMS int64   `json:"speaking_ms"`
	Share      float64 `json:"share"` // of total speaking time, 0..1
}

// ParticipationStats is derived from the transcript log and carries no state of its own.
type ParticipationStats struct {
	Speakers        map[string]SpeakerStats `json:"speakers"`
	TotalUtterances int                     `json:"total_utterances"`
	TotalSpeakingMS int64                   `json:"total_speaking_ms"`
	LastSequence    int64                   `json:"last_sequence"`
}
