package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StreamUtterances = "meeting:utterances"
	GroupTranscript  = "transcript-workers"
)

// Message is one entry of the utterance stream. It carries either text or audio; audio
// is transcribed before ingestion. A zero Sequence on a final message asks the worker
// to allocate the next one.
type Message struct {
	MeetingID   string `json:"meeting_id"`
	Speaker     string `json:"speaker"`
	SpeakerName string `json:"speaker_name,omitempty"`
	Sequence    int64  `json:"sequence,omitempty"`
	IsFinal     bool   `json:"is_final"`
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioURL    string `json:"audio_url,omitempty"`
	Language    string `json:"language,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Timestamp   int64  `json:"ts_unix_ms,omitempty"`
}

func (m Message) Validate() error {
	switch {
	case m.MeetingID == "" || m.Speaker == "":
		return errors.New("meeting_id and speaker are required")
	case m.Text == "" && m.AudioBase64 == "" && m.AudioURL == "":
		return errors.New("text, audio_base64 or audio_url required")
	case m.Sequence < 0:
		return errors.New("sequence must not be negative")
	}
	return nil
}

func (m Message) values() map[string]any {
	v := map[string]any{
		"meeting_id": m.MeetingID,
		"speaker":    m.Speaker,
		"is_final":   strconv.FormatBool(m.IsFinal),
		"ts_unix_ms": strconv.FormatInt(m.Timestamp, 10),
	}
	set := func(k, s string) {
		if s != "" {
			v[k] = s
		}
	}
	set("speaker_name", m.SpeakerName)
	set("text", m.Text)
	set("audio_base64", m.AudioBase64)
	set("audio_url", m.AudioURL)
	set("language", m.Language)
	if m.Sequence > 0 {
		v["sequence"] = strconv.FormatInt(m.Sequence, 10)
	}
	if m.DurationMS > 0 {
		v["duration_ms"] = strconv.FormatInt(m.DurationMS, 10)
	}
	return v
}

func parseMessage(values map[string]any) (Message, error) {
	getStr := func(k string) string {
		v, ok := values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}
	getInt := func(k string) (int64, error) {
		s := getStr(k)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", k, err)
		}
		return n, nil
	}

	m := Message{
		MeetingID:   getStr("meeting_id"),
		Speaker:     getStr("speaker"),
		SpeakerName: getStr("speaker_name"),
		Text:        getStr("text"),
		AudioBase64: getStr("audio_base64"),
		AudioURL:    getStr("audio_url"),
		Language:    getStr("language"),
	}
	m.IsFinal, _ = strconv.ParseBool(getStr("is_final"))
	var err error
	if m.Sequence, err = getInt("sequence"); err != nil {
		return m, err
	}
	if m.DurationMS, err = getInt("duration_ms"); err != nil {
		return m, err
	}
	if m.Timestamp, err = getInt("ts_unix_ms"); err != nil {
		return m, err
	}
	return m, m.Validate()
}

// Enqueue appends m to the utterance stream.
func Enqueue(ctx context.Context, rdb *redis.Client, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UTC().UnixMilli()
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{Stream: StreamUtterances, Values: m.values()}).Err()
}

func sequenceKey(meetingID string) string { return "meeting:" + meetingID + ":seq" }
