package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/providers/stt"
	"github.com/googleapis/gax-go/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Ingester is the live moderation side, implemented by moderation.Manager.
type Ingester interface {
	Ingest(ctx context.Context, u models.FinalizedUtterance) error
	Interim(ctx context.Context, meetingID string, in broadcast.Interim) error
}

// TranscriptWorkerPool consumes the utterance stream with a consumer group. Audio is
// transcribed, interim text goes to observers and final text is ingested in order.
type TranscriptWorkerPool struct {
	Redis      *redis.Client
	Sessions   Ingester
	STT        stt.Provider // optional; audio messages fail without it
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string

	// GapBackoff paces re-ingestion of an utterance that arrived before its predecessor;
	// MaxGapWait bounds the total wait.
	GapBackoff gax.Backoff
	MaxGapWait time.Duration

	HTTPClient *http.Client
}

func (p *TranscriptWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Sessions == nil {
		return errors.New("TranscriptWorkerPool missing dependency: Redis/Sessions must be set")
	}
	p.defaults()

	if err := p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *TranscriptWorkerPool) defaults() {
	if p.Stream == "" {
		p.Stream = StreamUtterances
	}
	if p.Group == "" {
		p.Group = GroupTranscript
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 4
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.GapBackoff.Initial == 0 {
		p.GapBackoff = gax.Backoff{Initial: 50 * time.Millisecond, Max: time.Second, Multiplier: 2}
	}
	if p.MaxGapWait <= 0 {
		p.MaxGapWait = 5 * time.Second
	}
	if p.HTTPClient == nil {
		p.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
}

func (p *TranscriptWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("xreadgroup failed")
			_ = gax.Sleep(ctx, 500*time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				if err := p.handleMsg(ctx, msg); err != nil {
					p.Logger.WithError(err).WithField("redis_id", msg.ID).Warn("utterance message dropped")
				}
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func normalizeLanguage(v string) string {
	v = strings.TrimSpace(v)
	switch v {
	case "ko", "ko-KR":
		return "ko-KR"
	case "en", "en-US", "":
		return "en-US"
	default:
		return v
	}
}

func (p *TranscriptWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) error {
	m, err := parseMessage(msg.Values)
	if err != nil {
		return err
	}
	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"meeting_id": m.MeetingID,
		"speaker":    m.Speaker,
	})

	text, durationMS, confidence := m.Text, m.DurationMS, 0.0
	if text == "" {
		audio, err := p.fetchAudio(ctx, m)
		if err != nil {
			return err
		}
		if p.STT == nil {
			return errors.New("audio received but no speech-to-text provider is configured")
		}
		tr, err := p.STT.Transcribe(ctx, audio, normalizeLanguage(m.Language))
		if err != nil {
			return fmt.Errorf("stt: %w", err)
		}
		if tr.Text == "" {
			log.Debug("no speech recognized")
			return nil
		}
		text, confidence = tr.Text, tr.Confidence
		if durationMS == 0 {
			durationMS = tr.DurationMS
		}
	}

	if !m.IsFinal {
		return p.Sessions.Interim(ctx, m.MeetingID, broadcast.Interim{Speaker: m.Speaker, SpeakerName: m.SpeakerName, Text: text})
	}

	seq := m.Sequence
	if seq == 0 {
		if seq, err = p.Redis.Incr(ctx, sequenceKey(m.MeetingID)).Result(); err != nil {
			return fmt.Errorf("allocate sequence: %w", err)
		}
	}
	u := models.FinalizedUtterance{
		MeetingID:   m.MeetingID,
		Speaker:     m.Speaker,
		SpeakerName: m.SpeakerName,
		Text:        text,
		Sequence:    seq,
		DurationMS:  durationMS,
		Confidence:  confidence,
	}
	if m.Timestamp > 0 {
		u.Timestamp = time.UnixMilli(m.Timestamp).UTC()
	}
	return p.ingest(ctx, u, log)
}

// ingest retries an early arrival until its predecessor lands. Consumers race, so
// utterance n+1 may be read before n; a gap that persists past MaxGapWait is final.
func (p *TranscriptWorkerPool) ingest(ctx context.Context, u models.FinalizedUtterance, log *logrus.Entry) error {
	bo := p.GapBackoff
	deadline := time.Now().Add(p.MaxGapWait)
	for {
		err := p.Sessions.Ingest(ctx, u)
		var gap *meeting.SequenceGapError
		if !errors.As(err, &gap) || gap.Got <= gap.Last || time.Now().After(deadline) {
			return err
		}
		log.WithFields(logrus.Fields{"sequence": u.Sequence, "last_accepted": gap.Last}).Debug("utterance early, waiting for predecessor")
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return err
		}
	}
}

func (p *TranscriptWorkerPool) fetchAudio(ctx context.Context, m Message) ([]byte, error) {
	if b64 := m.AudioBase64; b64 != "" {
		raw := b64
		if i := strings.Index(raw, ","); i >= 0 {
			raw = raw[i+1:] // strip data:...;base64,
		}
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid audio_base64: %w", err)
		}
		return decoded, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.AudioURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio_url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch audio_url: status %d", resp.StatusCode)
	}

	const maxBytes = 10 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty audio")
	}
	return body, nil
}
