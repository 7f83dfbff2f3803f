package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/providers/stt"
	"github.com/googleapis/gax-go/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
)

// orderedIngester accepts only last+1, like the meeting store.
type orderedIngester struct {
	mu       sync.Mutex
	last     int64
	accepted []models.FinalizedUtterance
	interims []broadcast.Interim
}

func (f *orderedIngester) Ingest(_ context.Context, u models.FinalizedUtterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.Sequence != f.last+1 {
		return &meeting.SequenceGapError{Last: f.last, Got: u.Sequence}
	}
	f.last = u.Sequence
	f.accepted = append(f.accepted, u)
	return nil
}

func (f *orderedIngester) Interim(_ context.Context, _ string, in broadcast.Interim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interims = append(f.interims, in)
	return nil
}

type fakeSTT struct {
	got []byte
}

func (s *fakeSTT) Transcribe(_ context.Context, audio []byte, language string) (stt.Transcript, error) {
	s.got = audio
	if language != "ko-KR" {
		return stt.Transcript{}, errors.New("unexpected language " + language)
	}
	return stt.Transcript{Text: "안녕하세요", Confidence: 0.9, DurationMS: 1200}, nil
}

func (s *fakeSTT) Close() error { return nil }

func newPool(in Ingester, s stt.Provider) *TranscriptWorkerPool {
	l, _ := test.NewNullLogger()
	p := &TranscriptWorkerPool{
		Sessions:   in,
		STT:        s,
		Logger:     l,
		GapBackoff: gax.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2},
		MaxGapWait: 2 * time.Second,
	}
	p.defaults()
	return p
}

func xmsg(id string, m Message) redis.XMessage {
	return redis.XMessage{ID: id, Values: m.values()}
}

func TestEarlyUtteranceWaitsForPredecessor(t *testing.T) {
	in := &orderedIngester{}
	p := newPool(in, nil)
	ctx := context.Background()

	second := make(chan error, 1)
	go func() {
		second <- p.handleMsg(ctx, xmsg("2-0", Message{MeetingID: "m", Speaker: "b", Text: "second", Sequence: 2, IsFinal: true}))
	}()
	time.Sleep(10 * time.Millisecond)
	if err := p.handleMsg(ctx, xmsg("1-0", Message{MeetingID: "m", Speaker: "a", Text: "first", Sequence: 1, IsFinal: true})); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(in.accepted) != 2 || in.accepted[0].Text != "first" || in.accepted[1].Text != "second" {
		t.Fatalf("accepted = %+v", in.accepted)
	}
}

func TestPersistentGapGivesUp(t *testing.T) {
	in := &orderedIngester{}
	p := newPool(in, nil)
	p.MaxGapWait = 20 * time.Millisecond

	err := p.handleMsg(context.Background(), xmsg("1-0", Message{MeetingID: "m", Speaker: "a", Text: "lost", Sequence: 5, IsFinal: true}))
	if !errors.Is(err, meeting.ErrSequenceGap) {
		t.Fatalf("err = %v, want gap", err)
	}
}

func TestReplayIsNotRetried(t *testing.T) {
	in := &orderedIngester{last: 3}
	p := newPool(in, nil)
	p.MaxGapWait = time.Hour

	done := make(chan error, 1)
	go func() {
		done <- p.handleMsg(context.Background(), xmsg("1-0", Message{MeetingID: "m", Speaker: "a", Text: "again", Sequence: 2, IsFinal: true}))
	}()
	select {
	case err := <-done:
		if !errors.Is(err, meeting.ErrSequenceGap) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("replayed utterance retried")
	}
}

func TestAudioIsTranscribed(t *testing.T) {
	in, s := &orderedIngester{}, &fakeSTT{}
	p := newPool(in, s)
	audio := []byte{1, 2, 3, 4}

	err := p.handleMsg(context.Background(), xmsg("1-0", Message{
		MeetingID:   "m",
		Speaker:     "a",
		Sequence:    1,
		IsFinal:     true,
		Language:    "ko",
		AudioBase64: "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(audio),
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if string(s.got) != string(audio) {
		t.Fatalf("stt got %v", s.got)
	}
	u := in.accepted[0]
	if u.Text != "안녕하세요" || u.DurationMS != 1200 || u.Confidence != 0.9 {
		t.Fatalf("utterance = %+v", u)
	}
}

func TestInterimBypassesTranscript(t *testing.T) {
	in := &orderedIngester{}
	p := newPool(in, nil)

	if err := p.handleMsg(context.Background(), xmsg("1-0", Message{MeetingID: "m", Speaker: "a", SpeakerName: "Ana", Text: "so I think"})); err != nil {
		t.Fatal(err)
	}
	if len(in.accepted) != 0 || len(in.interims) != 1 || in.interims[0].SpeakerName != "Ana" {
		t.Fatalf("accepted=%d interims=%+v", len(in.accepted), in.interims)
	}
}

func TestMalformedMessages(t *testing.T) {
	p := newPool(&orderedIngester{}, nil)
	cases := map[string]map[string]any{
		"missing speaker": {"meeting_id": "m", "text": "hi"},
		"no payload":      {"meeting_id": "m", "speaker": "a"},
		"bad sequence":    {"meeting_id": "m", "speaker": "a", "text": "hi", "sequence": "x"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if err := p.handleMsg(context.Background(), redis.XMessage{ID: "1-0", Values: values}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
	if err := p.handleMsg(context.Background(), xmsg("1-0", Message{MeetingID: "m", Speaker: "a", AudioBase64: "AAAA", IsFinal: true, Sequence: 1})); err == nil {
		t.Fatal("audio without stt accepted")
	}
}
