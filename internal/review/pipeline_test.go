package review

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/providers/llm"
	"github.com/GradientHair/GradientHair/internal/structured"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeGateway struct {
	mu      sync.Mutex
	replies []string
	reqs    []llm.Request
}

func (g *fakeGateway) Execute(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	i := min(len(g.reqs), len(g.replies)-1)
	g.reqs = append(g.reqs, req)
	return g.replies[i], nil
}

func (g *fakeGateway) Close() error { return nil }

func frozenSnapshot(t *testing.T) *meeting.Snapshot {
	t.Helper()
	l, _ := test.NewNullLogger()
	s := meeting.NewStore(models.Meeting{
		MeetingID:    "m-1",
		Title:        "Launch review",
		Agenda:       "Go / no-go for v2",
		Status:       models.MeetingPreparing,
		Participants: []models.Participant{{ID: "a", Name: "Ana"}, {ID: "b", Name: "Ben"}},
		Principles:   []models.Principle{{ID: "p", Name: "Data over opinions", Content: "Back claims with numbers."}},
	}, meeting.WithLogger(logrus.NewEntry(l)))
	t.Cleanup(s.Close)
	ctx := context.Background()
	for i, line := range []string{"Crash rate is 0.1%.", "Then we ship Friday, Ben owns the rollout."} {
		if err := s.Append(ctx, models.TranscriptEntry{Sequence: int64(i + 1), Speaker: []string{"a", "b"}[i], Text: line}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordIntervention(ctx, models.Intervention{ID: "iv", Kind: models.KindTopicDrift, Sequence: 1, Message: "stay on v2"}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Freeze(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func newPipeline(g llm.Gateway) *Pipeline {
	l, _ := test.NewNullLogger()
	r := structured.NewRunner(g,
		structured.WithBackoff(gax.Backoff{Initial: time.Microsecond, Max: time.Microsecond, Multiplier: 1}),
		structured.WithLogger(logrus.NewEntry(l)))
	return NewPipeline(r, Config{MaxAttempts: 2}, logrus.NewEntry(l))
}

const okReview = `{
  "summary": "The team agreed to ship v2 on Friday.",
  "decisions": ["Ship v2 on Friday"],
  "action_items": [{"item": "Run the rollout", "owner": "Ben", "due": "Friday"}],
  "risks": [],
  "strengths": ["Used crash data"],
  "recommendations": [],
  "overall_score": 82,
  "principles": [{"name": "Data over opinions", "score": 90, "evidence": ["Crash rate is 0.1%."], "notes": ""}]
}`

func TestSummarize(t *testing.T) {
	g := &fakeGateway{replies: []string{okReview}}
	snap := frozenSnapshot(t)

	rep, err := newPipeline(g).Summarize(context.Background(), snap)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if rep.MeetingID != "m-1" || rep.Attempts != 1 || rep.OverallScore != 82 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.ActionItems) != 1 || rep.ActionItems[0].Owner != "Ben" {
		t.Fatalf("action items = %+v", rep.ActionItems)
	}
	if len(rep.PrincipleAssessments) != 1 || rep.PrincipleAssessments[0].Score != 90 {
		t.Fatalf("assessments = %+v", rep.PrincipleAssessments)
	}
	req := g.reqs[0]
	if req.Tier != llm.TierReasoning {
		t.Fatalf("tier = %s", req.Tier)
	}
	for _, want := range []string{"Crash rate is 0.1%.", "Back claims with numbers.", "stay on v2"} {
		if !strings.Contains(req.Prompt, want) {
			t.Fatalf("prompt lacks %q", want)
		}
	}
}

func TestSummarizeFailureLeavesSnapshotAlone(t *testing.T) {
	g := &fakeGateway{replies: []string{`{"summary": ""}`}}
	snap := frozenSnapshot(t)
	before := len(snap.Transcript)

	rep, err := newPipeline(g).Summarize(context.Background(), snap)
	if err == nil || rep != nil {
		t.Fatalf("rep=%v err=%v", rep, err)
	}
	if !errors.Is(err, structured.ErrExhausted) {
		t.Fatalf("err = %v", err)
	}
	if len(g.reqs) != 2 {
		t.Fatalf("attempts = %d", len(g.reqs))
	}
	if snap.Status() != models.MeetingCompleted || len(snap.Transcript) != before {
		t.Fatal("snapshot changed")
	}
}

func TestSummarizeIgnoresCancellation(t *testing.T) {
	g := &fakeGateway{replies: []string{okReview}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newPipeline(g).Summarize(ctx, frozenSnapshot(t)); err != nil {
		t.Fatalf("cancelled caller stopped the review: %v", err)
	}
}

func TestSummarizeRequiresFrozenSnapshot(t *testing.T) {
	l, _ := test.NewNullLogger()
	s := meeting.NewStore(models.Meeting{MeetingID: "m-2", Status: models.MeetingPreparing}, meeting.WithLogger(logrus.NewEntry(l)))
	defer s.Close()

	g := &fakeGateway{replies: []string{okReview}}
	if _, err := newPipeline(g).Summarize(context.Background(), s.Snapshot()); !errors.Is(err, ErrNotFrozen) {
		t.Fatalf("err = %v", err)
	}
	if len(g.reqs) != 0 {
		t.Fatal("model called for a live meeting")
	}
}
