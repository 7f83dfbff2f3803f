package arbiter

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newStore(t *testing.T, p Policy, n int) *meeting.Store {
	t.Helper()
	l, _ := test.NewNullLogger()
	s := meeting.NewStore(models.Meeting{MeetingID: "m-1", Agenda: "budget", Status: models.MeetingPreparing},
		meeting.WithCooldowns(p.Cooldowns), meeting.WithLogger(logrus.NewEntry(l)))
	t.Cleanup(s.Close)
	for i := 1; i <= n; i++ {
		if err := s.Append(context.Background(), models.TranscriptEntry{Sequence: int64(i), Speaker: "alice", Text: "words"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return s
}

func newArbiter(p Policy) *Arbiter {
	l, _ := test.NewNullLogger()
	return New(p, logrus.NewEntry(l))
}

func cand(kind models.InterventionKind, seq int64, msg string) models.InterventionCandidate {
	return models.InterventionCandidate{Kind: kind, Sequence: seq, Message: msg, Confidence: 0.9, Agent: string(kind)}
}

func TestResolvePicksHighestPriority(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 3)
	a := newArbiter(p)

	iv, err := a.Resolve(context.Background(), []models.InterventionCandidate{
		cand(models.KindParticipationImbalance, 3, "let Bob speak"),
		cand(models.KindTopicDrift, 3, "back to the budget"),
		cand(models.KindPrincipleViolation, 3, "remember: no interruptions"),
	}, s)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if iv == nil || iv.Kind != models.KindPrincipleViolation {
		t.Fatalf("emitted %+v", iv)
	}
	if got := s.Snapshot().Interventions; len(got) != 1 || got[0].ID != iv.ID {
		t.Fatalf("history = %+v", got)
	}
	if !strings.Contains(iv.TriggerContext, "source: #3") || iv.MeetingID != "m-1" || iv.ID == "" {
		t.Fatalf("intervention not materialized: %+v", iv)
	}
}

func TestResolveTiesKeepProposingOrder(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 1)
	iv, err := newArbiter(p).Resolve(context.Background(), []models.InterventionCandidate{
		cand(models.KindTopicDrift, 1, "first"),
		cand(models.KindTopicDrift, 1, "second"),
	}, s)
	if err != nil || iv == nil || iv.Message != "first" {
		t.Fatalf("iv=%+v err=%v", iv, err)
	}
}

func TestThreeConsecutiveDriftsEmitOnce(t *testing.T) {
	p := DefaultPolicy()
	p.Cooldowns[models.KindTopicDrift] = 5
	s := newStore(t, p, 0)
	a := newArbiter(p)
	ctx := context.Background()

	emitted := 0
	for seq := int64(1); seq <= 3; seq++ {
		if err := s.Append(ctx, models.TranscriptEntry{Sequence: seq, Speaker: "bob", Text: "the match last night"}); err != nil {
			t.Fatalf("append: %v", err)
		}
		iv, err := a.Resolve(ctx, []models.InterventionCandidate{
			cand(models.KindTopicDrift, seq, "let's get back to the budget (round "+string(rune('0'+seq))+")"),
		}, s)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if iv != nil {
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("emitted %d TOPIC_DRIFT interventions, want 1", emitted)
	}
}

func TestNothingSurvivesIsNotAnError(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 2)
	a := newArbiter(p)

	iv, err := a.Resolve(context.Background(), nil, s)
	if iv != nil || err != nil {
		t.Fatalf("iv=%v err=%v", iv, err)
	}
	iv, err = a.Resolve(context.Background(), []models.InterventionCandidate{cand(models.KindTopicDrift, 2, "   ")}, s)
	if iv != nil || err != nil {
		t.Fatalf("blank message: iv=%v err=%v", iv, err)
	}
}

func TestDuplicateMessageSuppressed(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 10)
	a := newArbiter(p)
	ctx := context.Background()

	if iv, _ := a.Resolve(ctx, []models.InterventionCandidate{cand(models.KindTopicDrift, 2, "Back to the  budget")}, s); iv == nil {
		t.Fatal("first not emitted")
	}
	iv, err := a.Resolve(ctx, []models.InterventionCandidate{cand(models.KindPrincipleViolation, 4, "back to the budget")}, s)
	if err != nil || iv != nil {
		t.Fatalf("duplicate emitted: %+v (%v)", iv, err)
	}
	if iv, _ := a.Resolve(ctx, []models.InterventionCandidate{cand(models.KindPrincipleViolation, 10, "back to the budget")}, s); iv == nil {
		t.Fatal("same words after the longest window should pass")
	}
}

func TestMessageCapped(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 1)
	long := strings.Repeat("가나다 ", 100)
	iv, err := newArbiter(p).Resolve(context.Background(), []models.InterventionCandidate{cand(models.KindTopicDrift, 1, long)}, s)
	if err != nil || iv == nil {
		t.Fatalf("iv=%v err=%v", iv, err)
	}
	if n := utf8.RuneCountInString(iv.Message); n > 220 {
		t.Fatalf("message has %d runes", n)
	}
	if !strings.HasSuffix(iv.Message, "…") {
		t.Fatalf("truncated message lacks ellipsis: %q", iv.Message)
	}
}

type racingRecorder struct {
	*meeting.Store
	reject int
}

func (r *racingRecorder) RecordIntervention(ctx context.Context, iv models.Intervention) error {
	if r.reject > 0 {
		r.reject--
		return meeting.ErrCooldownActive
	}
	return r.Store.RecordIntervention(ctx, iv)
}

func TestResolveFallsThroughOnCooldownRace(t *testing.T) {
	p := DefaultPolicy()
	rec := &racingRecorder{Store: newStore(t, p, 2), reject: 1}
	iv, err := newArbiter(p).Resolve(context.Background(), []models.InterventionCandidate{
		cand(models.KindTopicDrift, 2, "drift"),
		cand(models.KindPrincipleViolation, 2, "principle"),
	}, rec)
	if err != nil || iv == nil || iv.Kind != models.KindTopicDrift {
		t.Fatalf("iv=%+v err=%v", iv, err)
	}
}

func TestResolvePropagatesStoreFailure(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 2)
	if _, err := s.Freeze(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := newArbiter(p).Resolve(context.Background(), []models.InterventionCandidate{cand(models.KindTopicDrift, 2, "x")}, s)
	if err == nil {
		t.Fatal("expected error from a frozen store")
	}
}

func TestCooldownHoldsForRandomRounds(t *testing.T) {
	p := DefaultPolicy()
	kinds := p.Priority
	rng := rand.New(rand.NewSource(42))
	s := newStore(t, p, 0)
	a := newArbiter(p)
	ctx := context.Background()

	for seq := int64(1); seq <= 300; seq++ {
		if err := s.Append(ctx, models.TranscriptEntry{Sequence: seq, Speaker: "x", Text: "y"}); err != nil {
			t.Fatal(err)
		}
		var cs []models.InterventionCandidate
		for _, k := range kinds {
			if rng.Intn(3) == 0 {
				cs = append(cs, cand(k, seq, string(k)+" at "+string(rune('a'+rng.Intn(26)))))
			}
		}
		if _, err := a.Resolve(ctx, cs, s); err != nil {
			t.Fatal(err)
		}
	}

	last := map[models.InterventionKind]int64{}
	prevSeq := int64(0)
	for _, iv := range s.Snapshot().Interventions {
		if iv.Sequence <= prevSeq {
			t.Fatalf("out of order: %d after %d", iv.Sequence, prevSeq)
		}
		prevSeq = iv.Sequence
		if l, ok := last[iv.Kind]; ok && iv.Sequence-l < p.Cooldowns[iv.Kind] {
			t.Fatalf("%s emitted at %d and %d, window %d", iv.Kind, l, iv.Sequence, p.Cooldowns[iv.Kind])
		}
		last[iv.Kind] = iv.Sequence
	}
	if len(s.Snapshot().Interventions) == 0 {
		t.Fatal("no interventions at all")
	}
}

type screenFunc func(context.Context, models.InterventionCandidate, *meeting.Snapshot) (models.InterventionCandidate, bool)

func (f screenFunc) Screen(ctx context.Context, c models.InterventionCandidate, snap *meeting.Snapshot) (models.InterventionCandidate, bool) {
	return f(ctx, c, snap)
}

func TestScreenerRewritesKind(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 3)
	a := newArbiter(p).WithScreener(screenFunc(func(_ context.Context, c models.InterventionCandidate, _ *meeting.Snapshot) (models.InterventionCandidate, bool) {
		c.Kind, c.Message = models.KindDecisionStyle, "let's keep it constructive"
		return c, true
	}))

	iv, err := a.Resolve(context.Background(), []models.InterventionCandidate{
		cand(models.KindPrincipleViolation, 3, "you are wrong and rude"),
	}, s)
	if err != nil || iv == nil {
		t.Fatalf("iv=%v err=%v", iv, err)
	}
	if iv.Kind != models.KindDecisionStyle || iv.Message != "let's keep it constructive" {
		t.Fatalf("iv = %+v", iv)
	}
	snap := s.Snapshot()
	if snap.Cooldown(models.KindDecisionStyle).LastSequence != 3 || snap.Cooldown(models.KindPrincipleViolation).LastSequence != 0 {
		t.Fatal("cooldown clock not charged to the rewritten kind")
	}
}

func TestScreenerFallsThrough(t *testing.T) {
	p := DefaultPolicy()
	s := newStore(t, p, 9)
	ctx := context.Background()
	if err := s.RecordIntervention(ctx, models.Intervention{ID: "x", Kind: models.KindDecisionStyle, Sequence: 7, Message: "earlier remark"}); err != nil {
		t.Fatal(err)
	}
	var screened []models.InterventionKind
	a := newArbiter(p).WithScreener(screenFunc(func(_ context.Context, c models.InterventionCandidate, _ *meeting.Snapshot) (models.InterventionCandidate, bool) {
		screened = append(screened, c.Kind)
		switch c.Kind {
		case models.KindPrincipleViolation:
			// rewritten into a kind that is still cooling down
			c.Kind = models.KindDecisionStyle
			return c, true
		case models.KindTopicDrift:
			return c, false
		}
		return c, true
	}))

	iv, err := a.Resolve(ctx, []models.InterventionCandidate{
		cand(models.KindParticipationImbalance, 9, "let Bob speak"),
		cand(models.KindTopicDrift, 9, "back to the budget"),
		cand(models.KindPrincipleViolation, 9, "remember: no interruptions"),
	}, s)
	if err != nil || iv == nil || iv.Kind != models.KindParticipationImbalance {
		t.Fatalf("iv=%+v err=%v", iv, err)
	}
	want := []models.InterventionKind{models.KindPrincipleViolation, models.KindTopicDrift, models.KindParticipationImbalance}
	if len(screened) != len(want) {
		t.Fatalf("screened = %v", screened)
	}
	for i := range want {
		if screened[i] != want[i] {
			t.Fatalf("screened = %v, want %v", screened, want)
		}
	}
}
