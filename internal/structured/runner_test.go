package structured

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GradientHair/GradientHair/internal/providers/llm"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type reply struct {
	raw   string
	err   error
	block bool
}

type scriptedGateway struct {
	mu      sync.Mutex
	replies []reply
	reqs    []llm.Request
}

func (g *scriptedGateway) Execute(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	i := len(g.reqs)
	g.reqs = append(g.reqs, req)
	r := g.replies[len(g.replies)-1]
	if i < len(g.replies) {
		r = g.replies[i]
	}
	g.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.raw, r.err
}

func (g *scriptedGateway) Close() error { return nil }

func (g *scriptedGateway) prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.reqs))
	for i, r := range g.reqs {
		out[i] = r.Prompt
	}
	return out
}

type drift struct {
	IsDrift bool   `json:"is_drift"`
	Message string `json:"message,omitempty"`
}

var driftSpec = MustSpec[drift]("drift", "test verdict", func(d *drift) error {
	if d.IsDrift && d.Message == "" {
		return errors.New("message is required when is_drift is true")
	}
	return nil
})

const (
	badPayload  = `{"is_drift": true}`
	goodPayload = `{"is_drift": true, "message": "back to the agenda"}`
)

func newTestRunner(g llm.Gateway, opts ...Option) *Runner {
	l, _ := test.NewNullLogger()
	base := []Option{
		WithBackoff(gax.Backoff{Initial: time.Microsecond, Max: time.Microsecond, Multiplier: 1}),
		WithLogger(logrus.NewEntry(l)),
	}
	return NewRunner(g, append(base, opts...)...)
}

func TestRunSucceedsOnThirdAttempt(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{raw: badPayload}, {raw: badPayload}, {raw: goodPayload}}}
	r := newTestRunner(g)

	res := Run(context.Background(), r, Request{Name: "drift", Class: ClassDetection, Prompt: "p", MaxAttempts: 3}, driftSpec)
	if !res.OK() {
		t.Fatalf("expected success, got %s: %v", res.Outcome, res.Err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if res.Value.Message != "back to the agenda" {
		t.Fatalf("value = %+v", res.Value)
	}
	if res.Err != nil {
		t.Fatalf("success carries error: %v", res.Err)
	}
}

func TestRunExhaustsAndFeedsBackValidationError(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{raw: badPayload}}}
	r := newTestRunner(g)

	res := Run(context.Background(), r, Request{Name: "drift", Class: ClassDetection, Prompt: "p", MaxAttempts: 2}, driftSpec)
	if res.OK() || res.Outcome != StateFailed {
		t.Fatalf("outcome = %s, want FAILED", res.Outcome)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", res.Attempts)
	}
	if !errors.Is(res.Err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", res.Err)
	}
	var se *SchemaError
	if !errors.As(res.Err, &se) {
		t.Fatalf("err = %v, want wrapped SchemaError", res.Err)
	}

	prompts := g.prompts()
	if len(prompts) != 2 {
		t.Fatalf("gateway calls = %d, want 2", len(prompts))
	}
	if strings.Contains(prompts[0], "message is required") {
		t.Fatalf("first prompt already carries feedback: %q", prompts[0])
	}
	if !strings.Contains(prompts[1], "message is required when is_drift is true") {
		t.Fatalf("second prompt lacks first error text: %q", prompts[1])
	}
}

func TestRunTransportErrorsShareBudget(t *testing.T) {
	boom := errors.New("connection reset")
	g := &scriptedGateway{replies: []reply{{err: boom}, {err: boom}, {raw: goodPayload}}}
	r := newTestRunner(g)

	res := Run(context.Background(), r, Request{Name: "drift", Prompt: "p", MaxAttempts: 3}, driftSpec)
	if !res.OK() || res.Attempts != 3 {
		t.Fatalf("got %s after %d attempts: %v", res.Outcome, res.Attempts, res.Err)
	}

	g = &scriptedGateway{replies: []reply{{err: boom}}}
	res = Run(context.Background(), newTestRunner(g), Request{Name: "drift", Prompt: "p", MaxAttempts: 2}, driftSpec)
	if res.Outcome != StateFailed || res.Attempts != 2 {
		t.Fatalf("got %s after %d attempts", res.Outcome, res.Attempts)
	}
	var te *llm.TransportError
	if !errors.As(res.Err, &te) || !errors.Is(res.Err, boom) {
		t.Fatalf("err = %v, want wrapped TransportError", res.Err)
	}
	for _, p := range g.prompts() {
		if strings.Contains(p, "rejected") {
			t.Fatalf("transport failure fed back into prompt: %q", p)
		}
	}
}

func TestRunAttemptTimeoutIsTransportFailure(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{block: true}, {raw: goodPayload}}}
	r := newTestRunner(g)

	res := Run(context.Background(), r, Request{Name: "drift", Prompt: "p", MaxAttempts: 2, AttemptTimeout: 10 * time.Millisecond}, driftSpec)
	if !res.OK() || res.Attempts != 2 {
		t.Fatalf("got %s after %d attempts: %v", res.Outcome, res.Attempts, res.Err)
	}

	g = &scriptedGateway{replies: []reply{{block: true}}}
	res = Run(context.Background(), newTestRunner(g), Request{Name: "drift", Prompt: "p", MaxAttempts: 1, AttemptTimeout: 10 * time.Millisecond}, driftSpec)
	var te *llm.TransportError
	if !errors.As(res.Err, &te) || !te.Timeout() {
		t.Fatalf("err = %v, want timeout TransportError", res.Err)
	}
}

func TestRunParentCancellationStops(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{block: true}}}
	r := newTestRunner(g)

	ctx, cancel := context.WithCancelCause(context.Background())
	superseded := errors.New("superseded")
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel(superseded)
	}()

	res := Run(ctx, r, Request{Name: "drift", Prompt: "p", MaxAttempts: 5, AttemptTimeout: time.Second}, driftSpec)
	if res.Outcome != StateFailed || res.Attempts != 1 {
		t.Fatalf("got %s after %d attempts", res.Outcome, res.Attempts)
	}
	if !errors.Is(res.Err, superseded) {
		t.Fatalf("err = %v, want cancellation cause", res.Err)
	}
}

func TestRunVerifyRetryOnceExceedsBudgetByOne(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{raw: goodPayload}}}
	calls := 0
	v := VerifierFunc(func(ctx context.Context, req Request, payload string) (Verdict, error) {
		calls++
		if calls == 1 {
			return Verdict{Approved: false, Reason: "nobody mentioned the budget"}, nil
		}
		return Verdict{Approved: true}, nil
	})
	r := newTestRunner(g, WithVerifier(v))

	res := Run(context.Background(), r, Request{Name: "drift", Prompt: "p", MaxAttempts: 1, Verify: VerifyRetryOnce}, driftSpec)
	if !res.OK() {
		t.Fatalf("got %s: %v", res.Outcome, res.Err)
	}
	if res.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", res.Attempts)
	}
	if p := g.prompts(); !strings.Contains(p[1], "nobody mentioned the budget") {
		t.Fatalf("retry prompt lacks rejection reason: %q", p[1])
	}
}

func TestRunVerifyRetryOnceOnlyOnce(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{raw: goodPayload}}}
	v := VerifierFunc(func(ctx context.Context, req Request, payload string) (Verdict, error) {
		return Verdict{Approved: false, Reason: "unsupported"}, nil
	})
	r := newTestRunner(g, WithVerifier(v))

	res := Run(context.Background(), r, Request{Name: "drift", Prompt: "p", MaxAttempts: 3, Verify: VerifyRetryOnce}, driftSpec)
	if res.Outcome != StateVerificationFailed || res.Attempts != 2 {
		t.Fatalf("got %s after %d attempts", res.Outcome, res.Attempts)
	}
	if !errors.Is(res.Err, ErrVerificationRejected) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestRunVerifyTerminal(t *testing.T) {
	tests := []struct {
		name string
		v    Verifier
	}{
		{"rejected", VerifierFunc(func(context.Context, Request, string) (Verdict, error) {
			return Verdict{Reason: "speculative"}, nil
		})},
		{"verifier failure fails closed", VerifierFunc(func(context.Context, Request, string) (Verdict, error) {
			return Verdict{}, errors.New("verifier unavailable")
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &scriptedGateway{replies: []reply{{raw: goodPayload}}}
			r := newTestRunner(g, WithVerifier(tt.v))
			res := Run(context.Background(), r, Request{Name: "drift", Prompt: "p", MaxAttempts: 3, Verify: VerifyTerminal}, driftSpec)
			if res.Outcome != StateVerificationFailed || res.Attempts != 1 {
				t.Fatalf("got %s after %d attempts", res.Outcome, res.Attempts)
			}
			if !errors.Is(res.Err, ErrVerificationRejected) {
				t.Fatalf("err = %v", res.Err)
			}
			if res.Value != (drift{}) {
				t.Fatalf("failed result carries a value: %+v", res.Value)
			}
		})
	}
}

func TestRunRoutesClassToTier(t *testing.T) {
	g := &scriptedGateway{replies: []reply{{raw: goodPayload}}}
	r := newTestRunner(g)

	for class, want := range map[Class]llm.Tier{
		ClassTriage:    llm.TierFast,
		ClassDetection: llm.TierFast,
		ClassAnalysis:  llm.TierStandard,
		ClassReview:    llm.TierReasoning,
		Class("other"): llm.TierStandard,
	} {
		g.reqs = nil
		Run(context.Background(), r, Request{Name: "drift", Class: class, Prompt: "p"}, driftSpec)
		if got := g.reqs[0].Tier; got != want {
			t.Errorf("class %s routed to %s, want %s", class, got, want)
		}
		if g.reqs[0].Schema == nil || g.reqs[0].SchemaName != "drift" {
			t.Errorf("class %s: schema not forwarded", class)
		}
	}
}

func TestModelVerifierUsesVerificationTier(t *testing.T) {
	g := &tierGateway{byTier: map[llm.Tier]string{
		llm.TierFast:      goodPayload,
		llm.TierReasoning: `{"approved": false, "reason": "not in transcript"}`,
	}}
	l, _ := test.NewNullLogger()
	r := NewRunner(g,
		WithBackoff(gax.Backoff{Initial: time.Microsecond, Max: time.Microsecond, Multiplier: 1}),
		WithLogger(logrus.NewEntry(l)),
		WithModelVerification(),
	)

	res := Run(context.Background(), r, Request{Name: "drift", Class: ClassDetection, Prompt: "p", Verify: VerifyTerminal}, driftSpec)
	if res.Outcome != StateVerificationFailed {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !strings.Contains(res.Err.Error(), "not in transcript") {
		t.Fatalf("err = %v", res.Err)
	}
	if g.calls[llm.TierReasoning] != 1 {
		t.Fatalf("verification calls = %d, want 1", g.calls[llm.TierReasoning])
	}
}

type tierGateway struct {
	mu     sync.Mutex
	byTier map[llm.Tier]string
	calls  map[llm.Tier]int
}

func (g *tierGateway) Execute(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = map[llm.Tier]int{}
	}
	g.calls[req.Tier]++
	return g.byTier[req.Tier], nil
}

func (g *tierGateway) Close() error { return nil }
