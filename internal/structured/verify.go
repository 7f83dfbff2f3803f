package structured

import (
	"context"
	"errors"
	"fmt"
)

// Verdict is the answer of a verification pass over an already schema-valid payload.
type Verdict struct {
	Approved bool   `json:"approved" jsonschema:"true when the candidate output is supported by the context and follows the instructions"`
	Reason   string `json:"reason" jsonschema:"short explanation, required when not approved"`
}

type Verifier interface {
	Verify(ctx context.Context, req Request, payload string) (Verdict, error)
}

type VerifierFunc func(ctx context.Context, req Request, payload string) (Verdict, error)

func (f VerifierFunc) Verify(ctx context.Context, req Request, payload string) (Verdict, error) {
	return f(ctx, req, payload)
}

var verdictSpec = MustSpec[Verdict]("verification_verdict",
	"Independent check of another model's structured output.",
	func(v *Verdict) error {
		if !v.Approved && v.Reason == "" {
			return errors.New("reason is required when approved is false")
		}
		return nil
	})

// ModelVerifier asks a (usually stronger) model whether a payload holds up. A verifier
// call that cannot produce a verdict is returned as an error, which the runner treats as
// a rejection.
type ModelVerifier struct {
	runner      *Runner
	maxAttempts int
}

func NewModelVerifier(r *Runner) *ModelVerifier {
	return &ModelVerifier{runner: r, maxAttempts: 2}
}

func (v *ModelVerifier) Verify(ctx context.Context, req Request, payload string) (Verdict, error) {
	res := Run(ctx, v.runner, Request{
		Name:           req.Name + ".verify",
		Class:          ClassVerification,
		Prompt:         verifyPrompt(req, payload),
		MaxAttempts:    v.maxAttempts,
		AttemptTimeout: req.AttemptTimeout,
		Verify:         VerifyOff,
	}, verdictSpec)
	if !res.OK() {
		return Verdict{}, res.Err
	}
	return res.Value, nil
}

func verifyPrompt(req Request, payload string) string {
	return fmt.Sprintf(`You are auditing the output of another assistant for the task %q.
Approve it only if every claim in the output is supported by the task context below and the output follows the task instructions. Reject speculative or unsupported conclusions.

=== Task instructions and context ===
%s

=== Candidate output ===
%s

Respond with JSON {"approved": bool, "reason": string}.`, req.Name, req.Prompt, payload)
}
