package structured

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GradientHair/GradientHair/internal/providers/llm"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"
)

var (
	ErrExhausted            = errors.New("structured: attempts exhausted")
	ErrVerificationRejected = errors.New("structured: verification rejected")
)

type VerifyMode int

const (
	VerifyOff VerifyMode = iota
	// VerifyRetryOnce feeds a rejection back for exactly one more attempt, even past MaxAttempts.
	VerifyRetryOnce
	// VerifyTerminal ends the call on the first rejection.
	VerifyTerminal
)

type Request struct {
	Name           string
	Class          Class
	Prompt         string
	MaxAttempts    int
	AttemptTimeout time.Duration
	Verify         VerifyMode
}

type State string

const (
	StateNotStarted         State = "NOT_STARTED"
	StateAttempting         State = "ATTEMPTING"
	StateValid              State = "VALID"
	StateInvalid            State = "INVALID"
	StateFailed             State = "FAILED"
	StateVerificationFailed State = "VERIFICATION_FAILED"
	StateSucceeded          State = "SUCCEEDED"
)

// Result is either a fully typed Value (Outcome SUCCEEDED) or an Err, never both.
type Result[T any] struct {
	Value    T
	Attempts int
	Outcome  State
	Err      error
}

func (r Result[T]) OK() bool { return r.Outcome == StateSucceeded }

type Runner struct {
	gateway  llm.Gateway
	router   *Router
	verifier Verifier
	backoff  gax.Backoff
	log      *logrus.Entry

	maxAttempts    int
	attemptTimeout time.Duration
}

type Option func(*Runner)

func WithRouter(r *Router) Option { return func(rn *Runner) { rn.router = r } }

func WithVerifier(v Verifier) Option { return func(rn *Runner) { rn.verifier = v } }

// WithModelVerification verifies through the same runner at ClassVerification.
func WithModelVerification() Option {
	return func(rn *Runner) { rn.verifier = NewModelVerifier(rn) }
}

func WithBackoff(b gax.Backoff) Option { return func(rn *Runner) { rn.backoff = b } }

func WithLogger(l *logrus.Entry) Option { return func(rn *Runner) { rn.log = l } }

// WithDefaults sets the budget and per-attempt timeout used when a Request leaves them zero.
func WithDefaults(maxAttempts int, attemptTimeout time.Duration) Option {
	return func(rn *Runner) {
		if maxAttempts > 0 {
			rn.maxAttempts = maxAttempts
		}
		if attemptTimeout > 0 {
			rn.attemptTimeout = attemptTimeout
		}
	}
}

func NewRunner(gateway llm.Gateway, opts ...Option) *Runner {
	r := &Runner{
		gateway:        gateway,
		router:         DefaultRouter(),
		backoff:        gax.Backoff{Initial: 250 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2},
		log:            logrus.NewEntry(logrus.StandardLogger()),
		maxAttempts:    3,
		attemptTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drives one structured call to a terminal state. Each call owns its attempt counter,
// feedback and backoff; nothing carries over between calls.
func Run[T any](ctx context.Context, r *Runner, req Request, spec *Spec[T]) Result[T] {
	budget := req.MaxAttempts
	if budget <= 0 {
		budget = r.maxAttempts
	}
	timeout := req.AttemptTimeout
	if timeout <= 0 {
		timeout = r.attemptTimeout
	}
	tier := r.router.Tier(req.Class)
	bo := r.backoff
	log := r.log.WithFields(logrus.Fields{"call": req.Name, "class": req.Class, "tier": tier})

	var (
		state      = StateNotStarted
		attempts   int
		feedback   []string
		raw        string
		value      T
		lastErr    error
		extraGiven bool
	)

	for {
		switch state {
		case StateNotStarted:
			state = StateAttempting

		case StateAttempting:
			attempts++
			var err error
			raw, err = r.attempt(ctx, llm.Request{
				Prompt:     withFeedback(req.Prompt, feedback),
				Schema:     spec.schema,
				SchemaName: spec.Name,
				Tier:       tier,
				Timeout:    timeout,
			})
			if err != nil {
				if ctx.Err() != nil {
					return Result[T]{Attempts: attempts, Outcome: StateFailed, Err: context.Cause(ctx)}
				}
				lastErr = err
				log.WithError(err).WithField("attempt", attempts).Debug("structured attempt transport failure")
				state = StateInvalid
				continue
			}
			v, perr := spec.Parse(raw)
			if perr != nil {
				lastErr = perr
				feedback = append(feedback, perr.Error())
				log.WithError(perr).WithField("attempt", attempts).Debug("structured attempt rejected")
				state = StateInvalid
				continue
			}
			value = v
			state = StateValid

		case StateValid:
			if req.Verify == VerifyOff || r.verifier == nil {
				state = StateSucceeded
				continue
			}
			verdict, err := r.verifier.Verify(ctx, req, raw)
			if err == nil && verdict.Approved {
				state = StateSucceeded
				continue
			}
			if ctx.Err() != nil {
				return Result[T]{Attempts: attempts, Outcome: StateFailed, Err: context.Cause(ctx)}
			}
			// an unusable verifier rejects
			reason := verdict.Reason
			if err != nil {
				reason = err.Error()
			}
			lastErr = fmt.Errorf("%w: %s", ErrVerificationRejected, reason)
			log.WithField("attempt", attempts).WithField("reason", reason).Debug("structured payload failed verification")
			if req.Verify == VerifyRetryOnce && !extraGiven {
				extraGiven = true
				budget = attempts + 1
				feedback = append(feedback, lastErr.Error())
				state = StateInvalid
				continue
			}
			state = StateVerificationFailed

		case StateInvalid:
			if attempts >= budget {
				state = StateFailed
				continue
			}
			if err := gax.Sleep(ctx, bo.Pause()); err != nil {
				return Result[T]{Attempts: attempts, Outcome: StateFailed, Err: context.Cause(ctx)}
			}
			state = StateAttempting

		case StateFailed:
			return Result[T]{Attempts: attempts, Outcome: StateFailed, Err: fmt.Errorf("%w after %d: %w", ErrExhausted, attempts, lastErr)}

		case StateVerificationFailed:
			return Result[T]{Attempts: attempts, Outcome: StateVerificationFailed, Err: lastErr}

		case StateSucceeded:
			return Result[T]{Value: value, Attempts: attempts, Outcome: StateSucceeded}
		}
	}
}

// attempt runs one gateway call under the per-attempt deadline. Running out of that
// deadline is reported as a transport failure.
func (r *Runner) attempt(ctx context.Context, req llm.Request) (string, error) {
	actx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	raw, err := r.gateway.Execute(actx, req)
	if err == nil && actx.Err() != nil && ctx.Err() == nil {
		err = actx.Err()
	}
	if err == nil {
		return raw, nil
	}
	var te *llm.TransportError
	if errors.As(err, &te) {
		return "", err
	}
	return "", &llm.TransportError{Provider: "gateway", Model: string(req.Tier), Err: err}
}

func withFeedback(prompt string, feedback []string) string {
	if len(feedback) == 0 {
		return prompt
	}
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nYour previous response was rejected:\n")
	for i, f := range feedback {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, f)
	}
	sb.WriteString("Return a corrected JSON object only.")
	return sb.String()
}

// ParseVerifyMode accepts off, retry_once and terminal.
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return VerifyOff, nil
	case "retry_once", "retry-once":
		return VerifyRetryOnce, nil
	case "terminal":
		return VerifyTerminal, nil
	default:
		return VerifyOff, fmt.Errorf("unknown verify mode %q", s)
	}
}
