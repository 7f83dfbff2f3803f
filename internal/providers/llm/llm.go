package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tier names a cost/capability class of model. Which concrete model serves a tier is
// gateway configuration.
type Tier string

const (
	TierFast      Tier = "fast"
	TierStandard  Tier = "standard"
	TierReasoning Tier = "reasoning"
)

// Models maps tiers to concrete model names.
type Models map[Tier]string

// For returns the model for t, falling back to the standard tier.
func (m Models) For(t Tier) string {
	if name, ok := m[t]; ok && name != "" {
		return name
	}
	return m[TierStandard]
}

type Request struct {
	Prompt     string
	Schema     *jsonschema.Schema // required shape of the answer, nil for free text
	SchemaName string
	Tier       Tier
	Timeout    time.Duration
}

// Gateway performs exactly one model call. It never retries and never validates the
// payload; both belong to the caller.
type Gateway interface {
	Execute(ctx context.Context, req Request) (string, error)
	Close() error
}

var ErrEmptyResponse = errors.New("empty model response")

// TransportError is any failure to obtain a raw payload: network, quota, timeout,
// refusal or an empty candidate list.
type TransportError struct {
	Provider string
	Model    string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Model, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of its deadline.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
