package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/GradientHair/GradientHair/internal/moderation"
	"github.com/GradientHair/GradientHair/internal/providers/llm"
	"github.com/GradientHair/GradientHair/internal/structured"
	"gopkg.in/yaml.v3"
)

// Moderation is everything the moderation pipeline reads at startup.
type Moderation struct {
	moderation.Config `yaml:",inline"`

	Provider string     `yaml:"provider"` // vertex|openai
	Models   llm.Models `yaml:"models"`
}

// LoadModeration starts from the built-in defaults, overlays the YAML file named by
// MODERATION_POLICY_FILE when set, then applies single-value env overrides.
func LoadModeration() (Moderation, error) {
	m := Moderation{
		Config:   moderation.DefaultConfig(),
		Provider: "vertex",
		Models: llm.Models{
			llm.TierFast:      "gemini-2.0-flash-lite",
			llm.TierStandard:  "gemini-2.0-flash",
			llm.TierReasoning: "gemini-2.5-pro",
		},
	}

	if path := os.Getenv("MODERATION_POLICY_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return m, fmt.Errorf("moderation policy: %w", err)
		}
		if err := yaml.Unmarshal(b, &m); err != nil {
			return m, fmt.Errorf("moderation policy %s: %w", path, err)
		}
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		m.Provider = v
	}
	for tier, env := range map[llm.Tier]string{
		llm.TierFast:      "LLM_MODEL_FAST",
		llm.TierStandard:  "LLM_MODEL_STANDARD",
		llm.TierReasoning: "LLM_MODEL_REASONING",
	} {
		if v := os.Getenv(env); v != "" {
			m.Models[tier] = v
		}
	}

	var errs []error
	envInt(&m.MaxConcurrentCalls, "MODERATION_MAX_CONCURRENT_CALLS", &errs)
	envInt(&m.MaxAttempts, "MODERATION_MAX_ATTEMPTS", &errs)
	envDuration(&m.AttemptTimeout, "MODERATION_ATTEMPT_TIMEOUT", &errs)
	envDuration(&m.RoundTimeout, "MODERATION_ROUND_TIMEOUT", &errs)
	envBool(&m.ModelVerification, "MODERATION_MODEL_VERIFICATION", &errs)
	envBool(&m.CancelSuperseded, "MODERATION_CANCEL_SUPERSEDED", &errs)
	envVerify(&m.Principle.Verify, "MODERATION_PRINCIPLE_VERIFY", &errs)
	envVerify(&m.Topic.Verify, "MODERATION_TOPIC_VERIFY", &errs)
	if err := errors.Join(errs...); err != nil {
		return m, err
	}
	return m, m.validate()
}

func (m Moderation) validate() error {
	switch {
	case m.Provider != "vertex" && m.Provider != "openai":
		return fmt.Errorf("unknown LLM_PROVIDER %q", m.Provider)
	case m.Models[llm.TierStandard] == "":
		return errors.New("a standard tier model is required")
	case m.MaxConcurrentCalls <= 0:
		return errors.New("max_concurrent_calls must be positive")
	}
	for kind, w := range m.Policy.Cooldowns {
		if w < 0 {
			return fmt.Errorf("cooldown for %s must not be negative", kind)
		}
	}
	return nil
}

// NewGateway dials the configured LLM provider. Vertex reads GCP_PROJECT_ID and
// GCP_LOCATION; OpenAI reads OPENAI_API_KEY and the optional OPENAI_BASE_URL.
func NewGateway(ctx context.Context, m Moderation) (llm.Gateway, error) {
	if m.Provider == "openai" {
		g, err := llm.NewOpenAI(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"), m.Models)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	g, err := llm.NewVertexGemini(ctx, os.Getenv("GCP_PROJECT_ID"), os.Getenv("GCP_LOCATION"), m.Models)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func envInt[T int | int64](dst *T, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = T(n)
}

func envDuration(dst *time.Duration, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func envVerify(dst *structured.VerifyMode, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	mode, err := structured.ParseVerifyMode(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = mode
}

func envBool(dst *bool, key string, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}
