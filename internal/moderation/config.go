package moderation

import (
	"time"

	"github.com/GradientHair/GradientHair/internal/arbiter"
	"github.com/GradientHair/GradientHair/internal/detection"
	"github.com/GradientHair/GradientHair/internal/participation"
	"github.com/GradientHair/GradientHair/internal/providers/llm"
	"github.com/GradientHair/GradientHair/internal/review"
	"github.com/GradientHair/GradientHair/internal/structured"
)

// Config is the tunable part of a moderation session. Cooldown windows and the priority
// order live in Policy.
type Config struct {
	MaxConcurrentCalls int64         `yaml:"max_concurrent_calls"` // per meeting
	RoundTimeout       time.Duration `yaml:"round_timeout"`
	CancelSuperseded   bool          `yaml:"cancel_superseded"`
	MaxAttempts        int           `yaml:"max_attempts"`
	AttemptTimeout     time.Duration `yaml:"attempt_timeout"`
	ModelVerification  bool          `yaml:"model_verification"`

	Policy        arbiter.Policy                `yaml:"policy"`
	Triage        detection.TriageConfig        `yaml:"triage"`
	Thresholds    participation.Thresholds      `yaml:"participation"`
	Topic         detection.Config              `yaml:"topic"`
	Principle     detection.Config              `yaml:"principle"`
	Participation detection.Config              `yaml:"participation_agent"`
	Safety        detection.SafetyConfig        `yaml:"safety"`
	Review        review.Config                 `yaml:"review"`
	Routes        map[structured.Class]llm.Tier `yaml:"routes"`
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentCalls: 4,
		RoundTimeout:       25 * time.Second,
		CancelSuperseded:   true,
		MaxAttempts:        2,
		AttemptTimeout:     10 * time.Second,
		ModelVerification:  true,
		Policy:             arbiter.DefaultPolicy(),
		Triage:             detection.DefaultTriageConfig(),
		Thresholds:         participation.DefaultThresholds(),
		Principle:          detection.Config{Verify: structured.VerifyRetryOnce},
		Safety:             detection.DefaultSafetyConfig(),
		Review:             review.Config{MaxAttempts: 3, AttemptTimeout: 90 * time.Second},
	}
}
