package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/structured"
	"github.com/sirupsen/logrus"
)

type safetyVerdict struct {
	IsSafe      bool     `json:"is_safe" jsonschema:"true when the remark can be said to the room as written"`
	SafeMessage *string  `json:"safe_message,omitempty" jsonschema:"a neutral rewrite of the remark, required when is_safe is false"`
	Reasons     []string `json:"reasons" jsonschema:"short reasons for the verdict, empty when safe"`
}

var safetySpec = structured.MustSpec[safetyVerdict]("safety_check",
	"Whether a moderator remark is safe and respectful to say to the meeting.",
	func(v *safetyVerdict) error {
		if !v.IsSafe && deref(v.SafeMessage) == "" {
			return errors.New("safe_message is required when is_safe is false")
		}
		return nil
	})

type SafetyConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MinMessageRunes int           `yaml:"min_message_runes"`
	BlockedTerms    []string      `yaml:"blocked_terms"`
	Fallback        string        `yaml:"fallback_message"`
	MaxAttempts     int           `yaml:"max_attempts"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
}

func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		Enabled:         true,
		MinMessageRunes: 6,
		Fallback:        "Let's pause for a moment and keep the discussion respectful.",
		MaxAttempts:     2,
		AttemptTimeout:  6 * time.Second,
	}
}

// Safety screens the remark the arbiter picked before anyone hears it. Unsafe remarks
// are rewritten and re-tagged DECISION_STYLE; remarks too short to stand on their own
// are withheld.
type Safety struct {
	runner *structured.Runner
	cfg    SafetyConfig
	terms  []string
	log    *logrus.Entry
}

func NewSafety(r *structured.Runner, cfg SafetyConfig, log *logrus.Entry) *Safety {
	d := DefaultSafetyConfig()
	if cfg.Fallback == "" {
		cfg.Fallback = d.Fallback
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = d.AttemptTimeout
	}
	terms := make([]string, 0, len(cfg.BlockedTerms))
	for _, t := range cfg.BlockedTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Safety{runner: r, cfg: cfg, terms: terms, log: log}
}

// Screen returns the candidate to emit, possibly rewritten, and false when it must not
// be emitted. When the model check cannot produce a verdict the blocked-term screen
// still applies.
func (s *Safety) Screen(ctx context.Context, c models.InterventionCandidate, snap *meeting.Snapshot) (models.InterventionCandidate, bool) {
	log := s.log.WithFields(logrus.Fields{"meeting_id": snap.MeetingID(), "sequence": c.Sequence, "kind": c.Kind})
	if utf8.RuneCountInString(strings.TrimSpace(c.Message)) < s.cfg.MinMessageRunes {
		log.Debug("remark too short, withheld")
		return c, false
	}

	res := structured.Run(ctx, s.runner, structured.Request{
		Name:           "safety",
		Class:          structured.ClassTriage,
		Prompt:         safetyPrompt(c, snap),
		MaxAttempts:    s.cfg.MaxAttempts,
		AttemptTimeout: s.cfg.AttemptTimeout,
	}, safetySpec)
	switch {
	case res.OK() && !res.Value.IsSafe:
		log.WithField("reasons", res.Value.Reasons).Info("remark rewritten")
		c = rewrite(c, deref(res.Value.SafeMessage), res.Value.Reasons)
	case !res.OK():
		if ctx.Err() != nil {
			return c, false
		}
		log.WithError(res.Err).Warn("safety check produced no verdict, screening by terms only")
	}

	if term, hit := s.blocked(c.Message); hit {
		log.WithField("term", term).Info("remark replaced")
		c = rewrite(c, s.cfg.Fallback, []string{"blocked term"})
	}
	return c, true
}

func (s *Safety) blocked(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, t := range s.terms {
		if strings.Contains(lower, t) {
			return t, true
		}
	}
	return "", false
}

func rewrite(c models.InterventionCandidate, msg string, reasons []string) models.InterventionCandidate {
	c.Kind = models.KindDecisionStyle
	c.Message = msg
	if len(reasons) == 0 {
		return c
	}
	note := "rewritten: " + strings.Join(reasons, "; ")
	if c.Justification != "" {
		note = c.Justification + " | " + note
	}
	c.Justification = note
	return c
}

func safetyPrompt(c models.InterventionCandidate, snap *meeting.Snapshot) string {
	return fmt.Sprintf(`A meeting moderator is about to say the remark below to everyone in the meeting %q.

Remark (%s): %s

Decide whether the remark is safe to say as written: respectful, about behaviour rather than the person, and free of insults, harassment, threats, discrimination or advice to break the law. If it is not, provide a short neutral rewrite that keeps the moderator's intent.`,
		snap.Meeting.Title, c.Kind, c.Message)
}
