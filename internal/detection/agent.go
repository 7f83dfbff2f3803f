// Package detection holds the detectors that read a meeting snapshot and may propose
// one intervention candidate per round.
package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/structured"
	"github.com/sirupsen/logrus"
)

// Agent is the one capability every detector has. Agents read only the snapshot they are
// handed and never write to the meeting.
type Agent interface {
	Name() string
	Kind() models.InterventionKind
	Propose(ctx context.Context, utterance models.TranscriptEntry, snap *meeting.Snapshot) (models.InterventionCandidate, bool)
}

// Config holds the knobs shared by all detectors.
type Config struct {
	ContextWindow  int                   `yaml:"context_window"` // recent entries shown to the model
	MinConfidence  float64               `yaml:"min_confidence"`
	MaxAttempts    int                   `yaml:"max_attempts"`
	AttemptTimeout time.Duration         `yaml:"attempt_timeout"`
	Verify         structured.VerifyMode `yaml:"-"`
}

func (c Config) withDefaults(d Config) Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	return c
}

type base struct {
	name   string
	kind   models.InterventionKind
	runner *structured.Runner
	cfg    Config
	log    *logrus.Entry
}

func (b *base) Name() string                  { return b.name }
func (b *base) Kind() models.InterventionKind { return b.kind }

func (b *base) request(prompt string) structured.Request {
	return structured.Request{
		Name:           b.name,
		Class:          structured.ClassDetection,
		Prompt:         prompt,
		MaxAttempts:    b.cfg.MaxAttempts,
		AttemptTimeout: b.cfg.AttemptTimeout,
		Verify:         b.cfg.Verify,
	}
}

// noVerdict logs a failed structured call. A failed call means no candidate this round.
func (b *base) noVerdict(snap *meeting.Snapshot, seq int64, outcome structured.State, attempts int, err error) {
	entry := b.log.WithFields(logrus.Fields{
		"agent":      b.name,
		"meeting_id": snap.MeetingID(),
		"sequence":   seq,
		"outcome":    outcome,
		"attempts":   attempts,
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		entry.WithError(err).Debug("detector abandoned")
		return
	}
	entry.WithError(err).Warn("detector produced no verdict")
}

func checkConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("confidence must be within [0, 1], got %v", c)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func transcriptLines(entries []models.TranscriptEntry) string {
	if len(entries) == 0 {
		return "(no conversation yet)"
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", e.Sequence, e.Label(), e.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}
