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

type principleVerdict struct {
	Violated          bool    `json:"violated" jsonschema:"true when the latest utterance breaks one of the meeting principles"`
	Confidence        float64 `json:"confidence" jsonschema:"confidence in the verdict between 0 and 1"`
	ViolatedPrinciple *string `json:"violated_principle,omitempty" jsonschema:"exact name of the violated principle"`
	Evidence          *string `json:"evidence,omitempty" jsonschema:"the words that break the principle"`
	Message           *string `json:"message,omitempty" jsonschema:"short, respectful reminder of the principle, when violated"`
}

var principleSpec = structured.MustSpec[principleVerdict]("principle_verdict",
	"Whether the latest utterance violates one of the team's meeting principles.",
	nil)

var defaultPrincipleConfig = Config{
	ContextWindow:  6,
	MinConfidence:  0.7,
	MaxAttempts:    2,
	AttemptTimeout: 10 * time.Second,
}

// Principle checks utterances against the principle documents supplied at meeting
// creation. The documents go into the prompt verbatim.
type Principle struct{ base }

func NewPrinciple(r *structured.Runner, cfg Config, log *logrus.Entry) *Principle {
	return &Principle{base{
		name:   "principle",
		kind:   models.KindPrincipleViolation,
		runner: r,
		cfg:    cfg.withDefaults(defaultPrincipleConfig),
		log:    log,
	}}
}

func (a *Principle) Propose(ctx context.Context, u models.TranscriptEntry, snap *meeting.Snapshot) (models.InterventionCandidate, bool) {
	principles := snap.Meeting.Principles
	if len(principles) == 0 {
		return models.InterventionCandidate{}, false
	}

	spec := principleSpec.WithCheck(func(v *principleVerdict) error {
		if err := checkConfidence(v.Confidence); err != nil {
			return err
		}
		if !v.Violated {
			return nil
		}
		name := deref(v.ViolatedPrinciple)
		if name == "" {
			return errors.New("violated requires violated_principle")
		}
		if _, ok := findPrinciple(principles, name); !ok {
			return fmt.Errorf("violated_principle %q is not one of: %s", name, principleNames(principles))
		}
		return nil
	})

	res := structured.Run(ctx, a.runner, a.request(principlePrompt(snap, u, a.cfg.ContextWindow)), spec)
	if !res.OK() {
		a.noVerdict(snap, u.Sequence, res.Outcome, res.Attempts, res.Err)
		return models.InterventionCandidate{}, false
	}
	v := res.Value
	if !v.Violated || v.Confidence < a.cfg.MinConfidence {
		return models.InterventionCandidate{}, false
	}

	p, _ := findPrinciple(principles, deref(v.ViolatedPrinciple))
	msg := deref(v.Message)
	if msg == "" {
		msg = fmt.Sprintf("A reminder of our principle %q.", p.Name)
	}
	return models.InterventionCandidate{
		Kind:          a.kind,
		Confidence:    v.Confidence,
		Justification: deref(v.Evidence),
		Message:       msg,
		Metadata:      models.InterventionMetadata{ViolatedPrinciple: p.Name},
		Sequence:      u.Sequence,
		Agent:         a.name,
	}, true
}

func findPrinciple(ps []models.Principle, name string) (models.Principle, bool) {
	for _, p := range ps {
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name)) {
			return p, true
		}
	}
	return models.Principle{}, false
}

func principleNames(ps []models.Principle) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = fmt.Sprintf("%q", p.Name)
	}
	return strings.Join(names, ", ")
}

func principlePrompt(snap *meeting.Snapshot, u models.TranscriptEntry, window int) string {
	var docs strings.Builder
	for _, p := range snap.Meeting.Principles {
		fmt.Fprintf(&docs, "--- principle: %s ---\n%s\n", p.Name, p.Content)
	}
	return fmt.Sprintf(`You moderate a live meeting and hold the team to the principles it agreed on.

Principles:
%s
Recent conversation:
%s

Latest utterance [%d] %s: %s

Decide whether the latest utterance clearly violates one of the principles. Only flag clear violations, quote the evidence, and use the exact principle name.`,
		docs.String(), transcriptLines(snap.Recent(window)), u.Sequence, u.Label(), u.Text)
}
