// Package review produces the post-meeting report from a frozen snapshot.
package review

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

var ErrNotFrozen = errors.New("review: meeting is not completed")

type actionItem struct {
	Item  string `json:"item" jsonschema:"concrete task"`
	Owner string `json:"owner" jsonschema:"participant name responsible, empty if unassigned"`
	Due   string `json:"due" jsonschema:"due date or timeframe as said in the meeting, empty if none"`
}

type principleScore struct {
	Name     string   `json:"name" jsonschema:"exact principle name"`
	Score    int      `json:"score" jsonschema:"0 to 100"`
	Evidence []string `json:"evidence" jsonschema:"short quotes supporting the score"`
	Notes    string   `json:"notes"`
}

type reviewOutput struct {
	Summary         string           `json:"summary" jsonschema:"a few sentences covering what the meeting achieved"`
	Decisions       []string         `json:"decisions" jsonschema:"decisions actually made"`
	ActionItems     []actionItem     `json:"action_items"`
	Risks           []string         `json:"risks" jsonschema:"open risks or unresolved concerns"`
	Strengths       []string         `json:"strengths"`
	Recommendations []string         `json:"recommendations" jsonschema:"how the next meeting could go better"`
	OverallScore    int              `json:"overall_score" jsonschema:"0 to 100, how well the meeting followed its agenda and principles"`
	Principles      []principleScore `json:"principles" jsonschema:"one entry per meeting principle"`
}

var reviewSpec = structured.MustSpec[reviewOutput]("meeting_review",
	"Post-meeting summary, decisions, action items, risks and principle assessment.",
	nil)

type Config struct {
	MaxAttempts    int                   `yaml:"max_attempts"`
	AttemptTimeout time.Duration         `yaml:"attempt_timeout"`
	Verify         structured.VerifyMode `yaml:"-"`
}

type Pipeline struct {
	runner *structured.Runner
	cfg    Config
	log    *logrus.Entry
	now    func() time.Time
}

func NewPipeline(r *structured.Runner, cfg Config, log *logrus.Entry) *Pipeline {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 90 * time.Second
	}
	return &Pipeline{runner: r, cfg: cfg, log: log, now: time.Now}
}

// Summarize runs the review once over a frozen snapshot. Cancelling ctx does not stop a
// review that has started. The snapshot is only read.
func (p *Pipeline) Summarize(ctx context.Context, snap *meeting.Snapshot) (*models.ReviewReport, error) {
	if snap == nil || snap.Status() != models.MeetingCompleted {
		return nil, ErrNotFrozen
	}
	ctx = context.WithoutCancel(ctx)
	log := p.log.WithField("meeting_id", snap.MeetingID())

	if len(snap.Transcript) == 0 {
		log.Info("review skipped: empty transcript")
		return &models.ReviewReport{
			MeetingID:   snap.MeetingID(),
			Summary:     "No conversation was recorded.",
			Decisions:   []string{},
			ActionItems: []models.ActionItem{},
			Risks:       []string{},
			GeneratedAt: p.now().UTC(),
		}, nil
	}

	principles := snap.Meeting.Principles
	spec := reviewSpec.WithCheck(func(v *reviewOutput) error {
		if strings.TrimSpace(v.Summary) == "" {
			return errors.New("summary must not be empty")
		}
		if v.OverallScore < 0 || v.OverallScore > 100 {
			return fmt.Errorf("overall_score must be within [0, 100], got %d", v.OverallScore)
		}
		for i, a := range v.ActionItems {
			if strings.TrimSpace(a.Item) == "" {
				return fmt.Errorf("action_items[%d].item must not be empty", i)
			}
		}
		for _, ps := range v.Principles {
			if ps.Score < 0 || ps.Score > 100 {
				return fmt.Errorf("principle %q score must be within [0, 100]", ps.Name)
			}
			if !hasPrinciple(principles, ps.Name) {
				return fmt.Errorf("principle %q is not a meeting principle", ps.Name)
			}
		}
		return nil
	})

	start := time.Now()
	res := structured.Run(ctx, p.runner, structured.Request{
		Name:           "meeting_review",
		Class:          structured.ClassReview,
		Prompt:         Prompt(snap),
		MaxAttempts:    p.cfg.MaxAttempts,
		AttemptTimeout: p.cfg.AttemptTimeout,
		Verify:         p.cfg.Verify,
	}, spec)
	if !res.OK() {
		log.WithError(res.Err).WithFields(logrus.Fields{
			"outcome":  res.Outcome,
			"attempts": res.Attempts,
		}).Error("review failed")
		return nil, fmt.Errorf("review %s: %w", snap.MeetingID(), res.Err)
	}
	log.WithFields(logrus.Fields{
		"attempts":    res.Attempts,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("review completed")

	return toReport(snap.MeetingID(), res.Value, res.Attempts, p.now().UTC()), nil
}

func toReport(meetingID string, v reviewOutput, attempts int, at time.Time) *models.ReviewReport {
	r := &models.ReviewReport{
		MeetingID:       meetingID,
		Summary:         strings.TrimSpace(v.Summary),
		Decisions:       nonNil(v.Decisions),
		ActionItems:     make([]models.ActionItem, 0, len(v.ActionItems)),
		Risks:           nonNil(v.Risks),
		Strengths:       v.Strengths,
		Recommendations: v.Recommendations,
		OverallScore:    v.OverallScore,
		Attempts:        attempts,
		GeneratedAt:     at,
	}
	for _, a := range v.ActionItems {
		r.ActionItems = append(r.ActionItems, models.ActionItem{Item: a.Item, Owner: a.Owner, Due: a.Due})
	}
	for _, ps := range v.Principles {
		r.PrincipleAssessments = append(r.PrincipleAssessments, models.PrincipleAssessment{
			Name: ps.Name, Score: ps.Score, Evidence: ps.Evidence, Notes: ps.Notes,
		})
	}
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func hasPrinciple(ps []models.Principle, name string) bool {
	for _, p := range ps {
		if strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// Prompt renders the full meeting record for the reviewing model.
func Prompt(snap *meeting.Snapshot) string {
	m := snap.Meeting
	var sb strings.Builder
	sb.WriteString("You review a meeting that has just ended. Base every statement on the transcript; do not invent decisions or owners.\n\n")
	fmt.Fprintf(&sb, "Title: %s\nAgenda:\n%s\n\n", m.Title, m.Agenda)

	sb.WriteString("Participants:\n")
	for _, p := range m.Participants {
		s := snap.Stats.Speakers[p.ID]
		fmt.Fprintf(&sb, "- %s (%s) utterances=%d share=%.0f%%\n", p.Name, p.Role, s.Utterances, s.Share*100)
	}

	if len(m.Principles) > 0 {
		sb.WriteString("\nPrinciples:\n")
		for _, p := range m.Principles {
			fmt.Fprintf(&sb, "--- %s ---\n%s\n", p.Name, p.Content)
		}
	}

	sb.WriteString("\nTranscript:\n")
	for _, e := range snap.Transcript {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", e.Sequence, e.Label(), e.Text)
	}

	if len(snap.Interventions) > 0 {
		sb.WriteString("\nModerator interventions:\n")
		for _, iv := range snap.Interventions {
			fmt.Fprintf(&sb, "[%d] %s: %s\n", iv.Sequence, iv.Kind, iv.Message)
		}
	}

	sb.WriteString("\nReturn the summary, the decisions made, action items with owner and due date when stated, open risks, strengths, recommendations, an overall score, and one assessment per principle.")
	return sb.String()
}
