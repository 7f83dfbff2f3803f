package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/structured"
	"github.com/sirupsen/logrus"
)

type topicVerdict struct {
	IsDrift     bool    `json:"is_drift" jsonschema:"true when the latest utterance moves the discussion away from the agenda"`
	Confidence  float64 `json:"confidence" jsonschema:"confidence in the verdict between 0 and 1"`
	Reason      string  `json:"reason" jsonschema:"one sentence explaining the verdict"`
	ParkedTopic *string `json:"parked_topic,omitempty" jsonschema:"the off-agenda subject to park for later, when drifting"`
	Message     *string `json:"message,omitempty" jsonschema:"short, polite moderator remark steering back to the agenda, when drifting"`
}

var topicSpec = structured.MustSpec[topicVerdict]("topic_verdict",
	"Whether the conversation drifted away from the meeting agenda.",
	func(v *topicVerdict) error {
		if err := checkConfidence(v.Confidence); err != nil {
			return err
		}
		if v.IsDrift && deref(v.ParkedTopic) == "" && deref(v.Message) == "" {
			return errors.New("is_drift requires parked_topic or message")
		}
		return nil
	})

var defaultTopicConfig = Config{ContextWindow: 6, MinConfidence: 0.7, MaxAttempts: 2, AttemptTimeout: 8 * time.Second}

// Topic flags utterances that leave the agenda.
type Topic struct{ base }

func NewTopic(r *structured.Runner, cfg Config, log *logrus.Entry) *Topic {
	return &Topic{base{
		name:   "topic",
		kind:   models.KindTopicDrift,
		runner: r,
		cfg:    cfg.withDefaults(defaultTopicConfig),
		log:    log,
	}}
}

func (a *Topic) Propose(ctx context.Context, u models.TranscriptEntry, snap *meeting.Snapshot) (models.InterventionCandidate, bool) {
	agenda := snap.Meeting.Agenda
	if agenda == "" {
		return models.InterventionCandidate{}, false
	}

	res := structured.Run(ctx, a.runner, a.request(topicPrompt(snap, u, a.cfg.ContextWindow)), topicSpec)
	if !res.OK() {
		a.noVerdict(snap, u.Sequence, res.Outcome, res.Attempts, res.Err)
		return models.InterventionCandidate{}, false
	}
	v := res.Value
	if !v.IsDrift || v.Confidence < a.cfg.MinConfidence {
		return models.InterventionCandidate{}, false
	}

	parked := deref(v.ParkedTopic)
	msg := deref(v.Message)
	if msg == "" {
		msg = fmt.Sprintf("Let's park %q for later and get back to the agenda: %s.", parked, agenda)
	}
	return models.InterventionCandidate{
		Kind:          a.kind,
		Confidence:    v.Confidence,
		Justification: v.Reason,
		Message:       msg,
		Metadata:      models.InterventionMetadata{ParkedTopic: parked},
		Sequence:      u.Sequence,
		Agent:         a.name,
	}, true
}

func topicPrompt(snap *meeting.Snapshot, u models.TranscriptEntry, window int) string {
	return fmt.Sprintf(`You moderate a live meeting and watch for topic drift.

Meeting: %s
Agenda:
%s

Recent conversation:
%s

Latest utterance [%d] %s: %s

Decide whether the latest utterance drifts away from the agenda. Brief small talk that returns to the agenda is not drift.
If it drifts, name the off-agenda subject as parked_topic and write a short, friendly message that steers the group back.`,
		snap.Meeting.Title, snap.Meeting.Agenda, transcriptLines(snap.Recent(window)), u.Sequence, u.Label(), u.Text)
}
