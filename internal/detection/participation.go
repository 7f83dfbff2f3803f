package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/participation"
	"github.com/GradientHair/GradientHair/internal/structured"
	"github.com/sirupsen/logrus"
)

type participationVerdict struct {
	Intervene        bool    `json:"intervene" jsonschema:"true when the moderator should rebalance the conversation now"`
	Confidence       float64 `json:"confidence" jsonschema:"confidence in the verdict between 0 and 1"`
	SuggestedSpeaker *string `json:"suggested_speaker,omitempty" jsonschema:"participant id to invite next"`
	Message          *string `json:"message,omitempty" jsonschema:"short, inclusive moderator remark, when intervening"`
}

var participationSpec = structured.MustSpec[participationVerdict]("participation_verdict",
	"Whether speaking time is unbalanced enough to invite someone else in.",
	nil)

var defaultParticipationConfig = Config{MinConfidence: 0.6, MaxAttempts: 2, AttemptTimeout: 8 * time.Second}

// Participation looks only at speaking statistics. What was just said never reaches its
// prompt, so it fires the same way whatever the utterance content.
type Participation struct {
	base
	thresholds participation.Thresholds
}

func NewParticipation(r *structured.Runner, cfg Config, th participation.Thresholds, log *logrus.Entry) *Participation {
	if th.MinUtterances <= 0 {
		th = participation.DefaultThresholds()
	}
	return &Participation{
		base: base{
			name:   "participation",
			kind:   models.KindParticipationImbalance,
			runner: r,
			cfg:    cfg.withDefaults(defaultParticipationConfig),
			log:    log,
		},
		thresholds: th,
	}
}

func (a *Participation) Propose(ctx context.Context, u models.TranscriptEntry, snap *meeting.Snapshot) (models.InterventionCandidate, bool) {
	roster := snap.Meeting.Participants
	finding, ok := participation.Imbalance(snap.Stats, roster, a.thresholds)
	if !ok {
		return models.InterventionCandidate{}, false
	}

	spec := participationSpec.WithCheck(func(v *participationVerdict) error {
		if err := checkConfidence(v.Confidence); err != nil {
			return err
		}
		if !v.Intervene {
			return nil
		}
		if deref(v.Message) == "" {
			return errors.New("intervene requires message")
		}
		if id := deref(v.SuggestedSpeaker); id != "" && !onRoster(roster, id) {
			return fmt.Errorf("suggested_speaker %q is not a participant id", id)
		}
		return nil
	})

	res := structured.Run(ctx, a.runner, a.request(participationPrompt(snap, finding)), spec)
	if !res.OK() {
		a.noVerdict(snap, u.Sequence, res.Outcome, res.Attempts, res.Err)
		return models.InterventionCandidate{}, false
	}
	v := res.Value
	if !v.Intervene || v.Confidence < a.cfg.MinConfidence {
		return models.InterventionCandidate{}, false
	}

	suggested := deref(v.SuggestedSpeaker)
	if suggested == "" && len(finding.Quiet) > 0 {
		suggested = finding.Quiet[0]
	}
	return models.InterventionCandidate{
		Kind:          a.kind,
		Confidence:    v.Confidence,
		Justification: describeFinding(snap, finding),
		Message:       deref(v.Message),
		Metadata:      models.InterventionMetadata{SuggestedSpeaker: suggested},
		Sequence:      u.Sequence,
		Agent:         a.name,
	}, true
}

func onRoster(roster []models.Participant, id string) bool {
	for _, p := range roster {
		if p.ID == id {
			return true
		}
	}
	return false
}

func describeFinding(snap *meeting.Snapshot, f participation.Finding) string {
	var parts []string
	if f.Dominant != "" {
		parts = append(parts, fmt.Sprintf("%s holds %.0f%% of speaking time", snap.Meeting.DisplayName(f.Dominant), f.DominantShare*100))
	}
	if len(f.Quiet) > 0 {
		names := make([]string, len(f.Quiet))
		for i, id := range f.Quiet {
			names[i] = snap.Meeting.DisplayName(id)
		}
		parts = append(parts, "barely heard: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

func participationPrompt(snap *meeting.Snapshot, f participation.Finding) string {
	var sb strings.Builder
	for _, p := range snap.Meeting.Participants {
		s := snap.Stats.Speakers[p.ID]
		fmt.Fprintf(&sb, "- id=%s name=%s role=%s utterances=%d speaking_ms=%d share=%.2f\n",
			p.ID, p.Name, p.Role, s.Utterances, s.SpeakingMS, s.Share)
	}
	return fmt.Sprintf(`You moderate a live meeting and keep participation balanced.

Participants and speaking statistics after %d utterances:
%s
Heuristic finding: %s

Decide whether the moderator should step in now. If so, suggest the participant id to invite next and write one short, inclusive remark. Do not single anyone out negatively.`,
		snap.Stats.TotalUtterances, sb.String(), describeFinding(snap, f))
}
