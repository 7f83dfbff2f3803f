package detection

import (
	"strings"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
)

// Rule gates one detector kind. A detector is dispatched every Every-th utterance, or
// whenever the utterance contains one of Keywords.
type Rule struct {
	Every    int64    `yaml:"every"`
	Keywords []string `yaml:"keywords"`
}

type TriageConfig struct {
	MinTranscript int                             `yaml:"min_transcript"`
	Rules         map[models.InterventionKind]Rule `yaml:"rules"`
}

func DefaultTriageConfig() TriageConfig {
	return TriageConfig{
		MinTranscript: 1,
		Rules: map[models.InterventionKind]Rule{
			models.KindTopicDrift:             {Every: 1},
			models.KindPrincipleViolation:     {Every: 1},
			models.KindParticipationImbalance: {Every: 1},
		},
	}
}

// Triage decides which detectors a round runs. It is a pure function of the utterance
// and the snapshot.
type Triage struct {
	cfg TriageConfig
}

func NewTriage(cfg TriageConfig) *Triage {
	rules := make(map[models.InterventionKind]Rule, len(cfg.Rules))
	for k, r := range cfg.Rules {
		kw := make([]string, 0, len(r.Keywords))
		for _, w := range r.Keywords {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				kw = append(kw, w)
			}
		}
		rules[k] = Rule{Every: r.Every, Keywords: kw}
	}
	cfg.Rules = rules
	return &Triage{cfg: cfg}
}

func (t *Triage) Plan(u models.TranscriptEntry, snap *meeting.Snapshot, agents []Agent) []Agent {
	if len(snap.Transcript) < t.cfg.MinTranscript {
		return nil
	}
	text := strings.ToLower(u.Text)
	var out []Agent
	for _, a := range agents {
		r, ok := t.cfg.Rules[a.Kind()]
		if !ok {
			r = Rule{Every: 1}
		}
		if r.Every > 0 && u.Sequence%r.Every == 0 {
			out = append(out, a)
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
