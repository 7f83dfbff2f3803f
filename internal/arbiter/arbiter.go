// Package arbiter turns a round's candidates into at most one intervention.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Recorder is the slice of the meeting store the arbiter needs.
type Recorder interface {
	Snapshot() *meeting.Snapshot
	RecordIntervention(ctx context.Context, iv models.Intervention) error
}

// Screener gets the last word on a picked candidate. It may rewrite it, including its
// kind, or withhold it.
type Screener interface {
	Screen(ctx context.Context, c models.InterventionCandidate, snap *meeting.Snapshot) (models.InterventionCandidate, bool)
}

type Policy struct {
	// Priority lists kinds from most to least important. Unlisted kinds rank last.
	Priority []models.InterventionKind `yaml:"priority"`
	// Cooldowns are minimum sequence distances between two interventions of a kind.
	Cooldowns       map[models.InterventionKind]int64 `yaml:"cooldowns"`
	MaxMessageRunes int                               `yaml:"max_message_runes"`
}

func DefaultPolicy() Policy {
	return Policy{
		Priority: []models.InterventionKind{
			models.KindPrincipleViolation,
			models.KindTopicDrift,
			models.KindParticipationImbalance,
			models.KindDecisionStyle,
		},
		Cooldowns: map[models.InterventionKind]int64{
			models.KindTopicDrift:             5,
			models.KindPrincipleViolation:     4,
			models.KindParticipationImbalance: 8,
			models.KindDecisionStyle:          5,
		},
		MaxMessageRunes: 220,
	}
}

type Arbiter struct {
	policy Policy
	rank   map[models.InterventionKind]int
	maxWin int64
	screen Screener
	log    *logrus.Entry
	now    func() time.Time
	newID  func() string
}

func New(p Policy, log *logrus.Entry) *Arbiter {
	if p.MaxMessageRunes <= 0 {
		p.MaxMessageRunes = DefaultPolicy().MaxMessageRunes
	}
	a := &Arbiter{
		policy: p,
		rank:   make(map[models.InterventionKind]int, len(p.Priority)),
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for i, k := range p.Priority {
		if _, dup := a.rank[k]; !dup {
			a.rank[k] = i
		}
	}
	for _, w := range p.Cooldowns {
		a.maxWin = max(a.maxWin, w)
	}
	return a
}

// WithScreener runs s on each candidate after priority ordering, before it is recorded.
func (a *Arbiter) WithScreener(s Screener) *Arbiter {
	a.screen = s
	return a
}

func (a *Arbiter) Policy() Policy { return a.policy }

func (a *Arbiter) rankOf(k models.InterventionKind) int {
	if r, ok := a.rank[k]; ok {
		return r
	}
	return len(a.rank)
}

// Resolve picks the highest-priority candidate that is not cooling down and records it.
// No surviving candidate is a normal outcome and returns nil, nil.
func (a *Arbiter) Resolve(ctx context.Context, candidates []models.InterventionCandidate, rec Recorder) (*models.Intervention, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	snap := rec.Snapshot()

	eligible := make([]models.InterventionCandidate, 0, len(candidates))
	for _, c := range candidates {
		if reason := a.reject(c, snap); reason != "" {
			a.log.WithFields(logrus.Fields{
				"kind":     c.Kind,
				"sequence": c.Sequence,
				"agent":    c.Agent,
				"reason":   reason,
			}).Debug("candidate discarded")
			continue
		}
		eligible = append(eligible, c)
	}
	// stable: equal ranks keep proposing order
	sort.SliceStable(eligible, func(i, j int) bool {
		return a.rankOf(eligible[i].Kind) < a.rankOf(eligible[j].Kind)
	})

	for _, c := range eligible {
		if a.screen != nil {
			sc, ok := a.screen.Screen(ctx, c, snap)
			if !ok {
				a.log.WithFields(logrus.Fields{"kind": c.Kind, "sequence": c.Sequence}).Debug("candidate withheld by screening")
				continue
			}
			// a re-tagged candidate answers to its new kind's cooldown
			if sc.Kind != c.Kind {
				if reason := a.reject(sc, snap); reason != "" {
					a.log.WithFields(logrus.Fields{"kind": sc.Kind, "sequence": sc.Sequence, "reason": reason}).Debug("screened candidate discarded")
					continue
				}
			}
			c = sc
		}
		iv := a.materialize(c, snap)
		err := rec.RecordIntervention(ctx, iv)
		if err == nil {
			a.log.WithFields(logrus.Fields{
				"intervention_id": iv.ID,
				"kind":            iv.Kind,
				"sequence":        iv.Sequence,
				"agent":           iv.Agent,
			}).Info("intervention emitted")
			return &iv, nil
		}
		// the store moved on since the snapshot; try the next candidate
		if errors.Is(err, meeting.ErrCooldownActive) || errors.Is(err, meeting.ErrStaleIntervention) {
			a.log.WithError(err).WithField("kind", c.Kind).Debug("candidate lost to a newer intervention")
			continue
		}
		return nil, err
	}
	return nil, nil
}

func (a *Arbiter) reject(c models.InterventionCandidate, snap *meeting.Snapshot) string {
	if strings.TrimSpace(c.Message) == "" {
		return "empty message"
	}
	if last, ok := snap.LastIntervention(); ok && c.Sequence <= last.Sequence {
		return "stale"
	}
	if a.cooldown(c.Kind, snap).Blocks(c.Sequence) {
		return "cooldown"
	}
	if a.duplicate(c, snap) {
		return "duplicate message"
	}
	return ""
}

func (a *Arbiter) cooldown(k models.InterventionKind, snap *meeting.Snapshot) models.InterventionCooldown {
	c := snap.Cooldown(k)
	if c.Window <= 0 {
		c.Window = a.policy.Cooldowns[k]
	}
	return c
}

// duplicate reports whether the same words were emitted within the longest cooldown window.
func (a *Arbiter) duplicate(c models.InterventionCandidate, snap *meeting.Snapshot) bool {
	msg := normalize(a.capMessage(c.Message))
	for i := len(snap.Interventions) - 1; i >= 0; i-- {
		prev := snap.Interventions[i]
		if c.Sequence-prev.Sequence >= a.maxWin {
			break
		}
		if normalize(prev.Message) == msg {
			return true
		}
	}
	return false
}

func (a *Arbiter) materialize(c models.InterventionCandidate, snap *meeting.Snapshot) models.Intervention {
	return models.Intervention{
		ID:             a.newID(),
		MeetingID:      snap.MeetingID(),
		Kind:           c.Kind,
		Message:        a.capMessage(c.Message),
		Metadata:       c.Metadata,
		TriggerContext: triggerContext(c, snap),
		Agent:          c.Agent,
		Confidence:     c.Confidence,
		Timestamp:      a.now().UTC(),
		Sequence:       c.Sequence,
	}
}

func (a *Arbiter) capMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= a.policy.MaxMessageRunes {
		return msg
	}
	r := []rune(msg)
	return strings.TrimRight(string(r[:a.policy.MaxMessageRunes-1]), " \t\n") + "…"
}

func triggerContext(c models.InterventionCandidate, snap *meeting.Snapshot) string {
	src := fmt.Sprintf("source: #%d", c.Sequence)
	if e, ok := snap.Entry(c.Sequence); ok {
		src = fmt.Sprintf("source: #%d %s: %s", e.Sequence, e.Label(), e.Text)
	}
	if c.Justification != "" {
		return fmt.Sprintf("%s | %s: %s", src, c.Agent, c.Justification)
	}
	return src
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
