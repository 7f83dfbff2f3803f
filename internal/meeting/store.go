// Package meeting owns the live state of one meeting. All writes go through a single
// goroutine; readers take lock-free snapshots.
package meeting

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/participation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type command struct {
	fn    func(*state) error
	reply chan error
}

type state struct {
	meeting       models.Meeting
	transcript    []models.TranscriptEntry
	interventions []models.Intervention
	stats         models.ParticipationStats
	cooldowns     map[models.InterventionKind]models.InterventionCooldown
	version       uint64
	now           func() time.Time
}

type Store struct {
	cmds chan command
	quit chan struct{}
	done chan struct{}
	snap atomic.Pointer[Snapshot]
	log  *logrus.Entry

	closeOnce sync.Once
}

type Option func(*config)

type config struct {
	windows       map[models.InterventionKind]int64
	log           *logrus.Entry
	history       []models.TranscriptEntry
	interventions []models.Intervention
	now           func() time.Time
}

// WithCooldowns sets the per-kind cooldown windows, in utterances.
func WithCooldowns(w map[models.InterventionKind]int64) Option {
	return func(c *config) { c.windows = w }
}

func WithLogger(l *logrus.Entry) Option { return func(c *config) { c.log = l } }

// WithHistory seeds the store with an already accepted log, e.g. when recovering a
// meeting. The log must be gap-free; stats and cooldown clocks are rebuilt from it.
func WithHistory(transcript []models.TranscriptEntry, interventions []models.Intervention) Option {
	return func(c *config) {
		c.history = transcript
		c.interventions = interventions
	}
}

func withClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

func NewStore(m models.Meeting, opts ...Option) *Store {
	cfg := config{log: logrus.NewEntry(logrus.StandardLogger()), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := &state{
		meeting:       m,
		transcript:    append([]models.TranscriptEntry(nil), cfg.history...),
		interventions: append([]models.Intervention(nil), cfg.interventions...),
		stats:         participation.Fold(cfg.history),
		cooldowns:     make(map[models.InterventionKind]models.InterventionCooldown, len(cfg.windows)),
		now:           cfg.now,
	}
	for kind, w := range cfg.windows {
		st.cooldowns[kind] = models.InterventionCooldown{Kind: kind, Window: w}
	}
	for _, iv := range st.interventions {
		c := st.cooldowns[iv.Kind]
		c.Kind = iv.Kind
		c.LastSequence = iv.Sequence
		st.cooldowns[iv.Kind] = c
	}

	s := &Store{
		cmds: make(chan command),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  cfg.log.WithField("meeting_id", m.MeetingID),
	}
	s.publish(st)
	go s.run(st)
	return s
}

func (s *Store) run(st *state) {
	defer close(s.done)
	for {
		select {
		case c := <-s.cmds:
			c.reply <- c.fn(st)
		case <-s.quit:
			return
		}
	}
}

// do hands fn to the writer goroutine. Once queued a command always runs to completion,
// so a caller whose context ends while waiting still sees the real outcome.
func (s *Store) do(ctx context.Context, fn func(*state) error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- command{fn: fn, reply: reply}:
	case <-s.done:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrStoreClosed
		}
	}
}

// Snapshot returns the latest published view without touching the writer.
func (s *Store) Snapshot() *Snapshot { return s.snap.Load() }

func (s *Store) MeetingID() string { return s.Snapshot().Meeting.MeetingID }

// Append accepts the next finalized utterance. Only last+1 is accepted; anything else is
// rejected with a SequenceGapError and logged. The first accepted utterance starts the
// meeting.
func (s *Store) Append(ctx context.Context, e models.TranscriptEntry) error {
	return s.do(ctx, func(st *state) error {
		if st.meeting.Status == models.MeetingCompleted {
			s.log.WithField("sequence", e.Sequence).Warn("utterance rejected: meeting completed")
			return ErrMeetingCompleted
		}
		last := st.stats.LastSequence
		if e.Sequence != last+1 {
			s.log.WithFields(logrus.Fields{
				"sequence":      e.Sequence,
				"last_accepted": last,
				"speaker":       e.Speaker,
			}).Warn("utterance rejected: sequence gap")
			return &SequenceGapError{Last: last, Got: e.Sequence}
		}

		if st.meeting.Status == models.MeetingPreparing {
			now := st.now().UTC()
			st.meeting.Status = models.MeetingInProgress
			st.meeting.StartedAt = &now
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.MeetingID = st.meeting.MeetingID
		if e.SpeakerName == "" {
			e.SpeakerName = st.meeting.DisplayName(e.Speaker)
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = st.now().UTC()
		}

		st.transcript = append(st.transcript, e)
		st.stats = participation.FoldOne(st.stats, e)
		s.publish(st)
		return nil
	})
}

// RecordIntervention appends iv to the history and restarts the cooldown clock of its
// kind, in one step. It re-checks cooldown and ordering against the current state since
// the caller decided on an older snapshot.
func (s *Store) RecordIntervention(ctx context.Context, iv models.Intervention) error {
	return s.do(ctx, func(st *state) error {
		if st.meeting.Status == models.MeetingCompleted {
			return ErrMeetingCompleted
		}
		if n := len(st.interventions); n > 0 && iv.Sequence <= st.interventions[n-1].Sequence {
			return ErrStaleIntervention
		}
		c := st.cooldowns[iv.Kind]
		if c.Blocks(iv.Sequence) {
			return ErrCooldownActive
		}

		iv.MeetingID = st.meeting.MeetingID
		st.interventions = append(st.interventions, iv)
		c.Kind = iv.Kind
		c.LastSequence = iv.Sequence
		st.cooldowns[iv.Kind] = c
		s.publish(st)
		return nil
	})
}

// Freeze completes the meeting and returns the final snapshot. It succeeds once; later
// calls get ErrMeetingCompleted.
func (s *Store) Freeze(ctx context.Context) (*Snapshot, error) {
	var frozen *Snapshot
	err := s.do(ctx, func(st *state) error {
		if st.meeting.Status == models.MeetingCompleted {
			return ErrMeetingCompleted
		}
		now := st.now().UTC()
		st.meeting.Status = models.MeetingCompleted
		st.meeting.EndedAt = &now
		frozen = s.publish(st)
		return nil
	})
	return frozen, err
}

// Close stops the writer goroutine. Snapshots stay readable.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Store) publish(st *state) *Snapshot {
	st.version++
	m := st.meeting
	m.Participants = clip(m.Participants)
	m.Principles = clip(m.Principles)
	if m.StartedAt != nil {
		t := *m.StartedAt
		m.StartedAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		m.EndedAt = &t
	}
	snap := &Snapshot{
		Meeting:       m,
		Transcript:    clip(st.transcript),
		Interventions: clip(st.interventions),
		Stats:         st.stats, // FoldOne never mutates a published map
		Cooldowns:     maps.Clone(st.cooldowns),
		Version:       st.version,
	}
	s.snap.Store(snap)
	return snap
}

func clip[T any](s []T) []T { return s[:len(s):len(s)] }
