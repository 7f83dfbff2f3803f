// Package moderation runs the per-meeting pipeline: ingest an utterance, fan the
// detectors out over a snapshot, arbitrate, and review once the meeting ends.
package moderation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GradientHair/GradientHair/internal/arbiter"
	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/detection"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/review"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSuperseded   = errors.New("moderation: round superseded by a newer utterance")
	ErrSessionEnded = errors.New("moderation: session already ended")
	errEnding       = errors.New("moderation: meeting ending")
)

// Persister receives the frozen meeting and the review outcome. reviewErr is non-nil
// when no report could be produced.
type Persister interface {
	Archive(ctx context.Context, snap *meeting.Snapshot, report *models.ReviewReport, reviewErr error) error
}

// Journal is optionally implemented by a Persister that also wants live writes.
type Journal interface {
	SaveUtterance(ctx context.Context, e models.TranscriptEntry) error
	SaveIntervention(ctx context.Context, iv models.Intervention) error
	SaveStatus(ctx context.Context, m models.Meeting) error
}

type Deps struct {
	Agents           []detection.Agent
	Triage           *detection.Triage
	Arbiter          *arbiter.Arbiter
	Review           *review.Pipeline
	Broadcaster      broadcast.Broadcaster
	Persister        Persister
	RoundTimeout     time.Duration
	CancelSuperseded bool
	Log              *logrus.Entry
}

type Session struct {
	store *meeting.Store
	deps  Deps
	log   *logrus.Entry

	base       context.Context
	cancelBase context.CancelCauseFunc

	mu          sync.Mutex
	cancelRound context.CancelCauseFunc
	roundSeq    int64 // sequence of the newest round started
	rounds      sync.WaitGroup
	ended       atomic.Bool
}

func NewSession(store *meeting.Store, deps Deps) *Session {
	if deps.Broadcaster == nil {
		deps.Broadcaster = broadcast.Nop{}
	}
	if deps.RoundTimeout <= 0 {
		deps.RoundTimeout = 25 * time.Second
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	base, cancel := context.WithCancelCause(context.Background())
	return &Session{
		store:      store,
		deps:       deps,
		log:        deps.Log.WithField("meeting_id", store.MeetingID()),
		base:       base,
		cancelBase: cancel,
	}
}

func (s *Session) MeetingID() string { return s.store.MeetingID() }

func (s *Session) Snapshot() *meeting.Snapshot { return s.store.Snapshot() }

// Ingest appends a finalized utterance and starts its analysis round in the background.
// Store rejections (gaps, completed meeting) are returned; the round's outcome is not.
func (s *Session) Ingest(ctx context.Context, u models.FinalizedUtterance) error {
	if s.ended.Load() {
		return meeting.ErrMeetingCompleted
	}
	before := s.store.Snapshot().Status()
	entry := models.TranscriptEntry{
		Speaker:     u.Speaker,
		SpeakerName: u.SpeakerName,
		Text:        u.Text,
		Timestamp:   u.Timestamp,
		Sequence:    u.Sequence,
		DurationMS:  u.DurationMS,
		Confidence:  u.Confidence,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return err
	}
	snap := s.store.Snapshot()
	accepted, _ := snap.Entry(u.Sequence)

	if before == models.MeetingPreparing {
		s.deps.Broadcaster.OnStatus(ctx, snap.MeetingID(), broadcast.Status{Status: models.MeetingInProgress})
		s.journal(ctx, func(ctx context.Context, j Journal) error { return j.SaveStatus(ctx, snap.Meeting) })
	}
	s.deps.Broadcaster.OnStatsUpdate(ctx, snap.MeetingID(), snap.Stats)
	s.journal(ctx, func(ctx context.Context, j Journal) error { return j.SaveUtterance(ctx, accepted) })

	s.startRound(accepted, snap)
	return nil
}

// Interim forwards non-final text to observers. It never touches the transcript.
func (s *Session) Interim(ctx context.Context, in broadcast.Interim) {
	if in.SpeakerName == "" {
		in.SpeakerName = s.store.Snapshot().Meeting.DisplayName(in.Speaker)
	}
	s.deps.Broadcaster.OnInterim(ctx, s.MeetingID(), in)
}

func (s *Session) startRound(u models.TranscriptEntry, snap *meeting.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended.Load() {
		return
	}
	// concurrent ingests can reach here out of order; an older utterance never
	// displaces the round of a newer one
	if u.Sequence <= s.roundSeq {
		s.log.WithFields(logrus.Fields{"sequence": u.Sequence, "newest": s.roundSeq}).Debug("round skipped, newer round already started")
		return
	}
	if s.deps.CancelSuperseded && s.cancelRound != nil {
		s.cancelRound(ErrSuperseded)
	}
	ctx, cancel := context.WithCancelCause(s.base)
	s.cancelRound = cancel
	s.roundSeq = u.Sequence
	s.rounds.Add(1)
	go func() {
		defer s.rounds.Done()
		defer cancel(nil)
		s.runRound(ctx, u, snap)
	}()
}

func (s *Session) runRound(ctx context.Context, u models.TranscriptEntry, snap *meeting.Snapshot) {
	log := s.log.WithField("sequence", u.Sequence)
	plan := s.deps.Triage.Plan(u, snap, s.deps.Agents)
	if len(plan) == 0 {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, s.deps.RoundTimeout)
	defer cancel()

	// indexed by plan position so arbitration sees proposing order
	proposals := make([]*models.InterventionCandidate, len(plan))
	g, gctx := errgroup.WithContext(rctx)
	for i, a := range plan {
		g.Go(func() error {
			if c, ok := a.Propose(gctx, u, snap); ok {
				proposals[i] = &c
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		log.WithField("cause", context.Cause(ctx)).Debug("round abandoned before arbitration")
		return
	}

	var candidates []models.InterventionCandidate
	for _, c := range proposals {
		if c != nil {
			candidates = append(candidates, *c)
		}
	}
	log.WithFields(logrus.Fields{"dispatched": len(plan), "candidates": len(candidates)}).Debug("round joined")

	iv, err := s.deps.Arbiter.Resolve(ctx, candidates, s.store)
	if err != nil {
		if !errors.Is(err, meeting.ErrMeetingCompleted) {
			log.WithError(err).Warn("arbitration failed")
		}
		return
	}
	if iv == nil {
		return
	}
	s.deps.Broadcaster.OnIntervention(ctx, iv.MeetingID, *iv)
	s.journal(ctx, func(ctx context.Context, j Journal) error { return j.SaveIntervention(ctx, *iv) })
}

// Drain waits for in-flight rounds.
func (s *Session) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.rounds.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End freezes the meeting, runs the review once, and hands both to the persister. It
// returns the review report, or the review error when there is none. Once started it
// runs to completion even if ctx is cancelled; only the wait for in-flight rounds is
// bounded.
func (s *Session) End(ctx context.Context) (*models.ReviewReport, error) {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	if !s.ended.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil, ErrSessionEnded
	}
	if s.cancelRound != nil {
		s.cancelRound(errEnding)
	}
	s.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, s.deps.RoundTimeout)
	if err := s.Drain(dctx); err != nil {
		s.log.WithError(err).Warn("rounds still running at end")
	}
	cancel()
	snap, err := s.store.Freeze(ctx)
	if err != nil {
		s.cancelBase(errEnding)
		s.store.Close()
		return nil, err
	}
	s.cancelBase(errEnding)
	s.deps.Broadcaster.OnStatus(ctx, snap.MeetingID(), broadcast.Status{Status: models.MeetingCompleted, Message: "meeting ended"})

	var (
		report    *models.ReviewReport
		reviewErr = errors.New("review: not configured")
	)
	if s.deps.Review != nil {
		report, reviewErr = s.deps.Review.Summarize(ctx, snap)
	}

	if s.deps.Persister != nil {
		if perr := s.deps.Persister.Archive(ctx, snap, report, reviewErr); perr != nil {
			s.log.WithError(perr).Error("archive failed")
			if reviewErr == nil {
				return report, perr
			}
		}
	}
	s.store.Close()
	return report, reviewErr
}

// Close abandons the session without a review.
func (s *Session) Close() {
	s.mu.Lock()
	s.ended.Store(true)
	s.mu.Unlock()
	s.cancelBase(errEnding)
	s.rounds.Wait()
	s.store.Close()
}

// journal writes outlive the request or round that triggered them.
func (s *Session) journal(ctx context.Context, fn func(context.Context, Journal) error) {
	j, ok := s.deps.Persister.(Journal)
	if !ok {
		return
	}
	if err := fn(context.WithoutCancel(ctx), j); err != nil {
		s.log.WithError(err).Warn("journal write failed")
	}
}
