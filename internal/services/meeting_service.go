package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/moderation"
	"github.com/GradientHair/GradientHair/internal/participation"
	mongorepo "github.com/GradientHair/GradientHair/internal/repositories/mongo"
	"github.com/GradientHair/GradientHair/internal/utils"

	"github.com/google/uuid"
)

type CreateMeetingInput struct {
	Title        string               `json:"title" binding:"required"`
	Agenda       string               `json:"agenda"`
	Participants []models.Participant `json:"participants" binding:"required"`
	Principles   []models.Principle   `json:"principles"`
	// PrincipleIDs name library principles to copy in after Principles.
	PrincipleIDs []string `json:"principle_ids"`
}

// MeetingView is what readers see of a meeting: the live snapshot while it runs, the
// persisted record afterwards.
type MeetingView struct {
	Meeting       models.Meeting            `json:"meeting"`
	Transcript    []models.TranscriptEntry  `json:"transcript"`
	Interventions []models.Intervention     `json:"interventions"`
	Stats         models.ParticipationStats `json:"stats"`
	Live          bool                      `json:"live"`
}

type EndResult struct {
	Meeting     models.Meeting       `json:"meeting"`
	Report      *models.ReviewReport `json:"report"`
	ReviewError string               `json:"review_error,omitempty"`
}

// Sessions is the live side of the service, implemented by moderation.Manager.
type Sessions interface {
	Open(m models.Meeting, opts ...meeting.Option) (*moderation.Session, error)
	Get(meetingID string) (*moderation.Session, bool)
	Ingest(ctx context.Context, u models.FinalizedUtterance) error
	Interim(ctx context.Context, meetingID string, in broadcast.Interim) error
	End(ctx context.Context, meetingID string) (*models.ReviewReport, error)
}

// PrincipleResolver copies library principles into a new meeting.
type PrincipleResolver interface {
	Resolve(ctx context.Context, principleIDs []string) ([]models.Principle, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type MeetingService interface {
	Create(ctx context.Context, hostID string, in CreateMeetingInput) (*models.Meeting, error)
	// List returns the caller's meetings newest first; admins see every host's.
	List(ctx context.Context, callerID string, admin bool, limit int64) ([]models.Meeting, error)
	Get(ctx context.Context, meetingID string) (*MeetingView, error)
	// Admit returns the meeting if callerID may feed or watch it.
	Admit(ctx context.Context, callerID, meetingID string, admin bool) (*MeetingView, error)
	Ingest(ctx context.Context, u models.FinalizedUtterance) error
	Interim(ctx context.Context, meetingID string, in broadcast.Interim) error
	End(ctx context.Context, callerID, meetingID string, admin bool) (*EndResult, error)
}

type meetingService struct {
	meetings      mongorepo.MeetingRepository
	transcripts   mongorepo.TranscriptRepository
	interventions mongorepo.InterventionRepository
	sessions      Sessions
	library       PrincipleResolver
}

// NewMeetingService builds the service; library may be nil, in which case principle_ids
// are rejected.
func NewMeetingService(meetings mongorepo.MeetingRepository, transcripts mongorepo.TranscriptRepository, interventions mongorepo.InterventionRepository, sessions Sessions, library PrincipleResolver) MeetingService {
	return &meetingService{meetings: meetings, transcripts: transcripts, interventions: interventions, sessions: sessions, library: library}
}

func (s *meetingService) Create(ctx context.Context, hostID string, in CreateMeetingInput) (*models.Meeting, error) {
	const op = "MeetingService.Create"

	if hostID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "host is required", nil)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "title is required", nil)
	}
	if len(in.Participants) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "at least one participant is required", nil)
	}
	seen := make(map[string]bool, len(in.Participants))
	for _, p := range in.Participants {
		if p.ID == "" {
			return nil, utils.E(utils.CodeInvalidArgument, op, "participant id is required", nil)
		}
		if seen[p.ID] {
			return nil, utils.E(utils.CodeInvalidArgument, op, "duplicate participant id "+p.ID, nil)
		}
		seen[p.ID] = true
	}
	principles := make([]models.Principle, 0, len(in.Principles))
	for _, p := range in.Principles {
		if strings.TrimSpace(p.Name) == "" {
			return nil, utils.E(utils.CodeInvalidArgument, op, "principle name is required", nil)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		principles = append(principles, p)
	}
	if len(in.PrincipleIDs) > 0 {
		if s.library == nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "principle library is not available", nil)
		}
		fromLibrary, err := s.library.Resolve(ctx, in.PrincipleIDs)
		if err != nil {
			return nil, err
		}
		principles = append(principles, fromLibrary...)
	}

	m := &models.Meeting{
		MeetingID:    uuid.NewString(),
		HostID:       hostID,
		Title:        strings.TrimSpace(in.Title),
		Agenda:       in.Agenda,
		Status:       models.MeetingPreparing,
		Participants: in.Participants,
		Principles:   principles,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.meetings.Create(ctx, m); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create meeting", err)
	}
	if _, err := s.sessions.Open(*m); err != nil {
		return nil, utils.E(utils.CodeConflict, op, "failed to open moderation session", err)
	}
	return m, nil
}

func (s *meetingService) List(ctx context.Context, callerID string, admin bool, limit int64) ([]models.Meeting, error) {
	const op = "MeetingService.List"

	if callerID == "" && !admin {
		return nil, utils.E(utils.CodeUnauthorized, op, "caller is required", nil)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	host := callerID
	if admin {
		host = ""
	}
	out, err := s.meetings.List(ctx, host, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list meetings", err)
	}
	// live rows lag the session; show the session's status instead
	for i := range out {
		if sess, ok := s.sessions.Get(out[i].MeetingID); ok {
			out[i] = sess.Snapshot().Meeting
		}
	}
	return out, nil
}

func (s *meetingService) Get(ctx context.Context, meetingID string) (*MeetingView, error) {
	const op = "MeetingService.Get"

	if meetingID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "meeting_id is required", nil)
	}
	if sess, ok := s.sessions.Get(meetingID); ok {
		snap := sess.Snapshot()
		return &MeetingView{
			Meeting:       snap.Meeting,
			Transcript:    snap.Transcript,
			Interventions: snap.Interventions,
			Stats:         snap.Stats,
			Live:          true,
		}, nil
	}

	m, err := s.meetings.GetByMeetingID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "meeting not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get meeting", err)
	}
	transcript, err := s.transcripts.ListByMeeting(ctx, meetingID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list transcript", err)
	}
	ivs, err := s.interventions.ListByMeeting(ctx, meetingID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interventions", err)
	}
	return &MeetingView{
		Meeting:       *m,
		Transcript:    transcript,
		Interventions: ivs,
		Stats:         participation.Fold(transcript),
	}, nil
}

func (s *meetingService) Admit(ctx context.Context, callerID, meetingID string, admin bool) (*MeetingView, error) {
	const op = "MeetingService.Admit"

	view, err := s.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !admin && !view.Meeting.Admits(callerID) {
		return nil, utils.E(utils.CodeForbidden, op, "not a participant of this meeting", nil)
	}
	return view, nil
}

func (s *meetingService) Ingest(ctx context.Context, u models.FinalizedUtterance) error {
	const op = "MeetingService.Ingest"

	if u.MeetingID == "" || u.Speaker == "" || strings.TrimSpace(u.Text) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "meeting_id, speaker, and text are required", nil)
	}
	if u.Sequence <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "sequence must be positive", nil)
	}
	if err := s.checkSpeaker(op, u.MeetingID, u.Speaker); err != nil {
		return err
	}
	return sessionError(op, s.sessions.Ingest(ctx, u))
}

func (s *meetingService) Interim(ctx context.Context, meetingID string, in broadcast.Interim) error {
	const op = "MeetingService.Interim"

	if meetingID == "" || in.Speaker == "" {
		return utils.E(utils.CodeInvalidArgument, op, "meeting_id and speaker are required", nil)
	}
	if err := s.checkSpeaker(op, meetingID, in.Speaker); err != nil {
		return err
	}
	return sessionError(op, s.sessions.Interim(ctx, meetingID, in))
}

func (s *meetingService) End(ctx context.Context, callerID, meetingID string, admin bool) (*EndResult, error) {
	const op = "MeetingService.End"

	if meetingID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "meeting_id is required", nil)
	}
	sess, ok := s.sessions.Get(meetingID)
	if !ok {
		if _, err := s.meetings.GetByMeetingID(ctx, meetingID); errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "meeting not found", err)
		}
		return nil, utils.E(utils.CodePrecondition, op, "meeting is not live", nil)
	}
	if !admin && sess.Snapshot().Meeting.HostID != callerID {
		return nil, utils.E(utils.CodeForbidden, op, "only the host can end the meeting", nil)
	}

	report, err := s.sessions.End(ctx, meetingID)
	switch {
	case errors.Is(err, moderation.ErrSessionNotFound), errors.Is(err, moderation.ErrSessionEnded):
		return nil, utils.E(utils.CodePrecondition, op, "meeting already ended", err)
	case errors.Is(err, meeting.ErrStoreClosed):
		return nil, utils.E(utils.CodeUnavailable, op, "meeting state unavailable", err)
	}

	out := &EndResult{Meeting: sess.Snapshot().Meeting, Report: report}
	if err != nil {
		out.ReviewError = err.Error()
	}
	return out, nil
}

// checkSpeaker rejects speakers missing from a live meeting's roster. Meetings that are
// not live are left to the session lookup.
func (s *meetingService) checkSpeaker(op, meetingID, speaker string) error {
	sess, ok := s.sessions.Get(meetingID)
	if !ok {
		return nil
	}
	if m := sess.Snapshot().Meeting; !m.HasSpeaker(speaker) {
		return utils.E(utils.CodeInvalidArgument, op, "speaker is not a participant", nil)
	}
	return nil
}

func sessionError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case utils.CodeOf(err) != utils.CodeInternal:
		return err
	case errors.Is(err, moderation.ErrSessionNotFound):
		return utils.E(utils.CodeNotFound, op, "no live meeting", err)
	case errors.Is(err, meeting.ErrSequenceGap):
		return utils.E(utils.CodePrecondition, op, "sequence gap", err)
	case errors.Is(err, meeting.ErrMeetingCompleted), errors.Is(err, meeting.ErrStoreClosed):
		return utils.E(utils.CodePrecondition, op, "meeting already ended", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return utils.E(utils.CodeTimeout, op, "request cancelled", err)
	default:
		return utils.E(utils.CodeInternal, op, "failed to ingest", err)
	}
}
