package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/GradientHair/GradientHair/internal/cache"
	"github.com/GradientHair/GradientHair/internal/meeting"
	"github.com/GradientHair/GradientHair/internal/models"
	mongorepo "github.com/GradientHair/GradientHair/internal/repositories/mongo"
	pgrepo "github.com/GradientHair/GradientHair/internal/repositories/postgres"
	"github.com/GradientHair/GradientHair/internal/storage"
	"github.com/GradientHair/GradientHair/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ArchiveService persists meetings. It journals live writes as they happen and, once a
// meeting ends, writes the frozen record, the review row and the markdown artifacts.
type ArchiveService struct {
	meetings      mongorepo.MeetingRepository
	transcripts   mongorepo.TranscriptRepository
	interventions mongorepo.InterventionRepository
	reviews       pgrepo.ReviewRepository
	artifacts     storage.Uploader // optional
	cache         cache.Cache      // optional
	log           *logrus.Entry
}

func NewArchiveService(
	meetings mongorepo.MeetingRepository,
	transcripts mongorepo.TranscriptRepository,
	interventions mongorepo.InterventionRepository,
	reviews pgrepo.ReviewRepository,
	artifacts storage.Uploader,
	c cache.Cache,
	log *logrus.Entry,
) *ArchiveService {
	return &ArchiveService{
		meetings:      meetings,
		transcripts:   transcripts,
		interventions: interventions,
		reviews:       reviews,
		artifacts:     artifacts,
		cache:         c,
		log:           log,
	}
}

func (s *ArchiveService) SaveUtterance(ctx context.Context, e models.TranscriptEntry) error {
	return s.transcripts.Insert(ctx, e)
}

func (s *ArchiveService) SaveIntervention(ctx context.Context, iv models.Intervention) error {
	return s.interventions.Insert(ctx, iv)
}

func (s *ArchiveService) SaveStatus(ctx context.Context, m models.Meeting) error {
	return s.meetings.UpdateStatus(ctx, m)
}

// Archive writes everything a finished meeting leaves behind. Each step runs even when
// an earlier one failed; the joined error reports all of them.
func (s *ArchiveService) Archive(ctx context.Context, snap *meeting.Snapshot, report *models.ReviewReport, reviewErr error) error {
	const op = "ArchiveService.Archive"
	id := snap.MeetingID()
	log := s.log.WithField("meeting_id", id)
	var errs []error

	if err := s.meetings.UpdateStatus(ctx, snap.Meeting); err != nil {
		errs = append(errs, err)
	}
	// journal writes are best effort, so the frozen log is written again in full
	for _, e := range snap.Transcript {
		if err := s.transcripts.Insert(ctx, e); err != nil {
			errs = append(errs, err)
			break
		}
	}
	for _, iv := range snap.Interventions {
		if err := s.interventions.Insert(ctx, iv); err != nil {
			errs = append(errs, err)
			break
		}
	}

	row, err := reviewRecord(id, report, reviewErr, time.Now().UTC())
	if err == nil {
		err = s.reviews.Upsert(ctx, row)
	}
	if err != nil {
		errs = append(errs, err)
	}

	if s.artifacts != nil {
		prefix := storage.MeetingPrefix(id)
		docs := map[string][]byte{prefix + "transcript.md": TranscriptMarkdown(snap)}
		if report != nil {
			docs[prefix+"review.md"] = ReviewMarkdown(snap, report)
		}
		for name, body := range docs {
			if _, err := s.artifacts.Upload(ctx, name, "text/markdown; charset=utf-8", bytes.NewReader(body)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, cache.ReportKey(id), cache.ArtifactsKey(id))
	}

	if err := errors.Join(errs...); err != nil {
		log.WithError(err).Error("archive incomplete")
		return utils.E(utils.CodeUnavailable, op, "failed to archive meeting", err)
	}
	log.WithFields(logrus.Fields{
		"utterances":    len(snap.Transcript),
		"interventions": len(snap.Interventions),
		"reviewed":      report != nil,
	}).Info("meeting archived")
	return nil
}

func reviewRecord(meetingID string, report *models.ReviewReport, reviewErr error, now time.Time) (*models.ReviewRecord, error) {
	row := &models.ReviewRecord{
		ID:        uuid.NewString(),
		MeetingID: meetingID,
		Status:    models.ReviewFailed,
		CreatedAt: now,
	}
	if report == nil {
		if reviewErr != nil {
			row.Failure = reviewErr.Error()
		}
		return row, nil
	}

	items, err := json.Marshal(report.ActionItems)
	if err != nil {
		return nil, err
	}
	assessments, err := json.Marshal(report.PrincipleAssessments)
	if err != nil {
		return nil, err
	}
	row.Status = models.ReviewSucceeded
	row.Summary = report.Summary
	row.Decisions = report.Decisions
	row.Risks = report.Risks
	row.Strengths = report.Strengths
	row.Recommendations = report.Recommendations
	row.ActionItems = datatypes.JSON(items)
	row.Assessments = datatypes.JSON(assessments)
	row.OverallScore = report.OverallScore
	row.Attempts = report.Attempts
	if !report.GeneratedAt.IsZero() {
		row.CreatedAt = report.GeneratedAt
	}
	return row, nil
}
