package services

import (
	"context"
	"errors"
	"time"

	"github.com/GradientHair/GradientHair/internal/cache"
	"github.com/GradientHair/GradientHair/internal/models"
	pgrepo "github.com/GradientHair/GradientHair/internal/repositories/postgres"
	"github.com/GradientHair/GradientHair/internal/storage"
	"github.com/GradientHair/GradientHair/internal/utils"
)

type ReportService interface {
	Get(ctx context.Context, meetingID string) (*models.ReviewRecord, error)
	Artifacts(ctx context.Context, meetingID string) ([]storage.Artifact, error)
}

type reportService struct {
	reviews   pgrepo.ReviewRepository
	artifacts storage.ArtifactStore // optional
	cache     cache.Cache           // optional

	reportTTL time.Duration
	urlTTL    time.Duration
}

func NewReportService(reviews pgrepo.ReviewRepository, artifacts storage.ArtifactStore, c cache.Cache) ReportService {
	return &reportService{
		reviews:   reviews,
		artifacts: artifacts,
		cache:     c,
		reportTTL: 10 * time.Minute,
		urlTTL:    15 * time.Minute,
	}
}

func (s *reportService) Get(ctx context.Context, meetingID string) (*models.ReviewRecord, error) {
	const op = "ReportService.Get"

	if meetingID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "meeting_id is required", nil)
	}
	row, err := cache.Remember(ctx, s.cache, cache.ReportKey(meetingID), s.reportTTL, func(ctx context.Context) (*models.ReviewRecord, error) {
		return s.reviews.GetByMeetingID(ctx, meetingID)
	})
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "no review for this meeting yet", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get review", err)
	}
	return row, nil
}

// Artifacts lists the meeting documents with signed download URLs. The cached list
// expires well before the URLs do.
func (s *reportService) Artifacts(ctx context.Context, meetingID string) ([]storage.Artifact, error) {
	const op = "ReportService.Artifacts"

	if meetingID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "meeting_id is required", nil)
	}
	if s.artifacts == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "artifact storage is not configured", nil)
	}
	out, err := cache.Remember(ctx, s.cache, cache.ArtifactsKey(meetingID), s.urlTTL/3, func(ctx context.Context) ([]storage.Artifact, error) {
		list, err := s.artifacts.List(ctx, storage.MeetingPrefix(meetingID))
		if err != nil {
			return nil, err
		}
		for i := range list {
			url, err := s.artifacts.SignedURL(list[i].Object, s.urlTTL)
			if err != nil {
				return nil, err
			}
			list[i].URL = url
		}
		return list, nil
	})
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to list artifacts", err)
	}
	if len(out) == 0 {
		return nil, utils.E(utils.CodeNotFound, op, "no artifacts for this meeting", nil)
	}
	return out, nil
}
