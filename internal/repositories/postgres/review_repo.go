package postgres

import (
	"context"
	"errors"

	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewRepository interface {
	GetByMeetingID(ctx context.Context, meetingID string) (*models.ReviewRecord, error)
	Upsert(ctx context.Context, r *models.ReviewRecord) error
}

type reviewRepo struct {
	db *gorm.DB
}

func NewReviewRepo(db *gorm.DB) ReviewRepository {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) GetByMeetingID(ctx context.Context, meetingID string) (*models.ReviewRecord, error) {
	var row models.ReviewRecord
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *reviewRepo) Upsert(ctx context.Context, row *models.ReviewRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "meeting_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "failure", "summary", "decisions", "risks", "strengths",
				"recommendations", "action_items", "assessments", "overall_score", "attempts", "created_at",
			}),
		}).
		Create(row).Error
}
