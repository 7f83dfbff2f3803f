package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MeetingRepository interface {
	Create(ctx context.Context, m *models.Meeting) error
	GetByMeetingID(ctx context.Context, meetingID string) (*models.Meeting, error)
	UpdateStatus(ctx context.Context, m models.Meeting) error
	// List returns meetings newest first. An empty hostID lists every host.
	List(ctx context.Context, hostID string, limit int64) ([]models.Meeting, error)
}

type meetingRepo struct {
	col *mongo.Collection
}

func NewMeetingRepo(db *mongo.Database) MeetingRepository {
	return &meetingRepo{col: db.Collection("meetings")}
}

func (r *meetingRepo) Create(ctx context.Context, m *models.Meeting) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *meetingRepo) GetByMeetingID(ctx context.Context, meetingID string) (*models.Meeting, error) {
	var m models.Meeting
	err := r.col.FindOne(ctx, bson.M{"meeting_id": meetingID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &m, err
}

// UpdateStatus writes the lifecycle fields only; roster and principles are immutable
// once the meeting exists.
func (r *meetingRepo) UpdateStatus(ctx context.Context, m models.Meeting) error {
	set := bson.M{"status": m.Status}
	if m.StartedAt != nil {
		set["started_at"] = m.StartedAt.UTC()
	}
	if m.EndedAt != nil {
		set["ended_at"] = m.EndedAt.UTC()
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"meeting_id": m.MeetingID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *meetingRepo) List(ctx context.Context, hostID string, limit int64) ([]models.Meeting, error) {
	filter := bson.M{}
	if hostID != "" {
		filter["host_id"] = hostID
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Meeting{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
