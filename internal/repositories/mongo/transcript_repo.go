package mongo

import (
	"context"

	"github.com/GradientHair/GradientHair/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TranscriptRepository interface {
	Insert(ctx context.Context, e models.TranscriptEntry) error
	ListByMeeting(ctx context.Context, meetingID string, limit int64) ([]models.TranscriptEntry, error)
}

type transcriptRepo struct {
	col *mongo.Collection
}

func NewTranscriptRepo(db *mongo.Database) TranscriptRepository {
	return &transcriptRepo{col: db.Collection("transcripts")}
}

// Insert is idempotent on (meeting_id, sequence); a replayed entry overwrites nothing.
func (r *transcriptRepo) Insert(ctx context.Context, e models.TranscriptEntry) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"meeting_id": e.MeetingID, "sequence": e.Sequence},
		bson.M{"$setOnInsert": e},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *transcriptRepo) ListByMeeting(ctx context.Context, meetingID string, limit int64) ([]models.TranscriptEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, bson.M{"meeting_id": meetingID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.TranscriptEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
