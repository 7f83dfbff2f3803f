package mongo

import (
	"context"

	"github.com/GradientHair/GradientHair/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type InterventionRepository interface {
	Insert(ctx context.Context, iv models.Intervention) error
	ListByMeeting(ctx context.Context, meetingID string) ([]models.Intervention, error)
}

type interventionRepo struct {
	col *mongo.Collection
}

func NewInterventionRepo(db *mongo.Database) InterventionRepository {
	return &interventionRepo{col: db.Collection("interventions")}
}

func (r *interventionRepo) Insert(ctx context.Context, iv models.Intervention) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"id": iv.ID},
		bson.M{"$setOnInsert": iv},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *interventionRepo) ListByMeeting(ctx context.Context, meetingID string) ([]models.Intervention, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"meeting_id": meetingID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Intervention
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
