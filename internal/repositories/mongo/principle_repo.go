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

// PrincipleRepository stores the reusable principle library hosts pick from when they
// create a meeting.
type PrincipleRepository interface {
	Create(ctx context.Context, p *models.LibraryPrinciple) error
	Get(ctx context.Context, principleID string) (*models.LibraryPrinciple, error)
	List(ctx context.Context) ([]models.LibraryPrinciple, error)
	Update(ctx context.Context, p *models.LibraryPrinciple) error
	Delete(ctx context.Context, principleID string) error
}

type principleRepo struct {
	col *mongo.Collection
}

func NewPrincipleRepo(db *mongo.Database) PrincipleRepository {
	return &principleRepo{col: db.Collection("principles")}
}

func (r *principleRepo) Create(ctx context.Context, p *models.LibraryPrinciple) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := r.col.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *principleRepo) Get(ctx context.Context, principleID string) (*models.LibraryPrinciple, error) {
	var p models.LibraryPrinciple
	err := r.col.FindOne(ctx, bson.M{"principle_id": principleID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *principleRepo) List(ctx context.Context) ([]models.LibraryPrinciple, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.LibraryPrinciple{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update rewrites name and content; ownership and creation time never change.
func (r *principleRepo) Update(ctx context.Context, p *models.LibraryPrinciple) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"principle_id": p.PrincipleID}, bson.M{"$set": bson.M{
		"name":       p.Name,
		"content":    p.Content,
		"updated_at": p.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *principleRepo) Delete(ctx context.Context, principleID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"principle_id": principleID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}
