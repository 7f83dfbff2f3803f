package services

import (
	"context"
	"errors"
	"strings"

	"github.com/GradientHair/GradientHair/internal/models"
	mongorepo "github.com/GradientHair/GradientHair/internal/repositories/mongo"
	"github.com/GradientHair/GradientHair/internal/utils"

	"github.com/google/uuid"
)

type CreatePrincipleInput struct {
	Name    string `json:"name" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// UpdatePrincipleInput changes only the fields it carries.
type UpdatePrincipleInput struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

type PrincipleService interface {
	List(ctx context.Context) ([]models.LibraryPrinciple, error)
	Get(ctx context.Context, principleID string) (*models.LibraryPrinciple, error)
	Create(ctx context.Context, ownerID string, in CreatePrincipleInput) (*models.LibraryPrinciple, error)
	Update(ctx context.Context, callerID, principleID string, in UpdatePrincipleInput, admin bool) (*models.LibraryPrinciple, error)
	Delete(ctx context.Context, callerID, principleID string, admin bool) error
	// Resolve copies library entries into meeting principles, in the order given.
	Resolve(ctx context.Context, principleIDs []string) ([]models.Principle, error)
}

type principleService struct {
	repo mongorepo.PrincipleRepository
}

func NewPrincipleService(repo mongorepo.PrincipleRepository) PrincipleService {
	return &principleService{repo: repo}
}

func (s *principleService) List(ctx context.Context) ([]models.LibraryPrinciple, error) {
	const op = "PrincipleService.List"

	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list principles", err)
	}
	return out, nil
}

func (s *principleService) Get(ctx context.Context, principleID string) (*models.LibraryPrinciple, error) {
	const op = "PrincipleService.Get"

	if principleID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "principle id is required", nil)
	}
	p, err := s.repo.Get(ctx, principleID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "principle not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get principle", err)
	}
	return p, nil
}

func (s *principleService) Create(ctx context.Context, ownerID string, in CreatePrincipleInput) (*models.LibraryPrinciple, error) {
	const op = "PrincipleService.Create"

	if ownerID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "owner is required", nil)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Content) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "name and content are required", nil)
	}
	p := &models.LibraryPrinciple{
		PrincipleID: uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Content:     withHeading(name, in.Content),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create principle", err)
	}
	return p, nil
}

func (s *principleService) Update(ctx context.Context, callerID, principleID string, in UpdatePrincipleInput, admin bool) (*models.LibraryPrinciple, error) {
	const op = "PrincipleService.Update"

	p, err := s.owned(ctx, op, callerID, principleID, admin)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if p.Name = strings.TrimSpace(*in.Name); p.Name == "" {
			return nil, utils.E(utils.CodeInvalidArgument, op, "name must not be empty", nil)
		}
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, utils.E(utils.CodeInvalidArgument, op, "content must not be empty", nil)
		}
		p.Content = withHeading(p.Name, *in.Content)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "principle not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update principle", err)
	}
	return p, nil
}

func (s *principleService) Delete(ctx context.Context, callerID, principleID string, admin bool) error {
	const op = "PrincipleService.Delete"

	if _, err := s.owned(ctx, op, callerID, principleID, admin); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, principleID); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "principle not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete principle", err)
	}
	return nil
}

func (s *principleService) Resolve(ctx context.Context, principleIDs []string) ([]models.Principle, error) {
	const op = "PrincipleService.Resolve"

	out := make([]models.Principle, 0, len(principleIDs))
	for _, id := range principleIDs {
		p, err := s.repo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, utils.ErrNotFound) {
				return nil, utils.E(utils.CodeInvalidArgument, op, "unknown principle "+id, err)
			}
			return nil, utils.E(utils.CodeInternal, op, "failed to load principle", err)
		}
		out = append(out, p.Principle())
	}
	return out, nil
}

func (s *principleService) owned(ctx context.Context, op, callerID, principleID string, admin bool) (*models.LibraryPrinciple, error) {
	p, err := s.Get(ctx, principleID)
	if err != nil {
		return nil, err
	}
	if !admin && p.OwnerID != callerID {
		return nil, utils.E(utils.CodeForbidden, op, "only the owner can change this principle", nil)
	}
	return p, nil
}

// withHeading makes sure a principle document opens with a markdown title.
func withHeading(name, content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "#") {
		return content
	}
	return "# " + name + "\n\n" + content
}
