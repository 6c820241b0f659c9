package services

import (
	"context"

	"github.com/vitapersonal/authserver/types"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	GetByID(ctx context.Context, id int) (types.Profile, error)
	ListByUser(ctx context.Context, userID int) ([]types.Profile, error)
	Create(ctx context.Context, profile types.Profile) (types.Profile, error)
	Update(ctx context.Context, profile types.Profile) (types.Profile, error)
}

// ProfileService encapsulates profile use-cases.
type ProfileService struct {
	repo ProfileRepository
}

func NewProfileService(repo ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

func (s *ProfileService) GetByID(ctx context.Context, id int) (types.Profile, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ProfileService) ListByUser(ctx context.Context, userID int) ([]types.Profile, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *ProfileService) Create(ctx context.Context, profile types.Profile) (types.Profile, error) {
	return s.repo.Create(ctx, profile)
}

func (s *ProfileService) Update(ctx context.Context, profile types.Profile) (types.Profile, error) {
	return s.repo.Update(ctx, profile)
}
