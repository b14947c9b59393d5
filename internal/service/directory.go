package service

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/repository"
)

// DirectoryService covers the thin profile surface: just enough of a
// user to own a wallet and enough of an astrologer to carry a rate.
type DirectoryService struct {
	users       repository.UserRepository
	astrologers repository.AstrologerRepository
}

func NewDirectoryService(users repository.UserRepository, astrologers repository.AstrologerRepository) *DirectoryService {
	return &DirectoryService{users: users, astrologers: astrologers}
}

func (s *DirectoryService) CreateUser(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	if params.Name == "" {
		return nil, apperrors.MissingRequired("name")
	}
	if params.Email == "" {
		return nil, apperrors.MissingRequired("email")
	}
	if params.Coins < 0 {
		return nil, apperrors.InvalidInput("coins", "must not be negative")
	}

	params.ID = uuid.NewString()
	user, err := s.users.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return user, nil
}

func (s *DirectoryService) CreateAstrologer(ctx context.Context, params model.CreateAstrologerParams) (*model.Astrologer, error) {
	if params.Name == "" {
		return nil, apperrors.MissingRequired("name")
	}
	if params.RatePerMinute <= 0 {
		return nil, apperrors.InvalidInput("ratePerMinute", "must be positive")
	}

	params.ID = uuid.NewString()
	astro, err := s.astrologers.Create(ctx, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return astro, nil
}

func (s *DirectoryService) GetAstrologer(ctx context.Context, id string) (*model.Astrologer, error) {
	astro, err := s.astrologers.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if astro == nil {
		return nil, apperrors.NotFound("Astrologer")
	}
	return astro, nil
}

func (s *DirectoryService) ListAstrologers(ctx context.Context, limit, offset int) ([]model.Astrologer, error) {
	astros, err := s.astrologers.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return astros, nil
}
