package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/internal/repository"
)

// UserService is the thin identity collaborator: profile rows only, no
// signaling state.
type UserService struct {
	users repository.UserRepository
	log   *slog.Logger
}

func NewUserService(users repository.UserRepository, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	return &UserService{users: users, log: log}
}

func (s *UserService) CreateUser(ctx context.Context, name string, email string) (*domain.User, error) {
	const op = "service.user.create"
	if name == "" {
		return nil, errors.New("name is required")
	}

	user := domain.NewUser(name, email)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user created", slog.String("op", op), slog.String("user_id", user.ID.String()))
	return user, nil
}

func (s *UserService) CreateGuest(ctx context.Context, name string) (*domain.User, error) {
	const op = "service.user.guest"
	if name == "" {
		name = "guest"
	}

	user := domain.NewGuestUser(name)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("guest created", slog.String("op", op), slog.String("user_id", user.ID.String()))
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}
