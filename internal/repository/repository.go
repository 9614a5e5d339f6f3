package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserEmailExists = errors.New("user with email already exists")
)

// SessionRepository persists the room lifecycle rows: one insert at match
// time, one update at teardown carrying ended_at and the derived duration.
type SessionRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Finish(ctx context.Context, room *domain.Room) error
	GetByRoomID(ctx context.Context, roomID uuid.UUID) (*SessionRecord, error)
	List(ctx context.Context) ([]*SessionRecord, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// SessionRecord is what the store hands back; the live Room stays owned by
// the room service and is never rehydrated from here.
type SessionRecord struct {
	RoomID          uuid.UUID
	User1ID         string
	User2ID         string
	StartedAt       string
	EndedAt         string
	DurationSeconds int
	EndReason       string
	Offers          int
	Answers         int
	Candidates      int
}
