package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
)

// InMemorySessionRepository backs dev mode (empty DSN) and tests.
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*SessionRecord
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]*SessionRecord),
	}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[room.ID]; ok {
		return ErrSessionExists
	}

	r.sessions[room.ID] = &SessionRecord{
		RoomID:    room.ID,
		User1ID:   room.ParticipantA,
		User2ID:   room.ParticipantB,
		StartedAt: room.StartedAt.UTC().Format(time.RFC3339),
	}
	return nil
}

func (r *InMemorySessionRepository) Finish(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[room.ID]
	if !ok {
		return ErrSessionNotFound
	}

	endedAt := room.EndedAt.UTC()
	duration := int(endedAt.Sub(room.StartedAt.UTC()) / time.Second)
	if duration < 0 {
		duration = 0
	}

	rec.EndedAt = endedAt.Format(time.RFC3339)
	rec.DurationSeconds = duration
	rec.EndReason = room.EndReason
	rec.Offers = room.Offers
	rec.Answers = room.Answers
	rec.Candidates = room.Candidates
	return nil
}

func (r *InMemorySessionRepository) GetByRoomID(ctx context.Context, roomID uuid.UUID) (*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[roomID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := *rec
	return &copied, nil
}

func (r *InMemorySessionRepository) List(ctx context.Context) ([]*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*SessionRecord, 0, len(r.sessions))
	for _, rec := range r.sessions {
		copied := *rec
		result = append(result, &copied)
	}
	return result, nil
}

type InMemoryUserRepository struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*domain.User
	emails map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:  make(map[uuid.UUID]*domain.User),
		emails: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user.Email != "" {
		if _, ok := r.emails[user.Email]; ok {
			return ErrUserEmailExists
		}
		r.emails[user.Email] = user.ID
	}

	r.users[user.ID] = user
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (r *InMemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}

	r.users[user.ID] = user
	if user.Email != "" {
		r.emails[user.Email] = user.ID
	}
	return nil
}
