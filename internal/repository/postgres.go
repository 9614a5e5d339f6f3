package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/internal/repository/model"
	"gorm.io/gorm"
)

type PostgresSessionRepository struct {
	db *gorm.DB
}

func NewPostgresSessionRepository(db *gorm.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

func (r *PostgresSessionRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	session := &model.Session{
		RoomID:    room.ID,
		User1ID:   room.ParticipantA,
		User2ID:   room.ParticipantB,
		StartedAt: room.StartedAt.UTC(),
	}

	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrSessionExists
		}
		return err
	}
	return nil
}

func (r *PostgresSessionRepository) Finish(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	endedAt := room.EndedAt.UTC()
	duration := int(endedAt.Sub(room.StartedAt.UTC()) / time.Second)
	if duration < 0 {
		duration = 0
	}

	updates := map[string]any{
		"ended_at":         endedAt,
		"duration_seconds": duration,
		"end_reason":       room.EndReason,
		"offers":           room.Offers,
		"answers":          room.Answers,
		"candidates":       room.Candidates,
	}

	res := r.db.WithContext(ctx).Model(&model.Session{}).Where("room_id = ?", room.ID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresSessionRepository) GetByRoomID(ctx context.Context, roomID uuid.UUID) (*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var session model.Session
	err := r.db.WithContext(ctx).First(&session, "room_id = ?", roomID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return toSessionRecord(&session), nil
}

func (r *PostgresSessionRepository) List(ctx context.Context) ([]*SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sessions []model.Session
	if err := r.db.WithContext(ctx).Order("started_at desc").Find(&sessions).Error; err != nil {
		return nil, err
	}

	result := make([]*SessionRecord, 0, len(sessions))
	for i := range sessions {
		result = append(result, toSessionRecord(&sessions[i]))
	}
	return result, nil
}

type PostgresUserRepository struct {
	db *gorm.DB
}

func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	if err := r.db.WithContext(ctx).Create(userModel).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return err
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return toDomainUser(&user), nil
}

func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	userModel := toModelUser(user)

	updateData := map[string]any{
		"name":       userModel.Name,
		"is_guest":   userModel.IsGuest,
		"updated_at": userModel.UpdatedAt,
	}

	if userModel.Email == nil {
		updateData["email"] = gorm.Expr("NULL")
	} else {
		updateData["email"] = userModel.Email
	}

	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userModel.ID).Updates(updateData)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserEmailExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func toSessionRecord(s *model.Session) *SessionRecord {
	rec := &SessionRecord{
		RoomID:          s.RoomID,
		User1ID:         s.User1ID,
		User2ID:         s.User2ID,
		StartedAt:       s.StartedAt.UTC().Format(time.RFC3339),
		DurationSeconds: s.DurationSeconds,
		EndReason:       s.EndReason,
		Offers:          s.Offers,
		Answers:         s.Answers,
		Candidates:      s.Candidates,
	}
	if s.EndedAt != nil {
		rec.EndedAt = s.EndedAt.UTC().Format(time.RFC3339)
	}
	return rec
}

func toModelUser(user *domain.User) *model.User {
	var email *string
	if user.Email != "" {
		e := user.Email
		email = &e
	}
	return &model.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

func toDomainUser(user *model.User) *domain.User {
	email := ""
	if user.Email != nil {
		email = *user.Email
	}

	return &domain.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     email,
		IsGuest:   user.IsGuest,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}
