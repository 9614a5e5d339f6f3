package model

import (
	"time"

	"github.com/google/uuid"
)

type Session struct {
	RoomID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	User1ID         string     `gorm:"size:64;index;not null"`
	User2ID         string     `gorm:"size:64;index;not null"`
	StartedAt       time.Time  `gorm:"not null"`
	EndedAt         *time.Time `gorm:"index"`
	DurationSeconds int        `gorm:"not null;default:0"`
	EndReason       string     `gorm:"size:64"`
	Offers          int        `gorm:"not null;default:0"`
	Answers         int        `gorm:"not null;default:0"`
	Candidates      int        `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Email     *string   `gorm:"size:255;uniqueIndex:idx_users_email,where:email IS NOT NULL"`
	IsGuest   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
