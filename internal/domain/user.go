package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity collaborator's profile record. The signaling core
// only needs a verified identity string; everything else is a thin wrapper
// around the store.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	IsGuest   bool      `json:"is_guest"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the opaque string the signaling core keys everything on.
func (u *User) Identity() string {
	return u.ID.String()
}

func NewGuestUser(name string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Name:      name,
		IsGuest:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewUser(name string, email string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
