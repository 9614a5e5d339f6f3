package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
)

// Error taxonomy. Every failure a client can cause or observe is one of
// these; the websocket controller converts them to a single error event
// carrying a kind.
var (
	ErrAlreadyQueued      = errors.New("identity already queued")
	ErrAlreadyInRoom      = errors.New("identity already in a room")
	ErrPartnerUnreachable = errors.New("partner has no live connection")
	ErrSignalingViolation = errors.New("signal outside sender's room")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotInRoom          = errors.New("identity is not in a room")
)

// ErrorKind maps a taxonomy error to its wire kind.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyQueued):
		return "AlreadyQueued"
	case errors.Is(err, ErrAlreadyInRoom):
		return "AlreadyInRoom"
	case errors.Is(err, ErrPartnerUnreachable):
		return "PartnerUnreachable"
	case errors.Is(err, ErrSignalingViolation):
		return "SignalingViolation"
	case errors.Is(err, ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, ErrNotInRoom):
		return "NotInRoom"
	default:
		return "Internal"
	}
}

type PresenceInteractor interface {
	Register(identity string, conn domain.Connection)
	Unregister(identity string, connID string) bool
	Lookup(identity string) (domain.Connection, bool)
	Touch(identity string)
	OnlineCount() int
}

type MatchInteractor interface {
	Enqueue(ctx context.Context, identity string, prefs domain.Preferences) (*domain.Room, error)
	Cancel(identity string) bool
	Waiting() int
}

type RoomInteractor interface {
	Get(roomID uuid.UUID) (*domain.Room, bool)
	RoomFor(identity string) (*domain.Room, bool)
	EndRoomByUser(ctx context.Context, identity string, reason string) error
	HandleDisconnect(ctx context.Context, identity string)
}

type RelayInteractor interface {
	Relay(ctx context.Context, msg *domain.SignalMessage) error
}

type UserInteractor interface {
	CreateUser(ctx context.Context, name string, email string) (*domain.User, error)
	CreateGuest(ctx context.Context, name string) (*domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}
