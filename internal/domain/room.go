package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type RoomState string

const (
	RoomStateForming RoomState = "forming"
	RoomStateActive  RoomState = "active"
	RoomStateEnding  RoomState = "ending"
	RoomStateClosed  RoomState = "closed"
)

// Room is the authoritative record of a matched two-party session.
// Exactly two distinct participants; the initiator is one of them.
type Room struct {
	Mutex        sync.RWMutex
	ID           uuid.UUID
	ParticipantA string
	ParticipantB string
	Initiator    string
	State        RoomState
	StartedAt    time.Time
	EndedAt      time.Time
	EndReason    string

	// relayed message counters, recorded on the session row at teardown
	Offers     int
	Answers    int
	Candidates int
}

// NewRoom constructs a forming room between two distinct identities.
// The initiator must be one of the two participants.
func NewRoom(a, b, initiator string) *Room {
	return &Room{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		Initiator:    initiator,
		State:        RoomStateForming,
		StartedAt:    time.Now().UTC(),
	}
}

// Has reports whether identity is one of the room's two participants.
func (r *Room) Has(identity string) bool {
	if r == nil {
		return false
	}
	return identity == r.ParticipantA || identity == r.ParticipantB
}

// IsPair reports whether {from, to} is exactly the room's participant set.
// Membership is a two-element set comparison, not a substring or loose check.
func (r *Room) IsPair(from, to string) bool {
	if r == nil || from == to {
		return false
	}
	return (from == r.ParticipantA && to == r.ParticipantB) ||
		(from == r.ParticipantB && to == r.ParticipantA)
}

// Partner returns the other participant of the room.
func (r *Room) Partner(identity string) (string, bool) {
	switch identity {
	case r.ParticipantA:
		return r.ParticipantB, true
	case r.ParticipantB:
		return r.ParticipantA, true
	}
	return "", false
}

// IsInitiator reports the role assigned to identity at match time.
func (r *Room) IsInitiator(identity string) bool {
	return identity == r.Initiator
}

// Relayable reports whether the room still accepts signaling traffic.
func (r *Room) Relayable() bool {
	return r.State == RoomStateForming || r.State == RoomStateActive
}
