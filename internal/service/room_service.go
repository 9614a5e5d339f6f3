package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/internal/repository"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
)

// End reasons recorded on the session row and sent with call-ended.
const (
	EndReasonPeer               = "ended_by_peer"
	EndReasonPartnerDisconnect  = "partner_disconnected"
	EndReasonSignalingReachable = "partner disconnected during signaling"
)

// RoomService owns the lifecycle of every active two-party room. All map
// mutations happen behind one mutex; a participant belongs to at most one
// non-closed room at any instant.
type RoomService struct {
	log      *slog.Logger
	sessions repository.SessionRepository
	presence *PresenceService

	mu         sync.RWMutex
	active     map[uuid.UUID]*domain.Room
	byIdentity map[string]uuid.UUID
}

func NewRoomService(sessions repository.SessionRepository, presence *PresenceService, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		log:        log,
		sessions:   sessions,
		presence:   presence,
		active:     make(map[uuid.UUID]*domain.Room),
		byIdentity: make(map[string]uuid.UUID),
	}
}

// CreateRoom pairs a and b into a forming room with the given initiator and
// writes the session row. Fails if either identity already holds a room.
func (s *RoomService) CreateRoom(ctx context.Context, a, b, initiator string) (*domain.Room, error) {
	const op = "service.room.create"

	s.mu.Lock()
	if _, busy := s.byIdentity[a]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}
	if _, busy := s.byIdentity[b]; busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}

	room := domain.NewRoom(a, b, initiator)
	s.active[room.ID] = room
	s.byIdentity[a] = room.ID
	s.byIdentity[b] = room.ID
	s.mu.Unlock()

	if err := s.sessions.Create(ctx, room); err != nil {
		s.mu.Lock()
		delete(s.active, room.ID)
		delete(s.byIdentity, a)
		delete(s.byIdentity, b)
		s.mu.Unlock()
		s.log.Error("session insert failed", slog.String("op", op), sl.Err(err))
		return nil, err
	}

	s.log.Info("room created",
		slog.String("op", op),
		slog.String("room_id", room.ID.String()),
		slog.String("participant_a", a),
		slog.String("participant_b", b),
		slog.String("initiator", initiator),
	)
	return room, nil
}

// Get returns a non-closed room by id.
func (s *RoomService) Get(roomID uuid.UUID) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.active[roomID]
	return room, ok
}

// RoomFor returns the non-closed room identity participates in, if any.
func (s *RoomService) RoomFor(identity string) (*domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.byIdentity[identity]
	if !ok {
		return nil, false
	}
	room, ok := s.active[roomID]
	return room, ok
}

// MarkActive moves a forming room to active once negotiation is underway.
func (s *RoomService) MarkActive(roomID uuid.UUID) {
	s.mu.RLock()
	room, ok := s.active[roomID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	room.Mutex.Lock()
	if room.State == domain.RoomStateForming {
		room.State = domain.RoomStateActive
	}
	room.Mutex.Unlock()
}

// EndRoom tears the room down: ending then closed, ended_at recorded, row
// updated, and the notify event (call-ended or partner-disconnected)
// delivered to each reachable participant except skipIdentity.
func (s *RoomService) EndRoom(ctx context.Context, roomID uuid.UUID, reason string, skipIdentity string, event string) error {
	const op = "service.room.end"

	s.mu.Lock()
	room, ok := s.active[roomID]
	if !ok {
		s.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(s.active, roomID)
	delete(s.byIdentity, room.ParticipantA)
	delete(s.byIdentity, room.ParticipantB)
	s.mu.Unlock()

	room.Mutex.Lock()
	room.State = domain.RoomStateEnding
	room.EndedAt = time.Now().UTC()
	room.EndReason = reason
	room.State = domain.RoomStateClosed
	room.Mutex.Unlock()

	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
		slog.String("reason", reason),
	)

	if err := s.sessions.Finish(ctx, room); err != nil {
		log.Error("session update failed", sl.Err(err))
	}

	payload := map[string]any{"room_id": roomID.String(), "reason": reason}
	for _, identity := range []string{room.ParticipantA, room.ParticipantB} {
		if identity == skipIdentity {
			continue
		}
		conn, ok := s.presence.Lookup(identity)
		if !ok {
			continue
		}
		if err := conn.Send(event, payload); err != nil {
			log.Debug("teardown notify failed", slog.String("identity", identity), sl.Err(err))
		}
	}

	log.Info("room closed")
	return nil
}

// EndRoomByUser handles an explicit end-call from identity. The partner is
// told call-ended with the given reason; the requester already knows.
func (s *RoomService) EndRoomByUser(ctx context.Context, identity string, reason string) error {
	room, ok := s.RoomFor(identity)
	if !ok {
		return ErrNotInRoom
	}
	if reason == "" {
		reason = EndReasonPeer
	}
	return s.EndRoom(ctx, room.ID, reason, identity, domain.EventCallEnded)
}

// HandleDisconnect is the transport-close path: if identity held a room, the
// surviving participant gets exactly one partner-disconnected event and the
// room closes.
func (s *RoomService) HandleDisconnect(ctx context.Context, identity string) {
	room, ok := s.RoomFor(identity)
	if !ok {
		return
	}
	if err := s.EndRoom(ctx, room.ID, EndReasonPartnerDisconnect, identity, domain.EventPartnerDisconnected); err != nil {
		s.log.Debug("disconnect teardown", sl.Err(err))
	}
}

// ActiveCount reports the number of non-closed rooms.
func (s *RoomService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}
