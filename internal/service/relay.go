package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
)

// RelayService forwards offer/answer/candidate payloads strictly between
// the two verified participants of a room. Anything else is a
// SignalingViolation: logged, dropped, connection left alone.
type RelayService struct {
	log      *slog.Logger
	presence *PresenceService
	rooms    *RoomService
}

func NewRelayService(presence *PresenceService, rooms *RoomService, log *slog.Logger) *RelayService {
	if log == nil {
		log = slog.Default()
	}
	return &RelayService{log: log, presence: presence, rooms: rooms}
}

// Relay validates msg against the room's membership and forwards the
// payload verbatim to the target's current connection.
func (s *RelayService) Relay(ctx context.Context, msg *domain.SignalMessage) error {
	const op = "service.relay"
	if msg == nil {
		return ErrSignalingViolation
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("type", msg.Type),
		slog.String("from", msg.From),
		slog.String("to", msg.To),
	)

	switch msg.Type {
	case domain.EventOffer, domain.EventAnswer, domain.EventCandidate:
	default:
		log.Warn("unsupported signal type dropped")
		return ErrSignalingViolation
	}

	roomID, err := uuid.Parse(msg.RoomID)
	if err != nil {
		log.Warn("bad room id in signal", sl.Err(err))
		return ErrSignalingViolation
	}

	room, ok := s.rooms.Get(roomID)
	if !ok {
		log.Warn("signal for unknown room dropped", slog.String("room_id", msg.RoomID))
		return ErrSignalingViolation
	}

	room.Mutex.RLock()
	relayable := room.Relayable()
	validPair := room.IsPair(msg.From, msg.To)
	room.Mutex.RUnlock()

	if !relayable || !validPair {
		log.Warn("signal outside room membership dropped", slog.String("room_id", msg.RoomID))
		return ErrSignalingViolation
	}

	conn, ok := s.presence.Lookup(msg.To)
	if !ok {
		log.Info("relay target unreachable, closing room")
		if err := s.rooms.EndRoom(ctx, roomID, EndReasonSignalingReachable, msg.To, domain.EventCallEnded); err != nil {
			log.Debug("teardown after unreachable target", sl.Err(err))
		}
		return ErrPartnerUnreachable
	}

	room.Mutex.Lock()
	switch msg.Type {
	case domain.EventOffer:
		room.Offers++
	case domain.EventAnswer:
		room.Answers++
	case domain.EventCandidate:
		room.Candidates++
	}
	room.Mutex.Unlock()

	if err := conn.Send(msg.Type, msg); err != nil {
		log.Info("relay write failed, closing room", sl.Err(err))
		if endErr := s.rooms.EndRoom(ctx, roomID, EndReasonSignalingReachable, msg.To, domain.EventCallEnded); endErr != nil {
			log.Debug("teardown after relay write failure", sl.Err(endErr))
		}
		return ErrPartnerUnreachable
	}

	// Negotiation traffic means both sides acknowledged the match.
	s.rooms.MarkActive(roomID)

	log.Debug("signal relayed", slog.String("room_id", msg.RoomID))
	return nil
}
