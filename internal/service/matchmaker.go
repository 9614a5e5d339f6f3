package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
)

// MatchService holds the waiting queue and pairs compatible waiters.
// The queue is a FIFO slice: tie-break is contractual insertion order.
// One mutex guards every queue mutation, so a match removes both entries
// atomically; no observer can see one waiter matched and the other still
// queued. Notifications are sent after the mutex is released.
type MatchService struct {
	log      *slog.Logger
	presence *PresenceService
	rooms    *RoomService

	mu      sync.Mutex
	waiting []*domain.QueueEntry
	index   map[string]*domain.QueueEntry
}

func NewMatchService(presence *PresenceService, rooms *RoomService, log *slog.Logger) *MatchService {
	if log == nil {
		log = slog.Default()
	}
	return &MatchService{
		log:      log,
		presence: presence,
		rooms:    rooms,
		index:    make(map[string]*domain.QueueEntry),
	}
}

// Enqueue registers identity as a waiter and immediately tries to match it.
// Returns the created room on success, or (nil, nil) when the caller must
// wait. Fails with ErrAlreadyQueued / ErrAlreadyInRoom on precondition
// violations; the entry is not inserted in either case.
func (s *MatchService) Enqueue(ctx context.Context, identity string, prefs domain.Preferences) (*domain.Room, error) {
	const op = "service.match.enqueue"
	log := s.log.With(slog.String("op", op), slog.String("identity", identity))

	s.mu.Lock()

	if _, queued := s.index[identity]; queued {
		s.mu.Unlock()
		return nil, ErrAlreadyQueued
	}
	if _, busy := s.rooms.RoomFor(identity); busy {
		s.mu.Unlock()
		return nil, ErrAlreadyInRoom
	}

	entry := domain.NewQueueEntry(identity, prefs)

	candidate := s.firstCompatible(entry)
	if candidate == nil {
		s.waiting = append(s.waiting, entry)
		s.index[identity] = entry
		depth := len(s.waiting)
		s.mu.Unlock()
		log.Info("queued", slog.Int("waiting", depth))
		return nil, nil
	}

	// Both entries leave the queue under the same lock hold: the candidate
	// is removed here and the requester was never inserted.
	s.remove(candidate.Identity)

	// The waiter that was already queued is the initiator.
	room, err := s.rooms.CreateRoom(ctx, candidate.Identity, identity, candidate.Identity)
	if err != nil {
		s.waiting = append([]*domain.QueueEntry{candidate}, s.waiting...)
		s.index[candidate.Identity] = candidate
		s.mu.Unlock()
		log.Error("room create failed, requeueing candidate", sl.Err(err))
		return nil, err
	}
	s.mu.Unlock()

	log.Info("matched",
		slog.String("partner", candidate.Identity),
		slog.String("room_id", room.ID.String()),
	)

	// Delivered outside the lock: a slow partner connection must never
	// stall other queue callers.
	s.notify(room, candidate.Identity)
	s.notify(room, identity)

	return room, nil
}

// Cancel removes identity's queue entry if present; no-op otherwise.
func (s *MatchService) Cancel(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[identity]; !ok {
		return false
	}
	s.remove(identity)
	return true
}

// Waiting reports the current queue depth.
func (s *MatchService) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

// firstCompatible scans waiters in insertion order and returns the first
// whose preferences are mutually compatible with entry and whose connection
// is still live. Stale entries for gone connections are dropped on the way.
func (s *MatchService) firstCompatible(entry *domain.QueueEntry) *domain.QueueEntry {
	kept := s.waiting[:0]
	var found *domain.QueueEntry

	for i, cand := range s.waiting {
		if found != nil {
			kept = append(kept, cand)
			continue
		}
		if _, live := s.presence.Lookup(cand.Identity); !live {
			delete(s.index, cand.Identity)
			continue
		}
		if domain.Compatible(cand, entry) {
			found = cand
			kept = append(kept, s.waiting[i])
			continue
		}
		kept = append(kept, cand)
	}

	s.waiting = kept
	return found
}

func (s *MatchService) remove(identity string) {
	delete(s.index, identity)
	for i, e := range s.waiting {
		if e.Identity == identity {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

func (s *MatchService) notify(room *domain.Room, identity string) {
	conn, ok := s.presence.Lookup(identity)
	if !ok {
		return
	}
	partner, _ := room.Partner(identity)
	err := conn.Send(domain.EventMatchFound, domain.MatchNotification{
		RoomID:      room.ID.String(),
		PartnerID:   partner,
		IsInitiator: room.IsInitiator(identity),
	})
	if err != nil {
		s.log.Debug("match notify failed", slog.String("identity", identity), sl.Err(err))
	}
}
