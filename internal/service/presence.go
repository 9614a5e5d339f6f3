package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/pairline/internal/domain"
)

// PresenceEvent is emitted to subscribers on every register/unregister.
// The online feed collaborator consumes these; the core only emits.
type PresenceEvent struct {
	Identity    string
	Online      bool
	OnlineCount int
}

// PresenceService maps an authenticated identity to its live connection.
// All mutations happen behind one mutex so lookups never observe a
// half-replaced record.
type PresenceService struct {
	log *slog.Logger

	mu      sync.RWMutex
	records map[string]*domain.PresenceRecord
	subs    []func(PresenceEvent)

	evict func(identity string)
}

func NewPresenceService(log *slog.Logger) *PresenceService {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceService{
		log:     log,
		records: make(map[string]*domain.PresenceRecord),
	}
}

// Subscribe registers a presence feed consumer. Not safe to call after
// connections start arriving; wire subscribers at startup.
func (s *PresenceService) Subscribe(fn func(PresenceEvent)) {
	s.subs = append(s.subs, fn)
}

// SetEvictHandler installs the disconnect path the heartbeat sweeper uses
// for identities whose heartbeats stopped.
func (s *PresenceService) SetEvictHandler(fn func(identity string)) {
	s.evict = fn
}

// Register binds identity to conn, replacing and closing any prior
// connection for that identity (last-writer-wins).
func (s *PresenceService) Register(identity string, conn domain.Connection) {
	const op = "service.presence.register"

	s.mu.Lock()
	prev := s.records[identity]
	s.records[identity] = domain.NewPresenceRecord(identity, conn)
	count := len(s.records)
	s.mu.Unlock()

	if prev != nil && prev.Conn != nil {
		prev.Conn.Close()
	}

	s.log.Info("identity online",
		slog.String("op", op),
		slog.String("identity", identity),
		slog.Int("online", count),
	)
	s.publish(PresenceEvent{Identity: identity, Online: true, OnlineCount: count})
}

// Unregister removes the mapping for identity. When connID is non-empty the
// record is only removed if it still points at that connection, so a stale
// close from a replaced connection cannot knock out its successor.
func (s *PresenceService) Unregister(identity string, connID string) bool {
	const op = "service.presence.unregister"

	s.mu.Lock()
	rec, ok := s.records[identity]
	if !ok || (connID != "" && rec.Conn != nil && rec.Conn.ID() != connID) {
		s.mu.Unlock()
		return false
	}
	delete(s.records, identity)
	count := len(s.records)
	s.mu.Unlock()

	s.log.Info("identity offline",
		slog.String("op", op),
		slog.String("identity", identity),
		slog.Int("online", count),
	)
	s.publish(PresenceEvent{Identity: identity, Online: false, OnlineCount: count})
	return true
}

// Lookup returns the live connection for identity, if any.
func (s *PresenceService) Lookup(identity string) (domain.Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identity]
	if !ok || rec.Conn == nil {
		return nil, false
	}
	return rec.Conn, true
}

// Touch refreshes liveness for identity, called on every heartbeat event.
func (s *PresenceService) Touch(identity string) {
	s.mu.RLock()
	rec, ok := s.records[identity]
	s.mu.RUnlock()
	if ok {
		rec.Touch()
	}
}

func (s *PresenceService) OnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// StartSweeper evicts identities whose last heartbeat is older than maxIdle,
// running the installed evict handler for each. Runs until ctx is done.
func (s *PresenceService) StartSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, identity := range s.stale(maxIdle) {
					s.log.Info("evicting silent identity", slog.String("identity", identity))
					if s.evict != nil {
						s.evict(identity)
					}
				}
			}
		}
	}()
}

func (s *PresenceService) stale(maxIdle time.Duration) []string {
	cutoff := time.Now().UTC().Add(-maxIdle)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for identity, rec := range s.records {
		if rec.LastSeen().Before(cutoff) {
			out = append(out, identity)
		}
	}
	return out
}

// BroadcastEvent sends an event to every currently connected identity.
// Failures are per-connection and ignored; the read loop of a broken
// connection tears it down on its own.
func (s *PresenceService) BroadcastEvent(event string, payload any) {
	s.mu.RLock()
	conns := make([]domain.Connection, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Conn != nil {
			conns = append(conns, rec.Conn)
		}
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Send(event, payload)
	}
}

func (s *PresenceService) publish(event PresenceEvent) {
	for _, fn := range s.subs {
		fn(event)
	}
}
