package service

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/internal/repository"
)

type sentEvent struct {
	event   string
	payload any
}

// fakeConn records everything sent to it, standing in for a websocket.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []sentEvent
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.New().String()}
}

func (c *fakeConn) ID() string {
	return c.id
}

func (c *fakeConn) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.events = append(c.events, sentEvent{event: event, payload: payload})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) eventsOf(event string) []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentEvent
	for _, e := range c.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) lastMatch(t *testing.T) domain.MatchNotification {
	t.Helper()
	matches := c.eventsOf(domain.EventMatchFound)
	if len(matches) == 0 {
		t.Fatalf("no match-found event on %s", c.id)
	}
	notif, ok := matches[len(matches)-1].payload.(domain.MatchNotification)
	if !ok {
		t.Fatalf("match-found payload has wrong type %T", matches[len(matches)-1].payload)
	}
	return notif
}

// testStack wires the full server core against in-memory storage.
type testStack struct {
	presence *PresenceService
	rooms    *RoomService
	match    *MatchService
	relay    *RelayService
	sessions *repository.InMemorySessionRepository
}

func newTestStack() *testStack {
	log := slog.New(slog.DiscardHandler)
	sessions := repository.NewInMemorySessionRepository()
	presence := NewPresenceService(log)
	rooms := NewRoomService(sessions, presence, log)
	return &testStack{
		presence: presence,
		rooms:    rooms,
		match:    NewMatchService(presence, rooms, log),
		relay:    NewRelayService(presence, rooms, log),
		sessions: sessions,
	}
}

func (s *testStack) connect(identity string) *fakeConn {
	conn := newFakeConn()
	s.presence.Register(identity, conn)
	return conn
}
