package service

import (
	"context"
	"testing"
	"time"

	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndRoomByUser_PartnerNotifiedAndSessionFinished(t *testing.T) {
	stack := newTestStack()
	room, connA, connB := pairUp(t, stack)
	ctx := context.Background()

	require.NoError(t, stack.rooms.EndRoomByUser(ctx, "alice", ""))

	// Only the partner hears call-ended; the requester already knows.
	assert.Empty(t, connA.eventsOf(domain.EventCallEnded))
	ended := connB.eventsOf(domain.EventCallEnded)
	require.Len(t, ended, 1)
	payload := ended[0].payload.(map[string]any)
	assert.Equal(t, EndReasonPeer, payload["reason"])
	assert.Equal(t, room.ID.String(), payload["room_id"])

	_, ok := stack.rooms.RoomFor("alice")
	assert.False(t, ok)
	_, ok = stack.rooms.RoomFor("bob")
	assert.False(t, ok)
	assert.Equal(t, 0, stack.rooms.ActiveCount())

	rec, err := stack.sessions.GetByRoomID(ctx, room.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.EndedAt)
	assert.Equal(t, EndReasonPeer, rec.EndReason)
	assert.GreaterOrEqual(t, rec.DurationSeconds, 0)

	endedAt, err := time.Parse(time.RFC3339, rec.EndedAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), endedAt, 5*time.Second)
}

func TestEndRoomByUser_NotInRoom(t *testing.T) {
	stack := newTestStack()
	stack.connect("loner")

	err := stack.rooms.EndRoomByUser(context.Background(), "loner", "")
	require.ErrorIs(t, err, ErrNotInRoom)
	assert.Equal(t, "NotInRoom", ErrorKind(err))
}

func TestHandleDisconnect_SurvivorToldExactlyOnce(t *testing.T) {
	stack := newTestStack()
	room, connA, connB := pairUp(t, stack)
	ctx := context.Background()

	stack.presence.Unregister("bob", connB.ID())
	stack.rooms.HandleDisconnect(ctx, "bob")

	gone := connA.eventsOf(domain.EventPartnerDisconnected)
	require.Len(t, gone, 1)
	payload := gone[0].payload.(map[string]any)
	assert.Equal(t, EndReasonPartnerDisconnect, payload["reason"])

	// A second disconnect for the same identity is a no-op.
	stack.rooms.HandleDisconnect(ctx, "bob")
	assert.Len(t, connA.eventsOf(domain.EventPartnerDisconnected), 1)

	room.Mutex.RLock()
	assert.Equal(t, domain.RoomStateClosed, room.State)
	room.Mutex.RUnlock()

	// Both participants may queue again right away.
	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.NoError(t, err)
}

func TestHandleDisconnect_WithoutRoomIsNoop(t *testing.T) {
	stack := newTestStack()
	stack.connect("alice")
	stack.rooms.HandleDisconnect(context.Background(), "alice")
	assert.Equal(t, 0, stack.rooms.ActiveCount())
}

func TestCreateRoom_RefusesDoubleMembership(t *testing.T) {
	stack := newTestStack()
	pairUp(t, stack)
	stack.connect("carol")

	_, err := stack.rooms.CreateRoom(context.Background(), "alice", "carol", "alice")
	require.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestMarkActive_OnlyFromForming(t *testing.T) {
	stack := newTestStack()
	room, _, _ := pairUp(t, stack)
	ctx := context.Background()

	stack.rooms.MarkActive(room.ID)
	room.Mutex.RLock()
	assert.Equal(t, domain.RoomStateActive, room.State)
	room.Mutex.RUnlock()

	require.NoError(t, stack.rooms.EndRoom(ctx, room.ID, EndReasonPeer, "", domain.EventCallEnded))

	// Closed rooms never reactivate.
	stack.rooms.MarkActive(room.ID)
	room.Mutex.RLock()
	assert.Equal(t, domain.RoomStateClosed, room.State)
	room.Mutex.RUnlock()
}
