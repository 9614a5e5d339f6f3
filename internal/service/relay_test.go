package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairUp(t *testing.T, stack *testStack) (*domain.Room, *fakeConn, *fakeConn) {
	t.Helper()
	ctx := context.Background()

	connA := stack.connect("alice")
	connB := stack.connect("bob")

	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.NoError(t, err)
	room, err := stack.match.Enqueue(ctx, "bob", domain.Preferences{})
	require.NoError(t, err)
	require.NotNil(t, room)

	return room, connA, connB
}

func TestRelay_ForwardsVerbatim(t *testing.T) {
	stack := newTestStack()
	room, _, connB := pairUp(t, stack)

	offer := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake"}
	msg := &domain.SignalMessage{
		Type:   domain.EventOffer,
		From:   "alice",
		To:     "bob",
		RoomID: room.ID.String(),
		SDP:    offer,
	}

	require.NoError(t, stack.relay.Relay(context.Background(), msg))

	got := connB.eventsOf(domain.EventOffer)
	require.Len(t, got, 1)
	forwarded, ok := got[0].payload.(*domain.SignalMessage)
	require.True(t, ok)
	assert.Same(t, msg, forwarded, "payload forwarded untouched")
	assert.Equal(t, offer, forwarded.SDP)

	room.Mutex.RLock()
	defer room.Mutex.RUnlock()
	assert.Equal(t, 1, room.Offers)
	assert.Equal(t, domain.RoomStateActive, room.State, "first relayed signal activates the room")
}

func TestRelay_RejectsNonMember(t *testing.T) {
	stack := newTestStack()
	room, _, connB := pairUp(t, stack)
	stack.connect("mallory")

	err := stack.relay.Relay(context.Background(), &domain.SignalMessage{
		Type:   domain.EventOffer,
		From:   "mallory",
		To:     "bob",
		RoomID: room.ID.String(),
	})
	require.ErrorIs(t, err, ErrSignalingViolation)
	assert.Equal(t, "SignalingViolation", ErrorKind(err))

	assert.Empty(t, connB.eventsOf(domain.EventOffer), "nothing may reach the target")

	// The room survives a violation.
	_, ok := stack.rooms.Get(room.ID)
	assert.True(t, ok)
}

func TestRelay_RejectsUnknownRoomAndBadType(t *testing.T) {
	stack := newTestStack()
	pairUp(t, stack)

	err := stack.relay.Relay(context.Background(), &domain.SignalMessage{
		Type:   domain.EventOffer,
		From:   "alice",
		To:     "bob",
		RoomID: uuid.New().String(),
	})
	assert.ErrorIs(t, err, ErrSignalingViolation)

	err = stack.relay.Relay(context.Background(), &domain.SignalMessage{
		Type: "join_queue",
		From: "alice",
		To:   "bob",
	})
	assert.ErrorIs(t, err, ErrSignalingViolation)

	err = stack.relay.Relay(context.Background(), &domain.SignalMessage{
		Type:   domain.EventOffer,
		From:   "alice",
		To:     "bob",
		RoomID: "not-a-uuid",
	})
	assert.ErrorIs(t, err, ErrSignalingViolation)
}

func TestRelay_UnreachablePartnerClosesRoom(t *testing.T) {
	stack := newTestStack()
	room, connA, connB := pairUp(t, stack)
	ctx := context.Background()

	// bob's socket dies before alice's offer arrives.
	stack.presence.Unregister("bob", connB.ID())

	err := stack.relay.Relay(ctx, &domain.SignalMessage{
		Type:   domain.EventOffer,
		From:   "alice",
		To:     "bob",
		RoomID: room.ID.String(),
		SDP:    &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	})
	require.ErrorIs(t, err, ErrPartnerUnreachable)
	assert.Equal(t, "PartnerUnreachable", ErrorKind(err))

	_, ok := stack.rooms.Get(room.ID)
	assert.False(t, ok, "room must be torn down")
	_, ok = stack.rooms.RoomFor("alice")
	assert.False(t, ok)

	ended := connA.eventsOf(domain.EventCallEnded)
	require.Len(t, ended, 1)
	payload := ended[0].payload.(map[string]any)
	assert.Equal(t, "partner disconnected during signaling", payload["reason"])

	rec, err := stack.sessions.GetByRoomID(ctx, room.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.EndedAt, "session row must carry the end timestamp")
	assert.Equal(t, "partner disconnected during signaling", rec.EndReason)
}

func TestRelay_WriteFailureClosesRoom(t *testing.T) {
	stack := newTestStack()
	room, connA, connB := pairUp(t, stack)

	// The connection is still registered but its writes fail.
	connB.Close()

	err := stack.relay.Relay(context.Background(), &domain.SignalMessage{
		Type:      domain.EventCandidate,
		From:      "alice",
		To:        "bob",
		RoomID:    room.ID.String(),
		Candidate: &webrtc.ICECandidateInit{Candidate: "candidate:1"},
	})
	require.ErrorIs(t, err, ErrPartnerUnreachable)

	_, ok := stack.rooms.Get(room.ID)
	assert.False(t, ok)
	assert.Len(t, connA.eventsOf(domain.EventCallEnded), 1)
}
