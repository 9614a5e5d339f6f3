package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallConn blocks every Send until unblock is closed, simulating a
// connection whose write path has stopped draining. entered is closed the
// first time Send is reached so tests can order themselves around the stall.
type stallConn struct {
	id      string
	unblock chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (c *stallConn) ID() string { return c.id }

func (c *stallConn) Send(event string, payload any) error {
	if c.entered != nil {
		c.once.Do(func() { close(c.entered) })
	}
	<-c.unblock
	return nil
}

func (c *stallConn) Close() error { return nil }

func TestEnqueue_TwoCompatibleUsersMatched(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	connA := stack.connect("alice")
	connB := stack.connect("bob")

	room, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.NoError(t, err)
	require.Nil(t, room, "first waiter must wait")
	assert.Equal(t, 1, stack.match.Waiting())

	room, err = stack.match.Enqueue(ctx, "bob", domain.Preferences{})
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, 0, stack.match.Waiting(), "both waiters must leave the queue")

	matchA := connA.lastMatch(t)
	matchB := connB.lastMatch(t)
	assert.Equal(t, room.ID.String(), matchA.RoomID)
	assert.Equal(t, matchA.RoomID, matchB.RoomID)
	assert.Equal(t, "bob", matchA.PartnerID)
	assert.Equal(t, "alice", matchB.PartnerID)

	// Exactly one initiator per room: the waiter that was already queued.
	assert.True(t, matchA.IsInitiator)
	assert.False(t, matchB.IsInitiator)

	_, inRoom := stack.rooms.RoomFor("alice")
	assert.True(t, inRoom)
	_, inRoom = stack.rooms.RoomFor("bob")
	assert.True(t, inRoom)
}

func TestEnqueue_AlreadyQueued(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	stack.connect("alice")

	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.NoError(t, err)

	_, err = stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Equal(t, "AlreadyQueued", ErrorKind(err))
	assert.Equal(t, 1, stack.match.Waiting(), "duplicate request must not add an entry")
}

func TestEnqueue_AlreadyInRoom(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	stack.connect("alice")
	stack.connect("bob")

	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.NoError(t, err)
	_, err = stack.match.Enqueue(ctx, "bob", domain.Preferences{})
	require.NoError(t, err)

	_, err = stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.ErrorIs(t, err, ErrAlreadyInRoom)
	assert.Equal(t, "AlreadyInRoom", ErrorKind(err))
}

func TestEnqueue_FIFOOrder(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	first := stack.connect("first")
	second := stack.connect("second")
	stack.connect("late")

	_, err := stack.match.Enqueue(ctx, "first", domain.Preferences{})
	require.NoError(t, err)
	_, err = stack.match.Enqueue(ctx, "second", domain.Preferences{})
	// second matches first immediately, so the queue is empty again here.
	require.NoError(t, err)
	require.NotEmpty(t, first.eventsOf(domain.EventMatchFound))
	require.NotEmpty(t, second.eventsOf(domain.EventMatchFound))

	// Rebuild a two-deep queue with incompatible heads to check scan order.
	stack = newTestStack()
	head := stack.connect("head")
	mid := stack.connect("mid")
	tail := stack.connect("tail")

	_, err = stack.match.Enqueue(ctx, "head", domain.Preferences{Language: "ru"})
	require.NoError(t, err)
	_, err = stack.match.Enqueue(ctx, "mid", domain.Preferences{Language: "en"})
	require.NoError(t, err)

	// tail is compatible with both; the older waiter must win.
	room, err := stack.match.Enqueue(ctx, "tail", domain.Preferences{})
	require.NoError(t, err)
	require.NotNil(t, room)

	assert.NotEmpty(t, head.eventsOf(domain.EventMatchFound))
	assert.Empty(t, mid.eventsOf(domain.EventMatchFound))
	assert.NotEmpty(t, tail.eventsOf(domain.EventMatchFound))
	assert.Equal(t, 1, stack.match.Waiting())
}

func TestEnqueue_BlockedUsersNeverPaired(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	stack.connect("alice")
	stack.connect("bob")

	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{Blocked: []string{"bob"}})
	require.NoError(t, err)

	room, err := stack.match.Enqueue(ctx, "bob", domain.Preferences{})
	require.NoError(t, err)
	assert.Nil(t, room, "blocked pair must not match")
	assert.Equal(t, 2, stack.match.Waiting())
}

func TestEnqueue_GenderPreferenceMutual(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	stack.connect("alice")
	stack.connect("bob")

	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{Gender: "f", GenderPreference: "f"})
	require.NoError(t, err)

	room, err := stack.match.Enqueue(ctx, "bob", domain.Preferences{Gender: "m"})
	require.NoError(t, err)
	assert.Nil(t, room, "one-sided acceptance is not a match")
}

func TestEnqueue_StaleWaiterSkipped(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	ghost := stack.connect("ghost")
	stack.connect("bob")

	_, err := stack.match.Enqueue(ctx, "ghost", domain.Preferences{})
	require.NoError(t, err)

	// ghost's connection goes away without a cancel.
	stack.presence.Unregister("ghost", ghost.ID())

	room, err := stack.match.Enqueue(ctx, "bob", domain.Preferences{})
	require.NoError(t, err)
	assert.Nil(t, room, "dead waiter must not be matched")
	assert.Equal(t, 1, stack.match.Waiting(), "stale entry dropped, bob queued")
}

func TestCancel(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	stack.connect("alice")

	_, err := stack.match.Enqueue(ctx, "alice", domain.Preferences{})
	require.NoError(t, err)

	assert.True(t, stack.match.Cancel("alice"))
	assert.Equal(t, 0, stack.match.Waiting())
	assert.False(t, stack.match.Cancel("alice"), "second cancel is a no-op")
}

// A partner connection that stops draining its writes must only delay its
// own match notification, never queue operations from other users.
func TestEnqueue_SlowPartnerDoesNotStallQueue(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	unblock := make(chan struct{})
	entered := make(chan struct{})
	stack.presence.Register("slow", &stallConn{id: uuid.New().String(), unblock: unblock, entered: entered})
	stack.connect("bob")

	_, err := stack.match.Enqueue(ctx, "slow", domain.Preferences{})
	require.NoError(t, err)

	// bob matches slow; the notification to slow's connection hangs.
	matched := make(chan error, 1)
	go func() {
		_, err := stack.match.Enqueue(ctx, "bob", domain.Preferences{})
		matched <- err
	}()

	// Wait until bob's match has reached slow's stalled Send so carol and
	// dave cannot race bob for the "slow" queue entry.
	<-entered

	carol := stack.connect("carol")
	dave := stack.connect("dave")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := stack.match.Enqueue(ctx, "carol", domain.Preferences{})
		assert.NoError(t, err)
		_, err = stack.match.Enqueue(ctx, "dave", domain.Preferences{})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled behind a blocked partner notification")
	}
	assert.NotEmpty(t, carol.eventsOf(domain.EventMatchFound))
	assert.NotEmpty(t, dave.eventsOf(domain.EventMatchFound))

	close(unblock)
	require.NoError(t, <-matched)
}

// Concurrent joins must produce disjoint pairs: every matched identity is in
// exactly one room and nobody is both queued and roomed.
func TestEnqueue_ConcurrentPairingIsAtomic(t *testing.T) {
	stack := newTestStack()
	ctx := context.Background()

	const users = 20
	identities := make([]string, users)
	for i := range identities {
		identities[i] = uuid.New().String()
		stack.connect(identities[i])
	}

	var wg sync.WaitGroup
	for _, identity := range identities {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := stack.match.Enqueue(ctx, id, domain.Preferences{})
			assert.NoError(t, err)
		}(identity)
	}
	wg.Wait()

	roomed := 0
	seenRooms := make(map[uuid.UUID]int)
	for _, identity := range identities {
		room, ok := stack.rooms.RoomFor(identity)
		if ok {
			roomed++
			seenRooms[room.ID]++
		}
	}

	assert.Equal(t, users, roomed+stack.match.Waiting(), "everyone is either queued or roomed")
	for roomID, members := range seenRooms {
		assert.Equal(t, 2, members, "room %s must have exactly two members", roomID)
	}
	assert.Equal(t, roomed/2, stack.rooms.ActiveCount())
}
