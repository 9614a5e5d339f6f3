package domain

import (
	"sync"
	"time"
)

// PresenceRecord binds a connected identity to its live connection handle.
// One record per currently connected identity.
type PresenceRecord struct {
	Identity string
	Conn     Connection
	JoinedAt time.Time

	mu       sync.RWMutex
	lastSeen time.Time
}

func NewPresenceRecord(identity string, conn Connection) *PresenceRecord {
	now := time.Now().UTC()
	return &PresenceRecord{
		Identity: identity,
		Conn:     conn,
		JoinedAt: now,
		lastSeen: now,
	}
}

// Touch refreshes the liveness timestamp, called on every heartbeat.
func (p *PresenceRecord) Touch() {
	p.mu.Lock()
	p.lastSeen = time.Now().UTC()
	p.mu.Unlock()
}

// LastSeen returns the time of the most recent heartbeat or registration.
func (p *PresenceRecord) LastSeen() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}
