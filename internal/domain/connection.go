package domain

// Connection is the capability a signaling component needs from a live
// transport. Components depend on this interface, never on a concrete
// websocket type.
type Connection interface {
	ID() string
	Send(event string, payload any) error
	Close() error
}
