package domain

import "github.com/pion/webrtc/v3"

// Client to server event types.
const (
	EventJoinQueue   = "join_queue"
	EventCancelQueue = "cancel_queue"
	EventOffer       = "offer"
	EventAnswer      = "answer"
	EventCandidate   = "ice-candidate"
	EventEndCall     = "end-call"
	EventHeartbeat   = "heartbeat"
)

// Server to client event types.
const (
	EventMatchFound          = "match-found"
	EventStatus              = "status"
	EventPartnerDisconnected = "partner-disconnected"
	EventCallEnded           = "call-ended"
	EventError               = "error"
	EventOnlineCount         = "online_count"
)

// SignalMessage is the envelope for everything crossing the websocket,
// in both directions. Offer/answer/candidate payloads travel verbatim.
type SignalMessage struct {
	Type      string                     `json:"type"`
	From      string                     `json:"from,omitempty"`
	To        string                     `json:"to,omitempty"`
	RoomID    string                     `json:"room_id,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Payload   map[string]any             `json:"payload,omitempty"`
}

// MatchNotification is the payload of a match-found event.
type MatchNotification struct {
	RoomID      string `json:"room_id"`
	PartnerID   string `json:"partner_id"`
	IsInitiator bool   `json:"is_initiator"`
}

// ErrorPayload is the payload of an error event. Kind carries the
// machine-readable taxonomy entry, Message the human-readable detail.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
