package client

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

// Phase is the negotiation state of one call.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseOfferPending   Phase = "offer-pending"
	PhaseOfferSent      Phase = "offer-sent"
	PhaseAwaitingAnswer Phase = "awaiting-answer"
	PhaseConnected      Phase = "connected"
	PhaseDisconnected   Phase = "disconnected"
	PhaseReconnecting   Phase = "reconnecting"
	PhaseClosed         Phase = "closed"
	PhaseFailed         Phase = "failed"
)

var (
	ErrNegotiationClosed = errors.New("negotiation already closed")
	ErrUnexpectedSignal  = errors.New("unexpected signal for current phase")
)

// PeerConnection is the slice of the runtime peer-connection API the
// negotiator drives. The pion adapter implements it; tests use a fake.
type PeerConnection interface {
	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// MediaSession owns the locally acquired camera/microphone tracks.
// Release must be safe to call more than once.
type MediaSession interface {
	Release()
}

// Sender is what the negotiator needs from the signaling transport.
type Sender interface {
	Send(msg *domain.SignalMessage) error
}

// Negotiator drives one peer connection through offer/answer exchange for
// a single room. ICE candidates that race ahead of the SDP exchange are
// buffered and applied in arrival order once the remote description lands.
type Negotiator struct {
	log     *slog.Logger
	pc      PeerConnection
	media   MediaSession
	signals Sender

	roomID      string
	selfID      string
	partnerID   string
	isInitiator bool

	mu        sync.Mutex
	phase     Phase
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	releaseOnce sync.Once
	onPhase     func(Phase)
}

func NewNegotiator(pc PeerConnection, media MediaSession, signals Sender, match domain.MatchNotification, selfID string, log *slog.Logger) *Negotiator {
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{
		log:         log,
		pc:          pc,
		media:       media,
		signals:     signals,
		roomID:      match.RoomID,
		selfID:      selfID,
		partnerID:   match.PartnerID,
		isInitiator: match.IsInitiator,
		phase:       PhaseIdle,
	}
}

// OnPhaseChange installs a phase observer, called outside the lock.
func (n *Negotiator) OnPhaseChange(fn func(Phase)) {
	n.onPhase = fn
}

func (n *Negotiator) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

func (n *Negotiator) IsInitiator() bool {
	return n.isInitiator
}

func (n *Negotiator) RoomID() string {
	return n.roomID
}

// Start kicks the machine off. The initiator creates and sends the offer;
// the other side stays idle until the offer arrives.
func (n *Negotiator) Start() error {
	if !n.isInitiator {
		return nil
	}
	return n.sendOffer(false)
}

func (n *Negotiator) sendOffer(iceRestart bool) error {
	const op = "client.negotiation.offer"

	n.mu.Lock()
	if n.phase == PhaseClosed || n.phase == PhaseFailed {
		n.mu.Unlock()
		return ErrNegotiationClosed
	}
	n.setPhaseLocked(PhaseOfferPending)
	if iceRestart {
		// A restart renegotiates the remote description from scratch, so
		// candidates must buffer again until the fresh answer is applied.
		n.remoteSet = false
	}
	n.mu.Unlock()

	offer, err := n.pc.CreateOffer(iceRestart)
	if err != nil {
		n.failInternal(op, err)
		return err
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		n.failInternal(op, err)
		return err
	}

	err = n.signals.Send(&domain.SignalMessage{
		Type:   domain.EventOffer,
		From:   n.selfID,
		To:     n.partnerID,
		RoomID: n.roomID,
		SDP:    &offer,
	})
	if err != nil {
		n.failInternal(op, err)
		return err
	}

	n.mu.Lock()
	n.setPhaseLocked(PhaseOfferSent)
	n.setPhaseLocked(PhaseAwaitingAnswer)
	n.mu.Unlock()

	n.log.Debug("offer sent", slog.String("room_id", n.roomID), slog.Bool("ice_restart", iceRestart))
	return nil
}

// HandleSignal dispatches one relayed message from the partner.
func (n *Negotiator) HandleSignal(msg *domain.SignalMessage) error {
	if msg == nil {
		return nil
	}
	switch msg.Type {
	case domain.EventOffer:
		return n.handleOffer(msg)
	case domain.EventAnswer:
		return n.handleAnswer(msg)
	case domain.EventCandidate:
		return n.handleCandidate(msg)
	default:
		return ErrUnexpectedSignal
	}
}

// handleOffer applies the remote offer, answers it, and flushes any
// candidates that arrived early.
func (n *Negotiator) handleOffer(msg *domain.SignalMessage) error {
	const op = "client.negotiation.answer"

	if msg.SDP == nil {
		return ErrUnexpectedSignal
	}

	n.mu.Lock()
	if n.phase == PhaseClosed || n.phase == PhaseFailed {
		n.mu.Unlock()
		return ErrNegotiationClosed
	}
	n.mu.Unlock()

	if err := n.pc.SetRemoteDescription(*msg.SDP); err != nil {
		n.failInternal(op, err)
		return err
	}
	if err := n.flushPending(); err != nil {
		n.failInternal(op, err)
		return err
	}

	answer, err := n.pc.CreateAnswer()
	if err != nil {
		n.failInternal(op, err)
		return err
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		n.failInternal(op, err)
		return err
	}

	err = n.signals.Send(&domain.SignalMessage{
		Type:   domain.EventAnswer,
		From:   n.selfID,
		To:     n.partnerID,
		RoomID: n.roomID,
		SDP:    &answer,
	})
	if err != nil {
		n.failInternal(op, err)
		return err
	}

	n.log.Debug("answer sent", slog.String("room_id", n.roomID))
	return nil
}

// handleAnswer applies the remote answer on the initiator side and flushes
// buffered candidates. The connected phase comes from the transport state
// callback, not from here.
func (n *Negotiator) handleAnswer(msg *domain.SignalMessage) error {
	const op = "client.negotiation.apply_answer"

	if msg.SDP == nil {
		return ErrUnexpectedSignal
	}

	n.mu.Lock()
	if n.phase == PhaseClosed || n.phase == PhaseFailed {
		n.mu.Unlock()
		return ErrNegotiationClosed
	}
	n.mu.Unlock()

	if err := n.pc.SetRemoteDescription(*msg.SDP); err != nil {
		n.failInternal(op, err)
		return err
	}
	return n.flushPending()
}

// handleCandidate applies a candidate immediately once the remote
// description is set; before that it is buffered in arrival order.
func (n *Negotiator) handleCandidate(msg *domain.SignalMessage) error {
	if msg.Candidate == nil {
		return ErrUnexpectedSignal
	}

	n.mu.Lock()
	if !n.remoteSet {
		n.pending = append(n.pending, *msg.Candidate)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	return n.pc.AddICECandidate(*msg.Candidate)
}

// flushPending marks the remote description applied and drains the buffer:
// each candidate exactly once, in original arrival order.
func (n *Negotiator) flushPending() error {
	n.mu.Lock()
	n.remoteSet = true
	buffered := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, candidate := range buffered {
		if err := n.pc.AddICECandidate(candidate); err != nil {
			return err
		}
	}
	return nil
}

// SendLocalCandidate forwards a locally gathered candidate to the partner.
// Wired to the peer connection's OnICECandidate callback.
func (n *Negotiator) SendLocalCandidate(candidate webrtc.ICECandidateInit) {
	err := n.signals.Send(&domain.SignalMessage{
		Type:      domain.EventCandidate,
		From:      n.selfID,
		To:        n.partnerID,
		RoomID:    n.roomID,
		Candidate: &candidate,
	})
	if err != nil {
		n.log.Debug("candidate send failed", sl.Err(err))
	}
}

// OnTransportConnected is called when the peer connection reports a
// connected state.
func (n *Negotiator) OnTransportConnected() {
	n.mu.Lock()
	if n.phase != PhaseClosed && n.phase != PhaseFailed {
		n.setPhaseLocked(PhaseConnected)
	}
	n.mu.Unlock()
}

// OnTransportDisconnected marks the machine disconnected. The supervisor
// decides whether to restart or fail.
func (n *Negotiator) OnTransportDisconnected() {
	n.mu.Lock()
	if n.phase == PhaseConnected || n.phase == PhaseReconnecting || n.phase == PhaseAwaitingAnswer {
		n.setPhaseLocked(PhaseDisconnected)
	}
	n.mu.Unlock()
}

// RestartICE re-creates the offer with an ICE restart and resends it
// through the relay. Only the initiator restarts; the other side waits for
// the restarted offer.
func (n *Negotiator) RestartICE() error {
	n.mu.Lock()
	if n.phase == PhaseClosed || n.phase == PhaseFailed {
		n.mu.Unlock()
		return ErrNegotiationClosed
	}
	n.setPhaseLocked(PhaseReconnecting)
	n.mu.Unlock()

	if !n.isInitiator {
		return nil
	}
	return n.sendOffer(true)
}

// End is the explicit teardown: media released, peer connection closed,
// the relay told, terminal closed phase. Safe on every path.
func (n *Negotiator) End(notifyServer bool) {
	n.mu.Lock()
	alreadyDone := n.phase == PhaseClosed || n.phase == PhaseFailed
	n.setPhaseLocked(PhaseClosed)
	n.mu.Unlock()

	n.release()

	if notifyServer && !alreadyDone {
		_ = n.signals.Send(&domain.SignalMessage{
			Type:   domain.EventEndCall,
			From:   n.selfID,
			RoomID: n.roomID,
			Payload: map[string]any{
				"partner_id": n.partnerID,
			},
		})
	}
}

// Fail is the terminal failure transition, reached when the reconnect
// budget is exhausted or the peer connection errored. Media is released
// here too: failure paths hold no resources.
func (n *Negotiator) Fail() {
	n.mu.Lock()
	n.setPhaseLocked(PhaseFailed)
	n.mu.Unlock()
	n.release()
}

func (n *Negotiator) failInternal(op string, err error) {
	n.log.Error("negotiation failed", slog.String("op", op), sl.Err(err))
	n.Fail()
}

func (n *Negotiator) release() {
	n.releaseOnce.Do(func() {
		if n.media != nil {
			n.media.Release()
		}
		if n.pc != nil {
			n.pc.Close()
		}
	})
}

// PendingCandidates reports the buffer depth, used by status displays.
func (n *Negotiator) PendingCandidates() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Negotiator) setPhaseLocked(phase Phase) {
	if n.phase == phase {
		return
	}
	n.phase = phase
	if n.onPhase != nil {
		fn := n.onPhase
		go fn(phase)
	}
}
