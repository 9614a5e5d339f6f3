package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

// PeerFactory builds a peer connection for a new call. The default wraps
// pion; tests substitute a fake.
type PeerFactory func(onCandidate func(webrtc.ICECandidateInit), onState func(webrtc.PeerConnectionState)) (PeerConnection, error)

// MediaFactory acquires the local camera/microphone for a call. May return
// a nil session when the caller is signaling-only.
type MediaFactory func() (MediaSession, error)

// Session is the top-level client: one signaling connection, at most one
// call at a time. It glues the transport, the negotiator and the
// supervisor together.
type Session struct {
	log        *slog.Logger
	client     *Client
	supCfg     SupervisorConfig
	peers      PeerFactory
	media      MediaFactory
	onFailed   func()
	onEnded    func(reason string)

	mu         sync.Mutex
	selfID     string
	negotiator *Negotiator
	supervisor *Supervisor
	cancelHb   context.CancelFunc
}

func NewSession(client *Client, supCfg SupervisorConfig, peers PeerFactory, media MediaFactory, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:    log,
		client: client,
		supCfg: supCfg,
		peers:  peers,
		media:  media,
	}
}

// OnFailed installs the terminal-failure callback, the hook a UI uses for
// its manual-retry affordance.
func (s *Session) OnFailed(fn func()) {
	s.onFailed = fn
}

// OnEnded installs the normal-teardown callback.
func (s *Session) OnEnded(fn func(reason string)) {
	s.onEnded = fn
}

// JoinQueue asks the server for a partner.
func (s *Session) JoinQueue(prefs domain.Preferences) error {
	payload := map[string]any{}
	raw, err := json.Marshal(prefs)
	if err == nil {
		_ = json.Unmarshal(raw, &payload)
	}
	return s.client.Send(&domain.SignalMessage{
		Type:    domain.EventJoinQueue,
		Payload: payload,
	})
}

// EndCall explicitly tears down the current call, if any.
func (s *Session) EndCall() {
	s.mu.Lock()
	neg := s.negotiator
	s.mu.Unlock()
	if neg != nil {
		neg.End(true)
	}
	s.teardownCall("ended_locally")
}

// Run processes server events until ctx is done or the connection drops.
func (s *Session) Run(ctx context.Context) error {
	const op = "client.session.run"

	for {
		select {
		case <-ctx.Done():
			s.teardownCall("cancelled")
			return ctx.Err()

		case msg, ok := <-s.client.Incoming():
			if !ok {
				s.teardownCall("transport closed")
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg *domain.SignalMessage) {
	const op = "client.session.handle"

	switch msg.Type {
	case domain.EventStatus:
		if identity, ok := msg.Payload["identity"].(string); ok && identity != "" {
			s.mu.Lock()
			s.selfID = identity
			s.mu.Unlock()
		}
		s.log.Debug("status", slog.Any("payload", msg.Payload))

	case domain.EventMatchFound:
		match, err := decodeMatch(msg.Payload)
		if err != nil {
			s.log.Error("bad match payload", slog.String("op", op), sl.Err(err))
			return
		}
		if err := s.startCall(ctx, match); err != nil {
			s.log.Error("call setup failed", slog.String("op", op), sl.Err(err))
		}

	case domain.EventOffer, domain.EventAnswer, domain.EventCandidate:
		s.mu.Lock()
		neg := s.negotiator
		s.mu.Unlock()
		if neg == nil {
			s.log.Debug("signal without active call dropped", slog.String("type", msg.Type))
			return
		}
		if err := neg.HandleSignal(msg); err != nil {
			s.log.Error("signal handling failed", slog.String("op", op), sl.Err(err))
		}

	case domain.EventCallEnded, domain.EventPartnerDisconnected:
		reason := msg.Type
		if r, ok := msg.Payload["reason"].(string); ok {
			reason = r
		}
		s.mu.Lock()
		neg := s.negotiator
		s.mu.Unlock()
		if neg != nil {
			neg.End(false)
		}
		s.teardownCall(reason)

	case domain.EventError:
		s.log.Warn("server error event", slog.Any("payload", msg.Payload))

	case domain.EventOnlineCount:
		s.log.Debug("online count", slog.Any("payload", msg.Payload))

	default:
		s.log.Debug("unhandled event", slog.String("type", msg.Type))
	}
}

// startCall builds the media session, the peer connection, the negotiator
// and the supervisor for one matched room.
func (s *Session) startCall(ctx context.Context, match domain.MatchNotification) error {
	var media MediaSession
	if s.media != nil {
		m, err := s.media()
		if err != nil {
			return err
		}
		media = m
	}

	s.mu.Lock()
	selfID := s.selfID
	s.mu.Unlock()

	var neg *Negotiator
	pc, err := s.peers(
		func(candidate webrtc.ICECandidateInit) {
			if neg != nil {
				neg.SendLocalCandidate(candidate)
			}
		},
		func(state webrtc.PeerConnectionState) {
			s.onPeerState(state)
		},
	)
	if err != nil {
		if media != nil {
			media.Release()
		}
		return err
	}

	neg = NewNegotiator(pc, media, s.client, match, selfID, s.log)

	sup := NewSupervisor(s.supCfg, s.client, neg.RestartICE, func() {
		neg.Fail()
		if s.onFailed != nil {
			s.onFailed()
		}
	}, s.log)

	hbCtx, cancel := context.WithCancel(ctx)
	go sup.Run(hbCtx)

	s.mu.Lock()
	s.negotiator = neg
	s.supervisor = sup
	s.cancelHb = cancel
	s.mu.Unlock()

	s.log.Info("call starting",
		slog.String("room_id", match.RoomID),
		slog.String("partner", match.PartnerID),
		slog.Bool("initiator", match.IsInitiator),
	)

	return neg.Start()
}

func (s *Session) onPeerState(state webrtc.PeerConnectionState) {
	s.mu.Lock()
	neg := s.negotiator
	sup := s.supervisor
	s.mu.Unlock()
	if neg == nil || sup == nil {
		return
	}

	switch state {
	case webrtc.PeerConnectionStateConnected:
		neg.OnTransportConnected()
		sup.NotifyConnected()
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		neg.OnTransportDisconnected()
		go sup.NotifyDisconnected()
	}
}

func (s *Session) teardownCall(reason string) {
	s.mu.Lock()
	sup := s.supervisor
	cancel := s.cancelHb
	s.negotiator = nil
	s.supervisor = nil
	s.cancelHb = nil
	s.mu.Unlock()

	if sup != nil {
		sup.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if s.onEnded != nil && sup != nil {
		s.onEnded(reason)
	}
}

func decodeMatch(payload map[string]any) (domain.MatchNotification, error) {
	var match domain.MatchNotification
	raw, err := json.Marshal(payload)
	if err != nil {
		return match, err
	}
	if err := json.Unmarshal(raw, &match); err != nil {
		return match, err
	}
	return match, nil
}
