package client

import (
	"github.com/immxrtalbeast/pairline/internal/config"
	"github.com/pion/webrtc/v3"
)

// PionPeer adapts a pion RTCPeerConnection to the PeerConnection interface
// the negotiator drives.
type PionPeer struct {
	pc *webrtc.PeerConnection
}

// PionConfig selects the ICE servers for the underlying connection.
type PionConfig struct {
	STUNServers  []string
	TURNServers  []string
	TURNUsername string
	TURNPassword string
}

// PionConfigFrom maps the shared webrtc configuration section onto the
// peer connection settings.
func PionConfigFrom(rtc config.WebRTCConfig) PionConfig {
	return PionConfig{
		STUNServers:  rtc.STUNServers,
		TURNServers:  rtc.TURNServers,
		TURNUsername: rtc.TURNUsername,
		TURNPassword: rtc.TURNPassword,
	}
}

// NewPionPeer builds the peer connection and wires candidate gathering and
// transport state changes to the given callbacks.
func NewPionPeer(cfg PionConfig, onCandidate func(webrtc.ICECandidateInit), onState func(webrtc.PeerConnectionState)) (*PionPeer, error) {
	iceServers := []webrtc.ICEServer{}
	if len(cfg.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if len(cfg.TURNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       cfg.TURNServers,
			Username:   cfg.TURNUsername,
			Credential: cfg.TURNPassword,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || onCandidate == nil {
			return
		}
		onCandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if onState != nil {
			onState(state)
		}
	})

	return &PionPeer{pc: pc}, nil
}

func (p *PionPeer) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	var opts *webrtc.OfferOptions
	if iceRestart {
		opts = &webrtc.OfferOptions{ICERestart: true}
	}

	offer, err := p.pc.CreateOffer(opts)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (p *PionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (p *PionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *PionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *PionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *PionPeer) Close() error {
	return p.pc.Close()
}

// AddTrack attaches a locally acquired media track, typically before the
// offer is created.
func (p *PionPeer) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return p.pc.AddTrack(track)
}

// OnTrack registers the remote media callback.
func (p *PionPeer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.pc.OnTrack(fn)
}
