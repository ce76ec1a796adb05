package pion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type negotiationState int

const (
	stateNone negotiationState = iota
	stateLocalSet
	stateRemoteSet
	stateStable
)

const remoteTrackBuffer = 8

// Negotiator wraps one PeerConnection.
type Negotiator struct {
	pc  *webrtc.PeerConnection
	log zerolog.Logger

	mu           sync.Mutex
	state        negotiationState
	remoteSet    chan struct{}
	remoteTracks chan domain.RemoteTrack
	closed       bool

	candidates *candidateQueue
	closeOnce  sync.Once
	closeErr   error
}

func newNegotiator(pc *webrtc.PeerConnection) *Negotiator {
	n := &Negotiator{
		pc:           pc,
		log:          log.With().Str("component", "negotiator").Logger(),
		remoteSet:    make(chan struct{}),
		remoteTracks: make(chan domain.RemoteTrack, remoteTrackBuffer),
		candidates:   newCandidateQueue(),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			n.candidates.finish()
			return
		}
		n.candidates.push(fromICECandidateInit(c.ToJSON()))
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		n.log.Debug().Str("kind", remote.Kind().String()).Str("track_id", remote.ID()).Msg("Received remote track")
		n.publishRemoteTrack(domain.RemoteTrack{
			ID:       remote.ID(),
			StreamID: remote.StreamID(),
			Kind:     remote.Kind().String(),
		})

		// nothing renders media here, keep the receive buffers drained
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		n.log.Debug().Str("state", s.String()).Msg("Connection state changed")
	})

	go n.candidates.run()
	return n
}

func (n *Negotiator) AddLocalTrack(track port.LocalTrack) error {
	tl, ok := track.(webrtc.TrackLocal)
	if !ok {
		return fmt.Errorf("track %s: unsupported track type %T", track.ID(), track)
	}
	sender, err := n.pc.AddTrack(tl)
	if err != nil {
		return fmt.Errorf("add track %s: %w", track.ID(), err)
	}

	// RTCP has to be read for interceptors to work
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (n *Negotiator) RemoteTracks() <-chan domain.RemoteTrack {
	return n.remoteTracks
}

func (n *Negotiator) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}

	// Without local media the offer would carry no m-lines. Offer to receive
	// audio and video so the peer can still send.
	if len(n.pc.GetTransceivers()) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := n.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return domain.SessionDescription{}, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return fromWebRTC(offer)
}

func (n *Negotiator) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}

	n.mu.Lock()
	state := n.state
	n.mu.Unlock()
	if state != stateRemoteSet {
		return domain.SessionDescription{}, fmt.Errorf("create answer without remote offer: %w", domain.ErrInvalidState)
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return fromWebRTC(answer)
}

func (n *Negotiator) SetLocalDescription(desc domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	next, err := n.advance(desc.Type, stateNone, stateLocalSet, stateRemoteSet)
	if err != nil {
		return fmt.Errorf("set local %s: %w", desc.Type, err)
	}

	sd, err := toWebRTC(desc)
	if err != nil {
		return err
	}
	if err := n.pc.SetLocalDescription(sd); err != nil {
		return fmt.Errorf("set local %s: %w", desc.Type, err)
	}
	n.state = next
	return nil
}

func (n *Negotiator) SetRemoteDescription(desc domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	next, err := n.advance(desc.Type, stateNone, stateRemoteSet, stateLocalSet)
	if err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}

	sd, err := toWebRTC(desc)
	if err != nil {
		return err
	}
	if err := n.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	n.state = next
	close(n.remoteSet)
	return nil
}

// advance checks an offer/answer transition. An offer moves from none to
// offered; an answer moves from answerFrom to stable.
func (n *Negotiator) advance(typ domain.SDPType, none, offered, answerFrom negotiationState) (negotiationState, error) {
	if n.closed {
		return 0, fmt.Errorf("negotiator closed: %w", domain.ErrInvalidState)
	}
	switch typ {
	case domain.SDPOffer:
		if n.state == none {
			return offered, nil
		}
	case domain.SDPAnswer:
		if n.state == answerFrom {
			return stateStable, nil
		}
	default:
		return 0, fmt.Errorf("unknown description type %q", typ)
	}
	return 0, domain.ErrInvalidState
}

func (n *Negotiator) LocalCandidates() <-chan domain.Candidate {
	return n.candidates.out
}

func (n *Negotiator) AddRemoteCandidate(c domain.Candidate) error {
	if err := n.pc.AddICECandidate(toICECandidateInit(c)); err != nil {
		return fmt.Errorf("add remote candidate: %w", err)
	}
	return nil
}

func (n *Negotiator) HasRemoteDescription() bool {
	select {
	case <-n.remoteSet:
		return true
	default:
		return false
	}
}

func (n *Negotiator) RemoteDescriptionSet() <-chan struct{} {
	return n.remoteSet
}

// ConnectionState exposes the peer connection state for diagnostics.
func (n *Negotiator) ConnectionState() webrtc.PeerConnectionState {
	return n.pc.ConnectionState()
}

func (n *Negotiator) Close() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		close(n.remoteTracks)
		n.mu.Unlock()

		n.candidates.stop()
		if err := n.pc.Close(); err != nil && !errors.Is(err, io.EOF) {
			n.closeErr = fmt.Errorf("close peer connection: %w", err)
		}
	})
	return n.closeErr
}

func (n *Negotiator) publishRemoteTrack(t domain.RemoteTrack) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.remoteTracks <- t:
	default:
		n.log.Warn().Str("track_id", t.ID).Msg("Remote track channel full, dropping notification")
	}
}

func toWebRTC(desc domain.SessionDescription) (webrtc.SessionDescription, error) {
	var typ webrtc.SDPType
	switch desc.Type {
	case domain.SDPOffer:
		typ = webrtc.SDPTypeOffer
	case domain.SDPAnswer:
		typ = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unknown description type %q", desc.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: desc.SDP}, nil
}

func fromWebRTC(sd webrtc.SessionDescription) (domain.SessionDescription, error) {
	switch sd.Type {
	case webrtc.SDPTypeOffer:
		return domain.SessionDescription{Type: domain.SDPOffer, SDP: sd.SDP}, nil
	case webrtc.SDPTypeAnswer:
		return domain.SessionDescription{Type: domain.SDPAnswer, SDP: sd.SDP}, nil
	default:
		return domain.SessionDescription{}, fmt.Errorf("unsupported description type %s", sd.Type)
	}
}

func toICECandidateInit(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromICECandidateInit(c webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
