package port

import (
	"context"

	"github.com/Wyydra/duet/internal/core/domain"
)

// LocalTrack is a media source attached to a negotiator. Adapters accept
// their own concrete track types.
type LocalTrack interface {
	ID() string
	StreamID() string
}

// Negotiator wraps the session negotiation capability of one participant.
type Negotiator interface {
	AddLocalTrack(track LocalTrack) error
	RemoteTracks() <-chan domain.RemoteTrack

	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	// SetRemoteDescription fails with domain.ErrInvalidState when called out
	// of order or more than once.
	SetRemoteDescription(desc domain.SessionDescription) error

	// LocalCandidates is closed when gathering completes or the negotiator
	// is closed.
	LocalCandidates() <-chan domain.Candidate
	AddRemoteCandidate(c domain.Candidate) error

	HasRemoteDescription() bool
	// RemoteDescriptionSet is closed once a remote description is applied.
	RemoteDescriptionSet() <-chan struct{}

	Close() error
}

type NegotiatorFactory interface {
	NewNegotiator(ctx context.Context) (Negotiator, error)
}
