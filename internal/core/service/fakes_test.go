package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
)

// fakeNegotiator follows the offer/answer state rules without any network.
type fakeNegotiator struct {
	name string

	mu             sync.Mutex
	local          *domain.SessionDescription
	remote         *domain.SessionDescription
	setRemoteCalls int
	applied        []domain.Candidate
	tracks         []port.LocalTrack
	closed         bool
	rejectCand     string

	remoteSet   chan struct{}
	candidates  chan domain.Candidate
	remoteTrack chan domain.RemoteTrack
	closeOnce   sync.Once
}

func newFakeNegotiator(name string) *fakeNegotiator {
	return &fakeNegotiator{
		name:        name,
		remoteSet:   make(chan struct{}),
		candidates:  make(chan domain.Candidate, 64),
		remoteTrack: make(chan domain.RemoteTrack, 1),
	}
}

func (n *fakeNegotiator) AddLocalTrack(track port.LocalTrack) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tracks = append(n.tracks, track)
	return nil
}

func (n *fakeNegotiator) RemoteTracks() <-chan domain.RemoteTrack { return n.remoteTrack }

func (n *fakeNegotiator) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: "offer-from-" + n.name}, nil
}

func (n *fakeNegotiator) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.remote == nil || n.remote.Type != domain.SDPOffer {
		return domain.SessionDescription{}, domain.ErrInvalidState
	}
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: "answer-from-" + n.name}, nil
}

func (n *fakeNegotiator) SetLocalDescription(desc domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed || n.local != nil {
		return domain.ErrInvalidState
	}
	n.local = &desc
	return nil
}

func (n *fakeNegotiator) SetRemoteDescription(desc domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setRemoteCalls++
	if n.closed || n.remote != nil {
		return domain.ErrInvalidState
	}
	if desc.Type == domain.SDPAnswer && n.local == nil {
		return domain.ErrInvalidState
	}
	n.remote = &desc
	close(n.remoteSet)
	return nil
}

func (n *fakeNegotiator) LocalCandidates() <-chan domain.Candidate { return n.candidates }

func (n *fakeNegotiator) AddRemoteCandidate(c domain.Candidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.remote == nil {
		return errors.New("no remote description")
	}
	if c.Candidate == n.rejectCand {
		return errors.New("malformed candidate")
	}
	n.applied = append(n.applied, c)
	return nil
}

func (n *fakeNegotiator) HasRemoteDescription() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.remote != nil
}

func (n *fakeNegotiator) RemoteDescriptionSet() <-chan struct{} { return n.remoteSet }

func (n *fakeNegotiator) Close() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		n.mu.Unlock()
	})
	return nil
}

func (n *fakeNegotiator) appliedCandidates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.applied))
	for _, c := range n.applied {
		out = append(out, c.Candidate)
	}
	return out
}

func (n *fakeNegotiator) remoteCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.setRemoteCalls
}

func (n *fakeNegotiator) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

type fakeFactory struct {
	name string

	mu      sync.Mutex
	created []*fakeNegotiator
}

func (f *fakeFactory) NewNegotiator(ctx context.Context) (port.Negotiator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := newFakeNegotiator(fmt.Sprintf("%s%d", f.name, len(f.created)))
	f.created = append(f.created, n)
	return n, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeNegotiator {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		t.Fatalf("%s: no negotiator created", f.name)
	}
	return f.created[len(f.created)-1]
}

type fakeTrack struct{ id string }

func (t fakeTrack) ID() string       { return t.id }
func (t fakeTrack) StreamID() string { return "stream" }

type fakeMedia struct {
	mu      sync.Mutex
	stopped bool
}

func (m *fakeMedia) Tracks() []port.LocalTrack { return []port.LocalTrack{fakeTrack{id: "mic"}} }

func (m *fakeMedia) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *fakeMedia) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func cand(s string) domain.Candidate {
	mid := "0"
	var idx uint16
	return domain.Candidate{Candidate: s, SDPMid: &mid, SDPMLineIndex: &idx}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func equalStrings(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// droppingStore ends every watch stream after limit values, as a store
// behind a flaky connection would.
type droppingStore struct {
	port.RoomStore
	limit int

	mu            sync.Mutex
	answerWatches int
	afters        []uint64
}

func (s *droppingStore) WatchAnswer(ctx context.Context, id domain.RoomID) (<-chan domain.Room, error) {
	s.mu.Lock()
	s.answerWatches++
	s.mu.Unlock()

	sub, cancel := context.WithCancel(ctx)
	src, err := s.RoomStore.WatchAnswer(sub, id)
	if err != nil {
		cancel()
		return nil, err
	}
	return truncate(sub, cancel, src, s.limit), nil
}

func (s *droppingStore) WatchCandidates(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) (<-chan domain.CandidateEvent, error) {
	s.mu.Lock()
	s.afters = append(s.afters, after)
	s.mu.Unlock()

	sub, cancel := context.WithCancel(ctx)
	src, err := s.RoomStore.WatchCandidates(sub, id, side, after)
	if err != nil {
		cancel()
		return nil, err
	}
	return truncate(sub, cancel, src, s.limit), nil
}

func (s *droppingStore) watchAfters() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.afters...)
}

func (s *droppingStore) answerWatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answerWatches
}

func truncate[T any](ctx context.Context, cancel context.CancelFunc, src <-chan T, limit int) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		defer cancel()
		for i := 0; i < limit; i++ {
			v, ok := <-src
			if !ok {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
