package pion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
)

func newVNetEngines(t *testing.T) (*Engine, *Engine) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}
	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	a, err := NewEngine(WithNet(netA))
	if err != nil {
		t.Fatalf("engine A: %v", err)
	}
	b, err := NewEngine(WithNet(netB))
	if err != nil {
		t.Fatalf("engine B: %v", err)
	}
	return a, b
}

func newTestNegotiator(t *testing.T, e *Engine) *Negotiator {
	t.Helper()
	n, err := e.NewNegotiator(context.Background())
	if err != nil {
		t.Fatalf("NewNegotiator: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n.(*Negotiator)
}

func forward(from, to *Negotiator, errs chan<- error) {
	for c := range from.LocalCandidates() {
		<-to.RemoteDescriptionSet()
		if err := to.AddRemoteCandidate(c); err != nil {
			errs <- err
			return
		}
	}
}

func TestNegotiatorConnectsOverVNet(t *testing.T) {
	engA, engB := newVNetEngines(t)
	caller := newTestNegotiator(t, engA)
	callee := newTestNegotiator(t, engB)

	silence, err := NewSilenceSource("duet")
	if err != nil {
		t.Fatalf("NewSilenceSource: %v", err)
	}
	t.Cleanup(func() { _ = silence.Stop() })
	for _, track := range silence.Tracks() {
		if err := caller.AddLocalTrack(track); err != nil {
			t.Fatalf("AddLocalTrack: %v", err)
		}
	}

	ctx := context.Background()
	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Type != domain.SDPOffer || offer.SDP == "" {
		t.Fatalf("offer=%+v", offer)
	}
	if err := caller.SetLocalDescription(offer); err != nil {
		t.Fatalf("caller SetLocalDescription: %v", err)
	}

	if callee.HasRemoteDescription() {
		t.Fatalf("callee has remote description before offer")
	}
	if err := callee.SetRemoteDescription(offer); err != nil {
		t.Fatalf("callee SetRemoteDescription: %v", err)
	}
	if !callee.HasRemoteDescription() {
		t.Fatalf("callee HasRemoteDescription=false after offer")
	}

	answer, err := callee.CreateAnswer(ctx)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := callee.SetLocalDescription(answer); err != nil {
		t.Fatalf("callee SetLocalDescription: %v", err)
	}
	if err := caller.SetRemoteDescription(answer); err != nil {
		t.Fatalf("caller SetRemoteDescription: %v", err)
	}
	select {
	case <-caller.RemoteDescriptionSet():
	default:
		t.Fatalf("RemoteDescriptionSet not closed")
	}

	errs := make(chan error, 2)
	go forward(caller, callee, errs)
	go forward(callee, caller, errs)

	select {
	case track := <-callee.RemoteTracks():
		if track.Kind != webrtc.RTPCodecTypeAudio.String() {
			t.Fatalf("remote track kind=%q", track.Kind)
		}
	case err := <-errs:
		t.Fatalf("candidate exchange: %v", err)
	case <-time.After(20 * time.Second):
		t.Fatalf("callee never saw caller's audio (caller=%s callee=%s)", caller.ConnectionState(), callee.ConnectionState())
	}

	deadline := time.Now().Add(10 * time.Second)
	for caller.ConnectionState() != webrtc.PeerConnectionStateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("caller state=%s", caller.ConnectionState())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestSetRemoteDescriptionOutOfOrder(t *testing.T) {
	engA, engB := newVNetEngines(t)
	caller := newTestNegotiator(t, engA)
	callee := newTestNegotiator(t, engB)

	ctx := context.Background()
	offer, err := caller.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	// an answer before any local offer
	if err := callee.SetRemoteDescription(domain.SessionDescription{Type: domain.SDPAnswer, SDP: offer.SDP}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("answer before offer err=%v, want ErrInvalidState", err)
	}

	if err := callee.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}
	if err := callee.SetRemoteDescription(offer); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second SetRemoteDescription err=%v, want ErrInvalidState", err)
	}

	if _, err := caller.CreateAnswer(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("CreateAnswer without offer err=%v, want ErrInvalidState", err)
	}
}

func TestCloseEndsCandidateStream(t *testing.T) {
	engA, _ := newVNetEngines(t)
	n := newTestNegotiator(t, engA)

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-n.LocalCandidates():
		for ok {
			_, ok = <-n.LocalCandidates()
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("LocalCandidates not closed after Close")
	}

	if err := n.SetLocalDescription(domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0"}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("SetLocalDescription after Close err=%v, want ErrInvalidState", err)
	}
}

func TestCandidateQueuePreservesOrderAndDrains(t *testing.T) {
	q := newCandidateQueue()
	go q.run()

	for i := 0; i < 100; i++ {
		q.push(domain.Candidate{Candidate: string(rune('a' + i%26))})
	}
	q.finish()

	i := 0
	for c := range q.out {
		if want := string(rune('a' + i%26)); c.Candidate != want {
			t.Fatalf("candidate %d=%q, want %q", i, c.Candidate, want)
		}
		i++
	}
	if i != 100 {
		t.Fatalf("received %d candidates, want 100", i)
	}
}
