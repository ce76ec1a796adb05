package service

import (
	"context"
	"testing"
	"time"

	"github.com/Wyydra/duet/internal/adapter/driven/store/memory"
	"github.com/Wyydra/duet/internal/core/domain"
)

func newRelayFixture(t *testing.T) (*memory.RoomRepository, domain.RoomID, *fakeNegotiator, *CandidateRelay) {
	t.Helper()
	store := memory.NewRoomRepository()
	id, err := store.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	neg := newFakeNegotiator("A")
	relay := NewCandidateRelay(store, neg, id, domain.SideCaller)
	relay.Start(context.Background())
	t.Cleanup(relay.Stop)
	return store, id, neg, relay
}

func TestRelayQueuesUntilRemoteDescription(t *testing.T) {
	store, id, neg, _ := newRelayFixture(t)
	ctx := context.Background()

	for _, c := range []string{"r1", "r2", "r1", "r3"} {
		if _, err := store.AppendCandidate(ctx, id, domain.SideCallee, cand(c)); err != nil {
			t.Fatalf("AppendCandidate: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if got := neg.appliedCandidates(); len(got) != 0 {
		t.Fatalf("applied before remote description: %v", got)
	}

	if err := neg.SetLocalDescription(domain.SessionDescription{Type: domain.SDPOffer, SDP: "o"}); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	if err := neg.SetRemoteDescription(domain.SessionDescription{Type: domain.SDPAnswer, SDP: "a"}); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}
	eventually(t, "queued candidates applied", func() bool {
		return equalStrings(neg.appliedCandidates(), "r1", "r2", "r3")
	})

	if _, err := store.AppendCandidate(ctx, id, domain.SideCallee, cand("r4")); err != nil {
		t.Fatalf("AppendCandidate: %v", err)
	}
	eventually(t, "live candidate applied", func() bool {
		return equalStrings(neg.appliedCandidates(), "r1", "r2", "r3", "r4")
	})
}

func TestRelayPublishesLocalCandidatesInOrder(t *testing.T) {
	store, id, neg, _ := newRelayFixture(t)
	ctx := context.Background()

	for _, c := range []string{"l1", "l2", "l3"} {
		neg.candidates <- cand(c)
	}
	eventually(t, "local candidates published", func() bool {
		evts, _ := store.CandidatesAfter(ctx, id, domain.SideCaller, 0)
		if len(evts) != 3 {
			return false
		}
		for i, want := range []string{"l1", "l2", "l3"} {
			if evts[i].Candidate.Candidate != want {
				return false
			}
		}
		return true
	})

	other, _ := store.CandidatesAfter(ctx, id, domain.SideCallee, 0)
	if len(other) != 0 {
		t.Fatalf("published onto the other side: %+v", other)
	}
}

func TestRelaySurvivesApplyFailure(t *testing.T) {
	store, id, neg, _ := newRelayFixture(t)
	ctx := context.Background()

	neg.mu.Lock()
	neg.rejectCand = "bad"
	neg.mu.Unlock()
	if err := neg.SetLocalDescription(domain.SessionDescription{Type: domain.SDPOffer, SDP: "o"}); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	if err := neg.SetRemoteDescription(domain.SessionDescription{Type: domain.SDPAnswer, SDP: "a"}); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}

	for _, c := range []string{"good1", "bad", "good2"} {
		if _, err := store.AppendCandidate(ctx, id, domain.SideCallee, cand(c)); err != nil {
			t.Fatalf("AppendCandidate: %v", err)
		}
	}
	eventually(t, "candidates after failure applied", func() bool {
		return equalStrings(neg.appliedCandidates(), "good1", "good2")
	})
}

func TestRelayStopIsIdempotent(t *testing.T) {
	store, id, neg, relay := newRelayFixture(t)
	relay.Stop()
	relay.Stop()

	// nothing is published once stopped
	neg.candidates <- cand("late")
	time.Sleep(50 * time.Millisecond)
	evts, _ := store.CandidatesAfter(context.Background(), id, domain.SideCaller, 0)
	if len(evts) != 0 {
		t.Fatalf("published after Stop: %+v", evts)
	}
}

func TestRelayResumesDroppedStream(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewRoomRepository()
	id, err := inner.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	store := &droppingStore{RoomStore: inner, limit: 1}

	neg := newFakeNegotiator("A")
	relay := NewCandidateRelay(store, neg, id, domain.SideCaller)
	relay.retryDelay = 10 * time.Millisecond
	relay.Start(ctx)
	t.Cleanup(relay.Stop)

	for _, c := range []string{"r1", "r2", "r3"} {
		if _, err := inner.AppendCandidate(ctx, id, domain.SideCallee, cand(c)); err != nil {
			t.Fatalf("AppendCandidate: %v", err)
		}
	}
	if err := neg.SetLocalDescription(domain.SessionDescription{Type: domain.SDPOffer, SDP: "o"}); err != nil {
		t.Fatalf("SetLocalDescription: %v", err)
	}
	if err := neg.SetRemoteDescription(domain.SessionDescription{Type: domain.SDPAnswer, SDP: "a"}); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}

	eventually(t, "every candidate applied across dropped streams", func() bool {
		return equalStrings(neg.appliedCandidates(), "r1", "r2", "r3")
	})

	afters := store.watchAfters()
	if len(afters) < 3 || afters[0] != 0 || afters[1] != 1 || afters[2] != 2 {
		t.Fatalf("resubscribed after=%v, want 0, 1, 2 ...", afters)
	}
}
