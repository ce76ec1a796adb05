// Package storetest holds the behaviour every port.RoomStore must share.
package storetest

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

const waitTimeout = 5 * time.Second

// Run executes the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) port.RoomStore) {
	t.Run("CreateRoomIDsAreUnique", func(t *testing.T) { testCreateUnique(t, newStore(t)) })
	t.Run("GetRoomNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("SetOfferOnce", func(t *testing.T) { testSetOfferOnce(t, newStore(t)) })
	t.Run("SetOnMissingRoom", func(t *testing.T) { testSetMissing(t, newStore(t)) })
	t.Run("ConcurrentSetAnswerFirstWriterWins", func(t *testing.T) { testConcurrentAnswer(t, newStore(t)) })
	t.Run("CandidateAppendWatchRoundTrip", func(t *testing.T) { testCandidateRoundTrip(t, newStore(t)) })
	t.Run("CandidateSidesAreSeparate", func(t *testing.T) { testCandidateSides(t, newStore(t)) })
	t.Run("WatchAnswerSnapshots", func(t *testing.T) { testWatchAnswer(t, newStore(t)) })
	t.Run("WatchMissingRoom", func(t *testing.T) { testWatchMissing(t, newStore(t)) })
	t.Run("WatchStopsOnCancel", func(t *testing.T) { testWatchCancel(t, newStore(t)) })
	t.Run("DeleteRoomIsIdempotent", func(t *testing.T) { testDelete(t, newStore(t)) })
}

func Offer(sdp string) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: sdp}
}

func Answer(sdp string) domain.SessionDescription {
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: sdp}
}

func Cand(n int) domain.Candidate {
	mid := "0"
	idx := uint16(0)
	return domain.Candidate{
		Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 5000%d typ host", n, n, n),
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

func testCreateUnique(t *testing.T, s port.RoomStore) {
	ctx := context.Background()
	const n = 32

	var (
		mu  sync.Mutex
		ids = make(map[domain.RoomID]bool)
		wg  sync.WaitGroup
	)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.CreateRoom(ctx)
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if ids[id] {
				errs <- fmt.Errorf("duplicate room id %s", id)
			}
			ids[id] = true
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(ids) != n {
		t.Fatalf("ids=%d, want %d", len(ids), n)
	}
}

func testGetNotFound(t *testing.T, s port.RoomStore) {
	_, err := s.GetRoom(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRoom err=%v, want ErrNotFound", err)
	}
}

func testSetOfferOnce(t *testing.T, s port.RoomStore) {
	ctx := context.Background()
	id := mustCreate(t, s)

	if err := s.SetOffer(ctx, id, Offer("first")); err != nil {
		t.Fatalf("SetOffer: %v", err)
	}
	err := s.SetOffer(ctx, id, Offer("second"))
	if !errors.Is(err, domain.ErrAlreadySet) {
		t.Fatalf("second SetOffer err=%v, want ErrAlreadySet", err)
	}

	room, err := s.GetRoom(ctx, id)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if room.Offer == nil || room.Offer.SDP != "first" {
		t.Fatalf("offer=%+v, want first", room.Offer)
	}
	if room.Answer != nil {
		t.Fatalf("answer=%+v, want nil", room.Answer)
	}
}

func testSetMissing(t *testing.T, s port.RoomStore) {
	ctx := context.Background()
	if err := s.SetOffer(ctx, "missing", Offer("o")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetOffer err=%v, want ErrNotFound", err)
	}
	if err := s.SetAnswer(ctx, "missing", Answer("a")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetAnswer err=%v, want ErrNotFound", err)
	}
}

func testConcurrentAnswer(t *testing.T, s port.RoomStore) {
	ctx := context.Background()
	id := mustCreate(t, s)
	if err := s.SetOffer(ctx, id, Offer("o")); err != nil {
		t.Fatalf("SetOffer: %v", err)
	}

	const n = 8
	results := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = s.SetAnswer(ctx, id, Answer(fmt.Sprintf("answer-%d", i)))
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range results {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatalf("two winners: %d and %d", winner, i)
			}
			winner = i
		case errors.Is(err, domain.ErrAlreadySet):
		default:
			t.Fatalf("SetAnswer[%d]: %v", i, err)
		}
	}
	if winner == -1 {
		t.Fatalf("no SetAnswer succeeded")
	}

	room, err := s.GetRoom(ctx, id)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if want := fmt.Sprintf("answer-%d", winner); room.Answer == nil || room.Answer.SDP != want {
		t.Fatalf("answer=%+v, want %s", room.Answer, want)
	}
}

func testCandidateRoundTrip(t *testing.T, s port.RoomStore) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := mustCreate(t, s)

	for i := 1; i <= 3; i++ {
		evt, err := s.AppendCandidate(ctx, id, domain.SideCaller, Cand(i))
		if err != nil {
			t.Fatalf("AppendCandidate %d: %v", i, err)
		}
		if evt.Seq != uint64(i) {
			t.Fatalf("seq=%d, want %d", evt.Seq, i)
		}
	}

	events, err := s.WatchCandidates(ctx, id, domain.SideCaller, 0)
	if err != nil {
		t.Fatalf("WatchCandidates: %v", err)
	}
	for i := 1; i <= 3; i++ {
		evt := recv(t, events)
		if evt.Seq != uint64(i) || evt.Candidate.Candidate != Cand(i).Candidate {
			t.Fatalf("event %d = %+v", i, evt)
		}
	}
	expectNone(t, events)

	if _, err := s.AppendCandidate(ctx, id, domain.SideCaller, Cand(4)); err != nil {
		t.Fatalf("AppendCandidate 4: %v", err)
	}
	if evt := recv(t, events); evt.Seq != 4 {
		t.Fatalf("live event seq=%d, want 4", evt.Seq)
	}

	// a fresh watcher resumed from the last seen seq sees nothing old
	resumed, err := s.WatchCandidates(ctx, id, domain.SideCaller, 4)
	if err != nil {
		t.Fatalf("WatchCandidates resume: %v", err)
	}
	expectNone(t, resumed)
	if _, err := s.AppendCandidate(ctx, id, domain.SideCaller, Cand(5)); err != nil {
		t.Fatalf("AppendCandidate 5: %v", err)
	}
	if evt := recv(t, resumed); evt.Seq != 5 {
		t.Fatalf("resumed event seq=%d, want 5", evt.Seq)
	}
	if evt := recv(t, events); evt.Seq != 5 {
		t.Fatalf("first watcher seq=%d, want 5", evt.Seq)
	}
}

func testCandidateSides(t *testing.T, s port.RoomStore) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := mustCreate(t, s)

	callee, err := s.WatchCandidates(ctx, id, domain.SideCallee, 0)
	if err != nil {
		t.Fatalf("WatchCandidates: %v", err)
	}
	if _, err := s.AppendCandidate(ctx, id, domain.SideCaller, Cand(1)); err != nil {
		t.Fatalf("AppendCandidate caller: %v", err)
	}
	expectNone(t, callee)

	evt, err := s.AppendCandidate(ctx, id, domain.SideCallee, Cand(2))
	if err != nil {
		t.Fatalf("AppendCandidate callee: %v", err)
	}
	if evt.Seq != 1 {
		t.Fatalf("callee seq=%d, want 1", evt.Seq)
	}
	got := recv(t, callee)
	if got.Side != domain.SideCallee || got.Candidate.Candidate != Cand(2).Candidate {
		t.Fatalf("callee event=%+v", got)
	}
}

func testWatchAnswer(t *testing.T, s port.RoomStore) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := mustCreate(t, s)
	if err := s.SetOffer(ctx, id, Offer("o")); err != nil {
		t.Fatalf("SetOffer: %v", err)
	}

	snaps, err := s.WatchAnswer(ctx, id)
	if err != nil {
		t.Fatalf("WatchAnswer: %v", err)
	}
	first := recv(t, snaps)
	if first.ID != id || !first.HasOffer() || first.HasAnswer() {
		t.Fatalf("first snapshot=%+v", first)
	}

	if err := s.SetAnswer(ctx, id, Answer("a")); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}
	for {
		snap := recv(t, snaps)
		if snap.HasAnswer() {
			if snap.Answer.SDP != "a" {
				t.Fatalf("answer=%q, want a", snap.Answer.SDP)
			}
			break
		}
	}
}

func testWatchMissing(t *testing.T, s port.RoomStore) {
	ctx := context.Background()
	if _, err := s.WatchAnswer(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("WatchAnswer err=%v, want ErrNotFound", err)
	}
	if _, err := s.WatchCandidates(ctx, "missing", domain.SideCaller, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("WatchCandidates err=%v, want ErrNotFound", err)
	}
}

func testWatchCancel(t *testing.T, s port.RoomStore) {
	ctx, cancel := context.WithCancel(context.Background())
	id := mustCreate(t, s)

	events, err := s.WatchCandidates(ctx, id, domain.SideCallee, 0)
	if err != nil {
		t.Fatalf("WatchCandidates: %v", err)
	}
	cancel()

	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("watch channel not closed after cancel")
		}
	}
}

func testDelete(t *testing.T, s port.RoomStore) {
	ctx := context.Background()
	id := mustCreate(t, s)
	if err := s.SetOffer(ctx, id, Offer("o")); err != nil {
		t.Fatalf("SetOffer: %v", err)
	}
	for i := 1; i <= 2; i++ {
		if _, err := s.AppendCandidate(ctx, id, domain.SideCaller, Cand(i)); err != nil {
			t.Fatalf("AppendCandidate: %v", err)
		}
		if _, err := s.AppendCandidate(ctx, id, domain.SideCallee, Cand(i)); err != nil {
			t.Fatalf("AppendCandidate: %v", err)
		}
	}

	if err := s.DeleteRoom(ctx, id); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if err := s.DeleteRoom(ctx, id); err != nil {
		t.Fatalf("second DeleteRoom: %v", err)
	}
	if err := s.DeleteRoom(ctx, "never-existed"); err != nil {
		t.Fatalf("DeleteRoom unknown: %v", err)
	}

	if _, err := s.GetRoom(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRoom after delete err=%v, want ErrNotFound", err)
	}
	if _, err := s.WatchCandidates(ctx, id, domain.SideCaller, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("WatchCandidates after delete err=%v, want ErrNotFound", err)
	}
	if lister, ok := s.(port.RoomLister); ok {
		rooms, err := lister.ListRooms(ctx)
		if err != nil {
			t.Fatalf("ListRooms: %v", err)
		}
		for _, r := range rooms {
			if r.ID == id {
				t.Fatalf("deleted room %s still listed", id)
			}
		}
	}
}

func mustCreate(t *testing.T, s port.RoomStore) domain.RoomID {
	t.Helper()
	id, err := s.CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	return id
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for event")
	}
	var zero T
	return zero
}

func expectNone[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event %+v", v)
		}
	case <-time.After(100 * time.Millisecond):
	}
}
