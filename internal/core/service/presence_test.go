package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
)

type fakeClient struct {
	id     domain.ConnectionID
	events chan domain.Event

	mu     sync.Mutex
	closed bool
	fail   bool
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: domain.ConnectionID(id), events: make(chan domain.Event, 64)}
}

func (c *fakeClient) ID() domain.ConnectionID { return c.id }

func (c *fakeClient) Send(evt domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send buffer full")
	}
	c.events <- evt
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case evt := <-c.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: timed out waiting for event", c.id)
		return domain.Event{}
	}
}

func (c *fakeClient) expect(t *testing.T, typ domain.EventType) domain.Event {
	t.Helper()
	evt := c.next(t)
	if evt.Type != typ {
		t.Fatalf("%s: got %s event %+v, want %s", c.id, evt.Type, evt, typ)
	}
	return evt
}

func (c *fakeClient) expectNone(t *testing.T) {
	t.Helper()
	select {
	case evt := <-c.events:
		t.Fatalf("%s: unexpected event %+v", c.id, evt)
	default:
	}
}

func startPresence(t *testing.T, cfg PresenceConfig) *PresenceService {
	t.Helper()
	s := NewPresenceService(cfg)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	t.Cleanup(func() {
		s.Stop()
		<-done
	})
	return s
}

func connect(t *testing.T, s *PresenceService, id string) *fakeClient {
	t.Helper()
	c := newFakeClient(id)
	s.Register(c)
	evt := c.expect(t, domain.EventConnected)
	if evt.Subject != c.id {
		t.Fatalf("connected subject=%q, want %q", evt.Subject, c.id)
	}
	return c
}

func sameIDs(got []domain.ConnectionID, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if string(got[i]) != want[i] {
			return false
		}
	}
	return true
}

func TestPresenceJoinAnnouncesInOrder(t *testing.T) {
	s := startPresence(t, PresenceConfig{})
	room := domain.RoomID("r1")

	a := connect(t, s, "A")
	b := connect(t, s, "B")
	c := connect(t, s, "C")

	s.Join(a.id, room)
	if evt := a.expect(t, domain.EventExistingUsers); len(evt.Users) != 0 {
		t.Fatalf("A existing-users=%v, want empty", evt.Users)
	}

	s.Join(b.id, room)
	if evt := a.expect(t, domain.EventUserJoined); evt.Subject != b.id {
		t.Fatalf("A got user-joined %q, want B", evt.Subject)
	}
	if evt := b.expect(t, domain.EventExistingUsers); !sameIDs(evt.Users, "A") {
		t.Fatalf("B existing-users=%v, want [A]", evt.Users)
	}

	s.Join(c.id, room)
	a.expect(t, domain.EventUserJoined)
	b.expect(t, domain.EventUserJoined)
	if evt := c.expect(t, domain.EventExistingUsers); !sameIDs(evt.Users, "A", "B") {
		t.Fatalf("C existing-users=%v, want [A B]", evt.Users)
	}

	if got := s.Members(room); !sameIDs(got, "A", "B", "C") {
		t.Fatalf("members=%v", got)
	}
}

func TestPresenceRejoinDoesNotDuplicate(t *testing.T) {
	s := startPresence(t, PresenceConfig{})
	room := domain.RoomID("r1")

	a := connect(t, s, "A")
	b := connect(t, s, "B")
	s.Join(a.id, room)
	a.expect(t, domain.EventExistingUsers)
	s.Join(b.id, room)
	a.expect(t, domain.EventUserJoined)
	b.expect(t, domain.EventExistingUsers)

	s.Join(b.id, room)
	if evt := b.expect(t, domain.EventExistingUsers); !sameIDs(evt.Users, "A") {
		t.Fatalf("existing-users=%v", evt.Users)
	}
	if got := s.Members(room); !sameIDs(got, "A", "B") {
		t.Fatalf("members=%v", got)
	}
	a.expectNone(t)
}

func TestPresenceDisconnectNotifiesRemaining(t *testing.T) {
	s := startPresence(t, PresenceConfig{})
	room := domain.RoomID("r1")

	a := connect(t, s, "A")
	b := connect(t, s, "B")
	s.Join(a.id, room)
	a.expect(t, domain.EventExistingUsers)
	s.Join(b.id, room)
	a.expect(t, domain.EventUserJoined)
	b.expect(t, domain.EventExistingUsers)

	s.Unregister(b)
	evt := a.expect(t, domain.EventUserLeft)
	if evt.Subject != b.id || evt.RoomID != room {
		t.Fatalf("user-left=%+v", evt)
	}
	if !b.isClosed() {
		t.Fatalf("unregistered client was not closed")
	}
	if got := s.Members(room); !sameIDs(got, "A") {
		t.Fatalf("members=%v", got)
	}

	s.Unregister(b)
	a.expectNone(t)
}

func TestPresenceLeave(t *testing.T) {
	s := startPresence(t, PresenceConfig{PruneEmptyRooms: true})
	room := domain.RoomID("r1")

	a := connect(t, s, "A")
	b := connect(t, s, "B")
	s.Join(a.id, room)
	a.expect(t, domain.EventExistingUsers)
	s.Join(b.id, room)
	a.expect(t, domain.EventUserJoined)
	b.expect(t, domain.EventExistingUsers)

	s.Leave(a.id, room)
	b.expect(t, domain.EventUserLeft)
	s.Leave(b.id, room)

	if got := s.Members(room); len(got) != 0 {
		t.Fatalf("members=%v, want none", got)
	}
	a.expectNone(t)
}

func TestPresenceRelaySignal(t *testing.T) {
	s := startPresence(t, PresenceConfig{})

	a := connect(t, s, "A")
	b := connect(t, s, "B")

	s.RelaySignal(a.id, b.id, []byte(`{"sdp":"x"}`))
	evt := b.expect(t, domain.EventSignal)
	if evt.From != a.id || string(evt.Payload) != `{"sdp":"x"}` {
		t.Fatalf("signal=%+v", evt)
	}

	s.RelaySignal(a.id, "nobody", []byte("lost"))
	// Members round-trips through the actor, so the drop has been handled.
	s.Members("r1")
	a.expectNone(t)
	b.expectNone(t)
}

func TestPresenceBroadcastSkipsSender(t *testing.T) {
	s := startPresence(t, PresenceConfig{})
	room := domain.RoomID("r1")

	a := connect(t, s, "A")
	b := connect(t, s, "B")
	c := connect(t, s, "C")
	for _, cl := range []*fakeClient{a, b, c} {
		s.Join(cl.id, room)
	}
	s.Members(room)
	for _, cl := range []*fakeClient{a, b, c} {
		for len(cl.events) > 0 {
			<-cl.events
		}
	}

	s.Broadcast(a.id, room, []byte("hello"))
	for _, cl := range []*fakeClient{b, c} {
		evt := cl.expect(t, domain.EventRelay)
		if evt.From != a.id || string(evt.Payload) != "hello" {
			t.Fatalf("%s relay=%+v", cl.id, evt)
		}
	}
	s.Members(room)
	a.expectNone(t)
}

func TestPresenceClosesSlowClient(t *testing.T) {
	s := startPresence(t, PresenceConfig{})

	a := connect(t, s, "A")
	b := connect(t, s, "B")
	b.mu.Lock()
	b.fail = true
	b.mu.Unlock()

	s.RelaySignal(a.id, b.id, []byte("x"))
	s.Members("r1")
	if !b.isClosed() {
		t.Fatalf("client failing Send should be closed")
	}
}
