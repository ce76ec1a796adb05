package feed

import (
	"testing"
	"time"
)

func TestPublishWakesSubscribersOfTopicOnly(t *testing.T) {
	f := New()

	a, releaseA := f.Subscribe("rooms/a")
	defer releaseA()
	b, releaseB := f.Subscribe("rooms/b")
	defer releaseB()

	f.Publish("rooms/a")
	f.Publish("rooms/a")

	select {
	case <-a:
	case <-time.After(time.Second):
		t.Fatalf("subscriber of rooms/a not woken")
	}
	select {
	case <-a:
		t.Fatalf("pending wake-ups must coalesce")
	default:
	}
	select {
	case <-b:
		t.Fatalf("subscriber of rooms/b woken by rooms/a")
	default:
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := New()
	_, release := f.Subscribe("rooms/a")
	release()
	release()

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) != 0 {
		t.Fatalf("subs=%d, want 0", len(f.subs))
	}
}
