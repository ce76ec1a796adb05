// Package feed wakes store watchers after a write commits. Watchers
// subscribe before reading, so nothing committed between their read and
// their wait is missed; a wake-up only says "read again".
package feed

import (
	"context"
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
)

type Feed struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func New() *Feed {
	return &Feed{
		subs: make(map[string]map[chan struct{}]struct{}),
	}
}

func RoomTopic(id domain.RoomID) string {
	return "rooms/" + id.String()
}

func CandidatesTopic(id domain.RoomID, side domain.Side) string {
	return "rooms/" + id.String() + "/" + side.Collection()
}

// Subscribe returns a wake-up channel for topic and a func releasing it.
func (f *Feed) Subscribe(topic string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	if f.subs[topic] == nil {
		f.subs[topic] = make(map[chan struct{}]struct{})
	}
	f.subs[topic][ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[topic], ch)
			if len(f.subs[topic]) == 0 {
				delete(f.subs, topic)
			}
		})
	}
}

func (f *Feed) Publish(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for ch := range f.subs[topic] {
		select {
		case ch <- struct{}{}:
		default:
			// a wake-up is already pending
		}
	}
}

// Source is the read side a store exposes to the watch loops.
type Source interface {
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	CandidatesAfter(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) ([]domain.CandidateEvent, error)
}
