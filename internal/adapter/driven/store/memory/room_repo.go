package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/adapter/driven/store/feed"
	"github.com/Wyydra/duet/internal/core/domain"
)

type roomEntry struct {
	room       domain.Room
	candidates map[domain.Side][]domain.CandidateEvent
}

// RoomRepository is an in-process port.RoomStore.
type RoomRepository struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*roomEntry
	feed  *feed.Feed
	newID func() domain.RoomID
	now   func() time.Time
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{
		rooms: make(map[domain.RoomID]*roomEntry),
		feed:  feed.New(),
		newID: domain.NewRoomID,
		now:   time.Now,
	}
}

func (r *RoomRepository) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, ok := r.rooms[id]; !ok {
			break
		}
		id = r.newID()
	}

	r.rooms[id] = &roomEntry{
		room: domain.Room{
			ID:        id,
			CreatedAt: r.now(),
			Revision:  1,
		},
		candidates: make(map[domain.Side][]domain.CandidateEvent),
	}
	return id, nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[id]
	if !ok {
		return domain.Room{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	return copyRoom(e.room), nil
}

func (r *RoomRepository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	r.mu.Lock()
	rooms := make([]domain.Room, 0, len(r.rooms))
	for _, e := range r.rooms {
		rooms = append(rooms, copyRoom(e.room))
	}
	r.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (r *RoomRepository) SetOffer(ctx context.Context, id domain.RoomID, offer domain.SessionDescription) error {
	return r.setField(id, "offer", func(room *domain.Room) **domain.SessionDescription { return &room.Offer }, offer)
}

func (r *RoomRepository) SetAnswer(ctx context.Context, id domain.RoomID, answer domain.SessionDescription) error {
	return r.setField(id, "answer", func(room *domain.Room) **domain.SessionDescription { return &room.Answer }, answer)
}

func (r *RoomRepository) setField(id domain.RoomID, name string, field func(*domain.Room) **domain.SessionDescription, desc domain.SessionDescription) error {
	r.mu.Lock()
	e, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	slot := field(&e.room)
	if *slot != nil {
		r.mu.Unlock()
		return fmt.Errorf("room %s %s: %w", id, name, domain.ErrAlreadySet)
	}
	d := desc
	*slot = &d
	e.room.Revision++
	r.mu.Unlock()

	r.feed.Publish(feed.RoomTopic(id))
	return nil
}

func (r *RoomRepository) AppendCandidate(ctx context.Context, id domain.RoomID, side domain.Side, c domain.Candidate) (domain.CandidateEvent, error) {
	r.mu.Lock()
	e, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return domain.CandidateEvent{}, fmt.Errorf("room %s: %w", id, domain.ErrNotFound)
	}
	evt := domain.CandidateEvent{
		RoomID:    id,
		Side:      side,
		Seq:       uint64(len(e.candidates[side])) + 1,
		Candidate: c,
	}
	e.candidates[side] = append(e.candidates[side], evt)
	r.mu.Unlock()

	r.feed.Publish(feed.CandidatesTopic(id, side))
	return evt, nil
}

func (r *RoomRepository) CandidatesAfter(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) ([]domain.CandidateEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rooms[id]
	if !ok {
		return nil, nil
	}
	seq := e.candidates[side]
	if after >= uint64(len(seq)) {
		return nil, nil
	}
	out := make([]domain.CandidateEvent, len(seq)-int(after))
	copy(out, seq[after:])
	return out, nil
}

func (r *RoomRepository) WatchAnswer(ctx context.Context, id domain.RoomID) (<-chan domain.Room, error) {
	return r.feed.WatchRoom(ctx, r, id)
}

func (r *RoomRepository) WatchCandidates(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) (<-chan domain.CandidateEvent, error) {
	return r.feed.WatchCandidates(ctx, r, id, side, after)
}

func (r *RoomRepository) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	r.mu.Lock()
	_, ok := r.rooms[id]
	delete(r.rooms, id)
	r.mu.Unlock()

	if ok {
		r.feed.Publish(feed.RoomTopic(id))
	}
	return nil
}

func copyRoom(room domain.Room) domain.Room {
	if room.Offer != nil {
		o := *room.Offer
		room.Offer = &o
	}
	if room.Answer != nil {
		a := *room.Answer
		room.Answer = &a
	}
	return room
}
