package feed

import (
	"context"
	"errors"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// WatchRoom emits the current snapshot of the room and then one snapshot
// per revision change until ctx is done.
func (f *Feed) WatchRoom(ctx context.Context, src Source, id domain.RoomID) (<-chan domain.Room, error) {
	wake, release := f.Subscribe(RoomTopic(id))

	first, err := src.GetRoom(ctx, id)
	if err != nil {
		release()
		return nil, err
	}

	out := make(chan domain.Room)
	go func() {
		defer close(out)
		defer release()

		last := first
		if !send(ctx, out, first) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}

			room, err := src.GetRoom(ctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				log.Warn().Err(err).Str("room_id", id.String()).Msg("room watch read failed")
				continue
			}
			if room.Revision == last.Revision {
				continue
			}
			last = room
			if !send(ctx, out, room) {
				return
			}
		}
	}()
	return out, nil
}

// WatchCandidates emits every candidate of side with Seq > after, then each
// later addition, until ctx is done.
func (f *Feed) WatchCandidates(ctx context.Context, src Source, id domain.RoomID, side domain.Side, after uint64) (<-chan domain.CandidateEvent, error) {
	wake, release := f.Subscribe(CandidatesTopic(id, side))

	if _, err := src.GetRoom(ctx, id); err != nil {
		release()
		return nil, err
	}

	out := make(chan domain.CandidateEvent)
	go func() {
		defer close(out)
		defer release()

		last := after
		for {
			events, err := src.CandidatesAfter(ctx, id, side, last)
			if err != nil {
				log.Warn().Err(err).Str("room_id", id.String()).Str("side", side.String()).Msg("candidate watch read failed")
			}
			for _, evt := range events {
				if evt.Seq <= last {
					continue
				}
				if !send(ctx, out, evt) {
					return
				}
				last = evt.Seq
			}

			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}()
	return out, nil
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
