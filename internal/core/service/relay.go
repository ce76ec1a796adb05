package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const resubscribeDelay = 250 * time.Millisecond

// CandidateRelay moves candidates between a negotiator and a room. Local
// candidates are appended to the participant's own side; the other side is
// watched and applied once the remote description is in place.
type CandidateRelay struct {
	store  port.RoomStore
	neg    port.Negotiator
	roomID domain.RoomID
	side   domain.Side
	log    zerolog.Logger

	retryDelay time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewCandidateRelay(store port.RoomStore, neg port.Negotiator, roomID domain.RoomID, side domain.Side) *CandidateRelay {
	return &CandidateRelay{
		store:      store,
		neg:        neg,
		roomID:     roomID,
		side:       side,
		retryDelay: resubscribeDelay,
		log: log.With().
			Str("room_id", roomID.String()).
			Str("side", side.String()).
			Logger(),
	}
}

func (r *CandidateRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.publishLocal(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.applyRemote(ctx)
	}()
}

// Stop ends both loops and waits for them. Later calls do nothing.
func (r *CandidateRelay) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}

func (r *CandidateRelay) publishLocal(ctx context.Context) {
	local := r.neg.LocalCandidates()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-local:
			if !ok {
				r.log.Debug().Msg("Local candidate gathering complete")
				return
			}
			if _, err := r.store.AppendCandidate(ctx, r.roomID, r.side, c); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Error().Err(err).Str("candidate", c.Candidate).Msg("Failed to publish local candidate")
			}
		}
	}
}

// applyRemote keeps a subscription to the other side open for the whole
// call. A stream that ends early is resumed after the last seq seen.
func (r *CandidateRelay) applyRemote(ctx context.Context) {
	var (
		events  <-chan domain.CandidateEvent
		retry   <-chan time.Time
		last    uint64
		pending []domain.Candidate
		seen    = make(map[string]struct{})
		ready   = r.neg.RemoteDescriptionSet()
	)

	for {
		if events == nil && retry == nil {
			ch, err := r.store.WatchCandidates(ctx, r.roomID, r.side.Other(), last)
			switch {
			case err == nil:
				events = ch
			case ctx.Err() != nil:
				return
			case errors.Is(err, domain.ErrNotFound):
				r.log.Info().Msg("Room is gone, no more remote candidates")
				return
			default:
				r.log.Warn().Err(err).Uint64("after", last).Msg("Failed to watch remote candidates, retrying")
				retry = time.After(r.retryDelay)
			}
		}

		select {
		case <-ctx.Done():
			return

		case <-retry:
			retry = nil

		case <-ready:
			ready = nil
			if len(pending) > 0 {
				r.log.Debug().Int("count", len(pending)).Msg("Applying queued remote candidates")
			}
			for _, c := range pending {
				r.apply(c)
			}
			pending = nil

		case evt, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				r.log.Warn().Uint64("after", last).Msg("Remote candidate stream ended, resubscribing")
				events = nil
				retry = time.After(r.retryDelay)
				continue
			}
			if evt.Seq > last {
				last = evt.Seq
			}

			key := evt.Candidate.Key()
			if _, dup := seen[key]; dup {
				r.log.Debug().Uint64("seq", evt.Seq).Msg("Skipping duplicate remote candidate")
				continue
			}
			seen[key] = struct{}{}

			// queued candidates go first, whatever the negotiator says now
			if ready != nil {
				pending = append(pending, evt.Candidate)
				continue
			}
			r.apply(evt.Candidate)
		}
	}
}

func (r *CandidateRelay) apply(c domain.Candidate) {
	if err := r.neg.AddRemoteCandidate(c); err != nil {
		r.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Failed to apply remote candidate")
	}
}
