package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/rs/zerolog/log"
)

const teardownTimeout = 5 * time.Second

type CallOption func(*CallService)

// WithLocalMedia opens a local media source for every call. The source is
// stopped on hangup.
func WithLocalMedia(open func() (port.LocalMedia, error)) CallOption {
	return func(s *CallService) {
		s.openMedia = open
	}
}

// CallService drives one participant through creating or joining a room.
// A participant has at most one call at a time.
type CallService struct {
	store     port.RoomStore
	factory   port.NegotiatorFactory
	openMedia func() (port.LocalMedia, error)

	mu        sync.Mutex
	state     domain.CallState
	role      domain.CallRole
	roomID    domain.RoomID
	neg       port.Negotiator
	media     port.LocalMedia
	relay     *CandidateRelay
	cancel    context.CancelFunc
	connected chan struct{}
	failed    chan error
}

func NewCallService(store port.RoomStore, factory port.NegotiatorFactory, opts ...CallOption) *CallService {
	s := &CallService{
		store:     store,
		factory:   factory,
		state:     domain.StateIdle,
		connected: make(chan struct{}),
		failed:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CallService) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallService) Role() domain.CallRole {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *CallService) RoomID() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Connected is closed when the current call reaches the connected state.
func (s *CallService) Connected() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Failed delivers the error that ended a created room's attempt while it
// was waiting for an answer. The room has been torn down by then.
func (s *CallService) Failed() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// RemoteTracks reports media the peer sends on the current call, or nil
// when there is no call.
func (s *CallService) RemoteTracks() <-chan domain.RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.neg == nil {
		return nil
	}
	return s.neg.RemoteTracks()
}

// CreateRoom opens a room, publishes an offer into it and waits in the
// background for an answer.
func (s *CallService) CreateRoom(ctx context.Context) (domain.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "create"
	if s.state != domain.StateIdle {
		return "", &CallError{Op: op, RoomID: s.roomID, Err: domain.ErrCallActive}
	}
	s.begin(domain.RoleCreator)

	fail := func(err error) (domain.RoomID, error) {
		id := s.roomID
		s.teardown(ctx, id != "")
		return "", &CallError{Op: op, RoomID: id, Err: err}
	}

	id, err := s.store.CreateRoom(ctx)
	if err != nil {
		return fail(err)
	}
	s.roomID = id
	s.state = domain.StateRoomCreated
	l := log.With().Str("room_id", id.String()).Str("role", string(s.role)).Logger()
	l.Info().Msg("Room created")

	neg, err := s.openNegotiator(ctx)
	if err != nil {
		return fail(err)
	}

	offer, err := neg.CreateOffer(ctx)
	if err != nil {
		return fail(err)
	}
	if err := neg.SetLocalDescription(offer); err != nil {
		return fail(err)
	}
	if err := s.store.SetOffer(ctx, id, offer); err != nil {
		return fail(err)
	}
	s.state = domain.StateOfferPublished
	l.Debug().Msg("Offer published")

	// outlives ctx: the call runs until HangUp
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.relay = NewCandidateRelay(s.store, neg, id, s.role.Side())
	s.relay.Start(callCtx)

	snaps, err := s.store.WatchAnswer(callCtx, id)
	if err != nil {
		return fail(err)
	}
	s.state = domain.StateAwaitingAnswer
	go s.awaitAnswer(callCtx, neg, id, snaps)

	return id, nil
}

// awaitAnswer applies the first answer seen in the room and ignores every
// later snapshot. An answer that cannot be applied ends the attempt.
func (s *CallService) awaitAnswer(ctx context.Context, neg port.Negotiator, id domain.RoomID, snaps <-chan domain.Room) {
	l := log.With().Str("room_id", id.String()).Logger()

	for {
		for room := range snaps {
			if !room.HasAnswer() || neg.HasRemoteDescription() {
				continue
			}

			err := room.Answer.Validate(domain.SDPAnswer)
			if err != nil {
				err = fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
			} else {
				err = neg.SetRemoteDescription(*room.Answer)
			}
			if err != nil {
				s.failAttempt(neg, fmt.Errorf("apply answer: %w", err))
				return
			}

			s.mu.Lock()
			if s.neg == neg {
				s.state = domain.StateConnected
				close(s.connected)
				l.Info().Msg("Answer applied, call connected")
			}
			s.mu.Unlock()
		}

		if ctx.Err() != nil || neg.HasRemoteDescription() {
			return
		}

		l.Warn().Msg("Answer stream ended, resubscribing")
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}

			next, err := s.store.WatchAnswer(ctx, id)
			if err == nil {
				snaps = next
				break
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				s.failAttempt(neg, fmt.Errorf("%w: %v", domain.ErrRoomNotFound, err))
				return
			}
			l.Warn().Err(err).Msg("Failed to watch answer, retrying")
		}
	}
}

// failAttempt tears down a creator's attempt that broke after CreateRoom
// returned and reports it on Failed.
func (s *CallService) failAttempt(neg port.Negotiator, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.neg != neg {
		return
	}

	callErr := &CallError{Op: "create", RoomID: s.roomID, Err: err}
	log.Error().Err(err).Str("room_id", s.roomID.String()).Msg("Call attempt failed")

	failed := s.failed
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	s.teardown(ctx, true)
	failed <- callErr
}

// JoinRoom answers the offer waiting in room id.
func (s *CallService) JoinRoom(ctx context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "join"
	if s.state != domain.StateIdle {
		return &CallError{Op: op, RoomID: s.roomID, Err: domain.ErrCallActive}
	}
	s.begin(domain.RoleJoiner)
	s.roomID = id
	s.state = domain.StateValidating

	// a joiner that failed never removes the room it tried to join
	fail := func(err error) error {
		s.teardown(ctx, false)
		return &CallError{Op: op, RoomID: id, Err: err}
	}

	room, err := s.store.GetRoom(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fail(fmt.Errorf("%w: %v", domain.ErrRoomNotFound, err))
	case err != nil:
		return fail(err)
	case !room.HasOffer():
		return fail(domain.ErrRoomNotReady)
	case room.HasAnswer():
		return fail(domain.ErrRoomAlreadyAnswered)
	}
	if err := room.Offer.Validate(domain.SDPOffer); err != nil {
		return fail(err)
	}

	l := log.With().Str("room_id", id.String()).Str("role", string(s.role)).Logger()

	neg, err := s.openNegotiator(ctx)
	if err != nil {
		return fail(err)
	}
	if err := neg.SetRemoteDescription(*room.Offer); err != nil {
		return fail(err)
	}
	s.state = domain.StateOfferApplied

	answer, err := neg.CreateAnswer(ctx)
	if err != nil {
		return fail(err)
	}
	if err := neg.SetLocalDescription(answer); err != nil {
		return fail(err)
	}

	err = s.store.SetAnswer(ctx, id, answer)
	switch {
	case errors.Is(err, domain.ErrAlreadySet):
		l.Info().Msg("Room answered by another participant")
		return fail(fmt.Errorf("%w: %v", domain.ErrRoomAlreadyAnswered, err))
	case errors.Is(err, domain.ErrNotFound):
		return fail(fmt.Errorf("%w: %v", domain.ErrRoomNotFound, err))
	case err != nil:
		return fail(err)
	}
	s.state = domain.StateAnswerPublished
	l.Debug().Msg("Answer published")

	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.relay = NewCandidateRelay(s.store, neg, id, s.role.Side())
	s.relay.Start(callCtx)

	s.state = domain.StateConnected
	close(s.connected)
	l.Info().Msg("Joined room, call connected")
	return nil
}

// HangUp ends the current call and deletes its room. It never fails and
// is safe to call when there is no call.
func (s *CallService) HangUp(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown(ctx, true)
}

func (s *CallService) begin(role domain.CallRole) {
	s.role = role
	s.connected = make(chan struct{})
	s.failed = make(chan error, 1)
}

// openNegotiator creates the negotiator for this attempt and attaches
// local media to it.
func (s *CallService) openNegotiator(ctx context.Context) (port.Negotiator, error) {
	neg, err := s.factory.NewNegotiator(ctx)
	if err != nil {
		return nil, err
	}
	s.neg = neg

	if s.openMedia == nil {
		return neg, nil
	}
	media, err := s.openMedia()
	if err != nil {
		return nil, fmt.Errorf("open local media: %w", err)
	}
	s.media = media
	for _, track := range media.Tracks() {
		if err := neg.AddLocalTrack(track); err != nil {
			return nil, err
		}
	}
	return neg, nil
}

// teardown releases everything the current call holds. Errors are logged
// and swallowed. Callers hold s.mu.
func (s *CallService) teardown(ctx context.Context, deleteRoom bool) {
	l := log.With().Str("room_id", s.roomID.String()).Str("role", string(s.role)).Logger()

	if s.cancel != nil {
		s.cancel()
	}
	if s.relay != nil {
		s.relay.Stop()
	}
	if s.neg != nil {
		if err := s.neg.Close(); err != nil {
			l.Warn().Err(err).Msg("Failed to close negotiator")
		}
	}
	if s.media != nil {
		if err := s.media.Stop(); err != nil {
			l.Warn().Err(err).Msg("Failed to stop local media")
		}
	}
	if deleteRoom && s.roomID != "" {
		if err := s.store.DeleteRoom(ctx, s.roomID); err != nil {
			l.Warn().Err(err).Msg("Failed to delete room")
		} else {
			l.Info().Msg("Room deleted")
		}
	}

	s.state = domain.StateIdle
	s.role = domain.RoleNone
	s.roomID = ""
	s.neg = nil
	s.media = nil
	s.relay = nil
	s.cancel = nil
}
