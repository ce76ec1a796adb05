// Package roomapi holds the JSON shapes and error mapping shared by the
// room store HTTP API and its client.
package roomapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
)

type Room struct {
	ID        string                     `json:"id"`
	Offer     *domain.SessionDescription `json:"offer,omitempty"`
	Answer    *domain.SessionDescription `json:"answer,omitempty"`
	CreatedAt time.Time                  `json:"createdAt"`
	Revision  uint64                     `json:"revision"`
}

func FromRoom(r domain.Room) Room {
	return Room{
		ID:        r.ID.String(),
		Offer:     r.Offer,
		Answer:    r.Answer,
		CreatedAt: r.CreatedAt,
		Revision:  r.Revision,
	}
}

func (r Room) Domain() domain.Room {
	return domain.Room{
		ID:        domain.RoomID(r.ID),
		Offer:     r.Offer,
		Answer:    r.Answer,
		CreatedAt: r.CreatedAt,
		Revision:  r.Revision,
	}
}

type CandidateEvent struct {
	RoomID    string           `json:"roomId"`
	Side      string           `json:"side"`
	Seq       uint64           `json:"seq"`
	Candidate domain.Candidate `json:"candidate"`
}

func FromCandidateEvent(e domain.CandidateEvent) CandidateEvent {
	return CandidateEvent{
		RoomID:    e.RoomID.String(),
		Side:      e.Side.String(),
		Seq:       e.Seq,
		Candidate: e.Candidate,
	}
}

func (e CandidateEvent) Domain() domain.CandidateEvent {
	return domain.CandidateEvent{
		RoomID:    domain.RoomID(e.RoomID),
		Side:      domain.Side(e.Side),
		Seq:       e.Seq,
		Candidate: e.Candidate,
	}
}

type CreateRoomResponse struct {
	ID string `json:"id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

var ErrBadRequest = errors.New("bad request")

// StatusFor maps a store error to the response status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySet):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

// ErrorFor is the inverse of StatusFor, used on the client side.
func ErrorFor(status int, msg string) error {
	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrAlreadySet
	case http.StatusBadRequest:
		sentinel = ErrBadRequest
	default:
		sentinel = domain.ErrStoreUnavailable
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
