package domain

import (
	"fmt"
	"time"
)

// Room is the pairing record shared by a caller and a callee. Offer and
// Answer are written at most once each.
type Room struct {
	ID        RoomID
	Offer     *SessionDescription
	Answer    *SessionDescription
	CreatedAt time.Time
	// Revision increases with every accepted write to the room record.
	Revision uint64
}

func (r Room) HasOffer() bool {
	return r.Offer != nil && r.Offer.SDP != ""
}

func (r Room) HasAnswer() bool {
	return r.Answer != nil && r.Answer.SDP != ""
}

// Side separates the two candidate sequences of a room.
type Side string

const (
	SideCaller Side = "caller"
	SideCallee Side = "callee"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideCaller, SideCallee:
		return Side(s), nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) Other() Side {
	if s == SideCaller {
		return SideCallee
	}
	return SideCaller
}

// Collection is the name of the side's candidate sub-collection.
func (s Side) Collection() string {
	return string(s) + "Candidates"
}

func (s Side) String() string {
	return string(s)
}

// CandidateEvent reports one candidate appended to a side. Seq is the
// 1-based position in that side's sequence.
type CandidateEvent struct {
	RoomID    RoomID
	Side      Side
	Seq       uint64
	Candidate Candidate
}
