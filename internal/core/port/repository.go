package port

import (
	"context"

	"github.com/Wyydra/duet/internal/core/domain"
)

// RoomStore keeps rooms and their two candidate sequences. It is the single
// arbiter of ordering: concurrent writers to the same room field are
// serialised with first-writer-wins.
type RoomStore interface {
	CreateRoom(ctx context.Context) (domain.RoomID, error)
	GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error)
	SetOffer(ctx context.Context, id domain.RoomID, offer domain.SessionDescription) error
	SetAnswer(ctx context.Context, id domain.RoomID, answer domain.SessionDescription) error
	AppendCandidate(ctx context.Context, id domain.RoomID, side domain.Side, c domain.Candidate) (domain.CandidateEvent, error)

	// WatchAnswer streams room snapshots, starting with the current one,
	// until ctx is cancelled.
	WatchAnswer(ctx context.Context, id domain.RoomID) (<-chan domain.Room, error)

	// WatchCandidates streams every candidate of side with Seq > after, in
	// order, then each later addition, until ctx is cancelled.
	WatchCandidates(ctx context.Context, id domain.RoomID, side domain.Side, after uint64) (<-chan domain.CandidateEvent, error)

	// DeleteRoom removes the room and both candidate sequences. Deleting an
	// absent room is not an error.
	DeleteRoom(ctx context.Context, id domain.RoomID) error
}

type RoomLister interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
}

// MessageRepository keeps the recent chat of each presence room.
type MessageRepository interface {
	Save(ctx context.Context, msg domain.Message) error
	// Recent returns up to limit of the room's latest messages, oldest first.
	Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error)
}
