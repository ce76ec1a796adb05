package port

import "github.com/Wyydra/duet/internal/core/domain"

// Presence is the live-broadcast signaling surface used by transports.
type Presence interface {
	RoomGateway

	Register(c Client)
	Unregister(c Client)
	Join(id domain.ConnectionID, roomID domain.RoomID)
	Leave(id domain.ConnectionID, roomID domain.RoomID)
	RelaySignal(from, target domain.ConnectionID, payload []byte)
	Broadcast(from domain.ConnectionID, roomID domain.RoomID, payload []byte)
}

// RoomGateway delivers events to the members of a presence room.
type RoomGateway interface {
	Members(roomID domain.RoomID) []domain.ConnectionID
	// Publish sends evt to every member of the room, the sender included.
	Publish(roomID domain.RoomID, evt domain.Event)
}
