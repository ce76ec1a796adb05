package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var errInvalidRoomID = errors.New("invalid room id")

// RoomID identifies a room. It is opaque to everything but the store that
// generated it.
type RoomID string

// ConnectionID identifies one live signaling connection.
type ConnectionID string

func NewRoomID() RoomID {
	return RoomID(uuid.New().String())
}

// ParseRoomID accepts ids typed by a user or taken from a URL. Ids are used
// as store key segments, so path separators are rejected.
func ParseRoomID(s string) (RoomID, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "/ \t\n") {
		return "", errInvalidRoomID
	}
	return RoomID(s), nil
}

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New().String())
}

func (id RoomID) String() string {
	return string(id)
}

func (id ConnectionID) String() string {
	return string(id)
}
