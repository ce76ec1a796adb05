package badger

import (
	"fmt"
	"strings"

	"github.com/Wyydra/duet/internal/core/domain"
)

// Key layout mirrors a document store:
//
//	rooms/{id}                          room record
//	rooms/{id}/{side}Candidates         next sequence number
//	rooms/{id}/{side}Candidates/{seq}   candidate record
const roomsPrefix = "rooms/"

func roomKey(id domain.RoomID) []byte {
	return []byte(roomsPrefix + id.String())
}

func roomChildrenPrefix(id domain.RoomID) []byte {
	return []byte(roomsPrefix + id.String() + "/")
}

func counterKey(id domain.RoomID, side domain.Side) []byte {
	return []byte(roomsPrefix + id.String() + "/" + side.Collection())
}

func candidatesPrefix(id domain.RoomID, side domain.Side) []byte {
	return []byte(roomsPrefix + id.String() + "/" + side.Collection() + "/")
}

// zero-padded so lexical key order is append order
func candidateKey(id domain.RoomID, side domain.Side, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%020d", roomsPrefix, id, side.Collection(), seq))
}

// isRoomKey reports whether key names a room record rather than a child.
func isRoomKey(key []byte) bool {
	rest := strings.TrimPrefix(string(key), roomsPrefix)
	return rest != "" && !strings.Contains(rest, "/")
}
