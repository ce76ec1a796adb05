package badger

import (
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/vmihailenco/msgpack/v5"
)

type roomRecord struct {
	ID        string                     `msgpack:"id"`
	Offer     *domain.SessionDescription `msgpack:"offer,omitempty"`
	Answer    *domain.SessionDescription `msgpack:"answer,omitempty"`
	CreatedAt time.Time                  `msgpack:"createdAt"`
	Revision  uint64                     `msgpack:"revision"`
}

type candidateRecord struct {
	Seq       uint64           `msgpack:"seq"`
	Candidate domain.Candidate `msgpack:"candidate"`
}

func (r roomRecord) toDomain() domain.Room {
	return domain.Room{
		ID:        domain.RoomID(r.ID),
		Offer:     r.Offer,
		Answer:    r.Answer,
		CreatedAt: r.CreatedAt,
		Revision:  r.Revision,
	}
}

func encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decode(b []byte, v any) error {
	return msgpack.Unmarshal(b, v)
}
