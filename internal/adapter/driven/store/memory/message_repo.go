package memory

import (
	"context"
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
)

// DefaultRoomBacklog bounds the messages kept per room.
const DefaultRoomBacklog = 200

// MessageRepository keeps the latest chat of each room in memory. Older
// messages are dropped once a room holds more than its backlog.
type MessageRepository struct {
	mu       sync.Mutex
	backlog  int
	messages map[domain.RoomID][]domain.Message
}

func NewMessageRepository(backlog int) *MessageRepository {
	if backlog <= 0 {
		backlog = DefaultRoomBacklog
	}
	return &MessageRepository{
		backlog:  backlog,
		messages: make(map[domain.RoomID][]domain.Message),
	}
}

func (r *MessageRepository) Save(ctx context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := append(r.messages[msg.RoomID], msg)
	if over := len(msgs) - r.backlog; over > 0 {
		msgs = append([]domain.Message(nil), msgs[over:]...)
	}
	r.messages[msg.RoomID] = msgs
	return nil
}

func (r *MessageRepository) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := r.messages[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}
