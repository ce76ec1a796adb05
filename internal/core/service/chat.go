package service

import (
	"context"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/rs/zerolog/log"
)

// DefaultHistorySize is how many recent messages a joiner is shown.
const DefaultHistorySize = 50

type ChatService struct {
	repo        port.MessageRepository
	rooms       port.RoomGateway
	historySize int
	now         func() time.Time
}

func NewChatService(repo port.MessageRepository, rooms port.RoomGateway, historySize int) *ChatService {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &ChatService{
		repo:        repo,
		rooms:       rooms,
		historySize: historySize,
		now:         time.Now,
	}
}

// SendMessage stores a chat line and delivers it to everyone in the room,
// the sender included. Only members of the room may post to it.
func (s *ChatService) SendMessage(ctx context.Context, senderID domain.ConnectionID, roomID domain.RoomID, content string) error {
	msg, err := domain.NewMessage(senderID, roomID, content, s.now())
	if err != nil {
		return err
	}

	if !isMember(s.rooms.Members(roomID), senderID) {
		return domain.ErrNotRoomMember
	}

	if err := s.repo.Save(ctx, *msg); err != nil {
		return err
	}
	s.rooms.Publish(roomID, domain.NewChatEvent(*msg))

	log.Debug().
		Str("client_id", senderID.String()).
		Str("room_id", roomID.String()).
		Str("message_id", msg.ID.String()).
		Msg("Chat message sent")
	return nil
}

// History returns the room's recent messages, oldest first.
func (s *ChatService) History(ctx context.Context, roomID domain.RoomID) ([]domain.Message, error) {
	return s.repo.Recent(ctx, roomID, s.historySize)
}

func isMember(members []domain.ConnectionID, id domain.ConnectionID) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}
