package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxMessageLength = 4096

var (
	ErrEmptyMessage   = errors.New("message content cannot be empty")
	ErrMessageTooLong = errors.New("message content too long")
)

type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func (id MessageID) String() string {
	return string(id)
}

// Message is a chat line sent to the members of a presence room.
type Message struct {
	ID        MessageID
	RoomID    RoomID
	SenderID  ConnectionID
	Content   string
	CreatedAt time.Time
}

func NewMessage(senderID ConnectionID, roomID RoomID, content string, now time.Time) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}
	return &Message{
		ID:        NewMessageID(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: now,
	}, nil
}
