package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
)

// Inbound message types.
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"
	TypeSignal    = "signal"
	TypeChat      = "chat"
)

// Inbound is a message sent by a browser or CLI participant.
type Inbound struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId,omitempty"`
	TargetID string          `json:"targetId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Content  string          `json:"content,omitempty"`
}

var errMissingField = errors.New("missing field")

func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("decode message: %w", err)
	}

	switch in.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeChat:
		if in.RoomID == "" {
			return in, fmt.Errorf("%s: roomId: %w", in.Type, errMissingField)
		}
	case TypeSignal:
		if in.TargetID == "" {
			return in, fmt.Errorf("%s: targetId: %w", in.Type, errMissingField)
		}
	default:
		return in, fmt.Errorf("unknown message type %q", in.Type)
	}
	return in, nil
}

type connectedMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type existingUsersMessage struct {
	Type   string   `json:"type"`
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

type memberMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	ID     string `json:"id"`
}

type signalMessage struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type chatLine struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type chatMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	chatLine
}

type chatHistoryMessage struct {
	Type     string     `json:"type"`
	RoomID   string     `json:"roomId"`
	Messages []chatLine `json:"messages"`
}

func newChatLine(m domain.Message) chatLine {
	return chatLine{
		ID:        m.ID.String(),
		From:      m.SenderID.String(),
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeEvent renders a presence event as the JSON frame sent to clients.
func EncodeEvent(evt domain.Event) ([]byte, error) {
	var msg any
	switch evt.Type {
	case domain.EventConnected:
		msg = connectedMessage{Type: string(evt.Type), ID: evt.Subject.String()}
	case domain.EventExistingUsers:
		users := make([]string, 0, len(evt.Users))
		for _, id := range evt.Users {
			users = append(users, id.String())
		}
		msg = existingUsersMessage{Type: string(evt.Type), RoomID: evt.RoomID.String(), Users: users}
	case domain.EventUserJoined, domain.EventUserLeft:
		msg = memberMessage{Type: string(evt.Type), RoomID: evt.RoomID.String(), ID: evt.Subject.String()}
	case domain.EventSignal:
		payload := json.RawMessage(evt.Payload)
		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		msg = signalMessage{Type: string(evt.Type), From: evt.From.String(), Payload: payload}
	case domain.EventChat:
		if len(evt.Messages) != 1 {
			return nil, fmt.Errorf("chat event carries %d messages", len(evt.Messages))
		}
		msg = chatMessage{Type: string(evt.Type), RoomID: evt.RoomID.String(), chatLine: newChatLine(evt.Messages[0])}
	case domain.EventChatHistory:
		lines := make([]chatLine, 0, len(evt.Messages))
		for _, m := range evt.Messages {
			lines = append(lines, newChatLine(m))
		}
		msg = chatHistoryMessage{Type: string(evt.Type), RoomID: evt.RoomID.String(), Messages: lines}
	case domain.EventError:
		msg = errorMessage{Type: string(evt.Type), Message: evt.Message}
	default:
		return nil, fmt.Errorf("event %q has no JSON form", evt.Type)
	}
	return json.Marshal(msg)
}
