package domain

type EventType string

const (
	EventConnected     EventType = "connected"
	EventExistingUsers EventType = "existing-users"
	EventUserJoined    EventType = "user-joined"
	EventUserLeft      EventType = "user-left"
	EventSignal        EventType = "signal"
	EventRelay         EventType = "relay"
	EventChat          EventType = "chat"
	EventChatHistory   EventType = "chat-history"
	EventError         EventType = "error"
)

// Event is a message pushed from the presence service to one connection.
// Payload is forwarded untouched.
type Event struct {
	Type    EventType
	RoomID  RoomID
	Subject ConnectionID
	From    ConnectionID
	Users   []ConnectionID
	Payload []byte
	Message string

	// Messages carries chat lines, oldest first.
	Messages []Message
}

func NewSignalEvent(from ConnectionID, payload []byte) Event {
	return Event{
		Type:    EventSignal,
		From:    from,
		Payload: payload,
	}
}

func NewChatEvent(msg Message) Event {
	return Event{
		Type:     EventChat,
		RoomID:   msg.RoomID,
		From:     msg.SenderID,
		Messages: []Message{msg},
	}
}
