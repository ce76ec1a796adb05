package service

import (
	"sync"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/rs/zerolog/log"
)

type PresenceConfig struct {
	// PruneEmptyRooms drops a room from the membership map when its last
	// member leaves.
	PruneEmptyRooms bool
}

type membership struct {
	id     domain.ConnectionID
	roomID domain.RoomID
}

type signalRequest struct {
	from    domain.ConnectionID
	target  domain.ConnectionID
	payload []byte
}

// broadcastRequest delivers evt to the room, skipping one member if set.
type broadcastRequest struct {
	skip   domain.ConnectionID
	roomID domain.RoomID
	evt    domain.Event
}

type membersRequest struct {
	roomID domain.RoomID
	reply  chan []domain.ConnectionID
}

// PresenceService owns the connection registry and room membership. All
// state lives in the Run goroutine, so a membership change and the events
// it causes are applied in one step.
type PresenceService struct {
	cfg PresenceConfig

	clients map[domain.ConnectionID]port.Client
	rooms   map[domain.RoomID][]domain.ConnectionID

	register   chan port.Client
	unregister chan port.Client
	join       chan membership
	leave      chan membership
	signal     chan signalRequest
	broadcast  chan broadcastRequest
	members    chan membersRequest

	quit     chan struct{}
	stopOnce sync.Once
}

func NewPresenceService(cfg PresenceConfig) *PresenceService {
	return &PresenceService{
		cfg:        cfg,
		clients:    make(map[domain.ConnectionID]port.Client),
		rooms:      make(map[domain.RoomID][]domain.ConnectionID),
		register:   make(chan port.Client),
		unregister: make(chan port.Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		signal:     make(chan signalRequest),
		broadcast:  make(chan broadcastRequest),
		members:    make(chan membersRequest),
		quit:       make(chan struct{}),
	}
}

func (s *PresenceService) Register(c port.Client) {
	select {
	case s.register <- c:
	case <-s.quit:
	}
}

func (s *PresenceService) Unregister(c port.Client) {
	select {
	case s.unregister <- c:
	case <-s.quit:
	}
}

func (s *PresenceService) Join(id domain.ConnectionID, roomID domain.RoomID) {
	select {
	case s.join <- membership{id: id, roomID: roomID}:
	case <-s.quit:
	}
}

func (s *PresenceService) Leave(id domain.ConnectionID, roomID domain.RoomID) {
	select {
	case s.leave <- membership{id: id, roomID: roomID}:
	case <-s.quit:
	}
}

// RelaySignal forwards payload to target. A target that is not connected
// is dropped without telling the sender.
func (s *PresenceService) RelaySignal(from, target domain.ConnectionID, payload []byte) {
	select {
	case s.signal <- signalRequest{from: from, target: target, payload: payload}:
	case <-s.quit:
	}
}

// Broadcast sends payload to every other member of the room.
func (s *PresenceService) Broadcast(from domain.ConnectionID, roomID domain.RoomID, payload []byte) {
	select {
	case s.broadcast <- broadcastRequest{
		skip:   from,
		roomID: roomID,
		evt: domain.Event{
			Type:    domain.EventRelay,
			RoomID:  roomID,
			From:    from,
			Payload: payload,
		},
	}:
	case <-s.quit:
	}
}

// Publish sends evt to every member of the room.
func (s *PresenceService) Publish(roomID domain.RoomID, evt domain.Event) {
	select {
	case s.broadcast <- broadcastRequest{roomID: roomID, evt: evt}:
	case <-s.quit:
	}
}

// Members returns the room's members in join order.
func (s *PresenceService) Members(roomID domain.RoomID) []domain.ConnectionID {
	req := membersRequest{roomID: roomID, reply: make(chan []domain.ConnectionID, 1)}
	select {
	case s.members <- req:
		return <-req.reply
	case <-s.quit:
		return nil
	}
}

func (s *PresenceService) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
}

func (s *PresenceService) Run() {
	for {
		select {
		case <-s.quit:
			log.Info().Int("count", len(s.clients)).Msg("Stopping presence service, disconnecting clients")
			for id, client := range s.clients {
				if err := client.Close(); err != nil {
					log.Error().Err(err).Str("client_id", id.String()).Msg("Error closing client connection")
				}
				delete(s.clients, id)
			}
			return

		case client := <-s.register:
			s.clients[client.ID()] = client
			log.Info().Int("count", len(s.clients)).Str("client_id", client.ID().String()).Msg("Client registered")
			s.send(client, domain.Event{Type: domain.EventConnected, Subject: client.ID()})

		case client := <-s.unregister:
			s.handleDisconnect(client)

		case m := <-s.join:
			s.handleJoin(m)

		case m := <-s.leave:
			if s.removeMember(m.id, m.roomID) {
				log.Info().Str("client_id", m.id.String()).Str("room_id", m.roomID.String()).Msg("Client left room")
			}

		case req := <-s.signal:
			target, ok := s.clients[req.target]
			if !ok {
				log.Debug().Err(domain.ErrTargetUnreachable).
					Str("client_id", req.from.String()).
					Str("target_id", req.target.String()).
					Msg("Dropping signal")
				continue
			}
			s.send(target, domain.NewSignalEvent(req.from, req.payload))

		case req := <-s.broadcast:
			for _, id := range s.rooms[req.roomID] {
				if id == req.skip {
					continue
				}
				s.send(s.clients[id], req.evt)
			}

		case req := <-s.members:
			req.reply <- append([]domain.ConnectionID(nil), s.rooms[req.roomID]...)
		}
	}
}

func (s *PresenceService) handleJoin(m membership) {
	client, ok := s.clients[m.id]
	if !ok {
		log.Warn().Str("client_id", m.id.String()).Msg("Join from unregistered client")
		return
	}

	l := log.With().Str("client_id", m.id.String()).Str("room_id", m.roomID.String()).Logger()

	members := s.rooms[m.roomID]
	others := make([]domain.ConnectionID, 0, len(members))
	already := false
	for _, id := range members {
		if id == m.id {
			already = true
			continue
		}
		others = append(others, id)
	}

	if !already {
		for _, id := range others {
			s.send(s.clients[id], domain.Event{Type: domain.EventUserJoined, RoomID: m.roomID, Subject: m.id})
		}
		s.rooms[m.roomID] = append(members, m.id)
		l.Info().Int("count", len(members)+1).Msg("Client joined room")
	}

	s.send(client, domain.Event{Type: domain.EventExistingUsers, RoomID: m.roomID, Users: others})
}

func (s *PresenceService) handleDisconnect(client port.Client) {
	id := client.ID()
	if _, ok := s.clients[id]; !ok {
		return
	}
	delete(s.clients, id)

	for roomID := range s.rooms {
		s.removeMember(id, roomID)
	}

	if err := client.Close(); err != nil {
		log.Debug().Err(err).Str("client_id", id.String()).Msg("Error closing client connection")
	}
	log.Info().Int("count", len(s.clients)).Str("client_id", id.String()).Msg("Client unregistered")
}

// removeMember drops id from the room and notifies the remaining members.
func (s *PresenceService) removeMember(id domain.ConnectionID, roomID domain.RoomID) bool {
	members := s.rooms[roomID]
	idx := -1
	for i, m := range members {
		if m == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	remaining := append(members[:idx:idx], members[idx+1:]...)
	if len(remaining) == 0 && s.cfg.PruneEmptyRooms {
		delete(s.rooms, roomID)
	} else {
		s.rooms[roomID] = remaining
	}

	for _, m := range remaining {
		s.send(s.clients[m], domain.Event{Type: domain.EventUserLeft, RoomID: roomID, Subject: id})
	}
	return true
}

// send never blocks the actor. A client that cannot keep up is closed and
// unregisters itself from its read loop.
func (s *PresenceService) send(c port.Client, evt domain.Event) {
	if c == nil {
		return
	}
	if err := c.Send(evt); err != nil {
		log.Error().Err(err).Str("client_id", c.ID().String()).Msg("Error sending event, closing client")
		_ = c.Close()
	}
}
