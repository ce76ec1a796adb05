package http

import (
	"context"
	"net/http"

	"github.com/Wyydra/duet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// ServeWS speaks the presence protocol: join and leave rooms, chat in them,
// and relay signals to other connections by id.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := ws.NewClient(conn, ws.ModePresence)
	l := log.With().Str("client_id", client.ID().String()).Logger()
	l.Info().Msg("New client connected")

	go client.WritePump()
	h.Presence.Register(client)

	client.ReadPump(func(data []byte) {
		in, err := ws.DecodeInbound(data)
		if err != nil {
			l.Debug().Err(err).Msg("Rejecting message")
			_ = client.Send(domain.Event{Type: domain.EventError, Message: err.Error()})
			return
		}

		switch in.Type {
		case ws.TypeJoinRoom, ws.TypeLeaveRoom:
			roomID, err := domain.ParseRoomID(in.RoomID)
			if err != nil {
				_ = client.Send(domain.Event{Type: domain.EventError, Message: err.Error()})
				return
			}
			if in.Type == ws.TypeJoinRoom {
				h.Presence.Join(client.ID(), roomID)
				h.sendHistory(r.Context(), client, roomID)
			} else {
				h.Presence.Leave(client.ID(), roomID)
			}
		case ws.TypeChat:
			roomID, err := domain.ParseRoomID(in.RoomID)
			if err == nil {
				err = h.Chat.SendMessage(r.Context(), client.ID(), roomID, in.Content)
			}
			if err != nil {
				l.Debug().Err(err).Msg("Rejecting chat message")
				_ = client.Send(domain.Event{Type: domain.EventError, Message: err.Error()})
			}
		case ws.TypeSignal:
			h.Presence.RelaySignal(client.ID(), domain.ConnectionID(in.TargetID), in.Payload)
		}
	})

	l.Info().Msg("Client disconnected")
	h.Presence.Unregister(client)
}

func (h *Handler) sendHistory(ctx context.Context, client *ws.Client, roomID domain.RoomID) {
	msgs, err := h.Chat.History(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("Error loading chat history")
		return
	}
	if len(msgs) == 0 {
		return
	}
	_ = client.Send(domain.Event{Type: domain.EventChatHistory, RoomID: roomID, Messages: msgs})
}
