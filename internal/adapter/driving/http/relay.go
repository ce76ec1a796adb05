package http

import (
	"net/http"

	"github.com/Wyydra/duet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ServeRelay joins the connection to a room and forwards each text frame
// it sends, unchanged, to every other connection in that room.
func (h *Handler) ServeRelay(w http.ResponseWriter, r *http.Request) {
	roomID, err := domain.ParseRoomID(chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := ws.NewClient(conn, ws.ModeRelay)
	l := log.With().Str("client_id", client.ID().String()).Str("room_id", roomID.String()).Logger()
	l.Info().Msg("Relay client connected")

	go client.WritePump()
	h.Presence.Register(client)
	h.Presence.Join(client.ID(), roomID)

	client.ReadPump(func(data []byte) {
		h.Presence.Broadcast(client.ID(), roomID, data)
	})

	l.Info().Msg("Relay client disconnected")
	h.Presence.Unregister(client)
}
