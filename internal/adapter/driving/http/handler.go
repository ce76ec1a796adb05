package http

import (
	"net/http"

	"github.com/Wyydra/duet/internal/core/port"
	"github.com/Wyydra/duet/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

type Handler struct {
	Presence port.Presence
	Chat     *service.ChatService
	Store    port.RoomStore

	upgrader websocket.Upgrader
}

func NewHandler(presence port.Presence, chat *service.ChatService, store port.RoomStore) *Handler {
	return &Handler{
		Presence: presence,
		Chat:     chat,
		Store:    store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// participants are unauthenticated and may be served from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/ws", h.ServeWS)
	r.Get("/ws/rooms/{roomID}", h.ServeRelay)

	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", h.createRoom)
		r.Get("/", h.listRooms)

		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", h.getRoom)
			r.Delete("/", h.deleteRoom)
			r.Put("/offer", h.putOffer)
			r.Put("/answer", h.putAnswer)
			r.Get("/watch", h.watchRoom)
			r.Post("/candidates/{side}", h.appendCandidate)
			r.Get("/candidates/{side}/watch", h.watchCandidates)
		})
	})

	return r
}
