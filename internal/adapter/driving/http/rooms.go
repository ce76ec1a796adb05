package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Wyydra/duet/internal/adapter/roomapi"
	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/port"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	maxBodySize = 64 * 1024
	watchWrite  = 10 * time.Second
)

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	id, err := h.Store.CreateRoom(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomapi.CreateRoomResponse{ID: id.String()})
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	lister, ok := h.Store.(port.RoomLister)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("room listing not supported by this store"))
		return
	}
	rooms, err := lister.ListRooms(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]roomapi.Room, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomapi.FromRoom(room))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	room, err := h.Store.GetRoom(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomapi.FromRoom(room))
}

func (h *Handler) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteRoom(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) putOffer(w http.ResponseWriter, r *http.Request) {
	h.putDescription(w, r, domain.SDPOffer, h.Store.SetOffer)
}

func (h *Handler) putAnswer(w http.ResponseWriter, r *http.Request) {
	h.putDescription(w, r, domain.SDPAnswer, h.Store.SetAnswer)
}

func (h *Handler) putDescription(w http.ResponseWriter, r *http.Request, want domain.SDPType, set func(context.Context, domain.RoomID, domain.SessionDescription) error) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}

	var desc domain.SessionDescription
	if err := decodeBody(w, r, &desc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := desc.Validate(want); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := set(r.Context(), id, desc); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) appendCandidate(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	side, ok := sideParam(w, r)
	if !ok {
		return
	}

	var c domain.Candidate
	if err := decodeBody(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	evt, err := h.Store.AppendCandidate(r.Context(), id, side, c)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomapi.FromCandidateEvent(evt))
}

func (h *Handler) watchRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rooms, err := h.Store.WatchAnswer(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	stream(ctx, cancel, h.upgrader, w, r, rooms, roomapi.FromRoom)
}

func (h *Handler) watchCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	side, ok := sideParam(w, r)
	if !ok {
		return
	}

	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("after: %w", err))
			return
		}
		after = n
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := h.Store.WatchCandidates(ctx, id, side, after)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	stream(ctx, cancel, h.upgrader, w, r, events, roomapi.FromCandidateEvent)
}

// stream upgrades the request and writes every value from src as a JSON
// frame. The watch is cancelled when the peer goes away.
func stream[T, W any](ctx context.Context, cancel context.CancelFunc, upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request, src <-chan T, wire func(T) W) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading watch stream")
		return
	}
	defer conn.Close()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(watchWrite))
			return
		case v, ok := <-src:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(watchWrite))
			if err := conn.WriteJSON(wire(v)); err != nil {
				log.Debug().Err(err).Msg("Watch stream write failed")
				return
			}
		}
	}
}

func roomIDParam(w http.ResponseWriter, r *http.Request) (domain.RoomID, bool) {
	id, err := domain.ParseRoomID(chi.URLParam(r, "roomID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return id, true
}

func sideParam(w http.ResponseWriter, r *http.Request) (domain.Side, bool) {
	side, err := domain.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return side, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := roomapi.StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Store request failed")
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, roomapi.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error writing response")
	}
}
