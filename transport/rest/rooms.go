package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
)

type roomResponse struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Players int    `json:"players"`
}

type roomHandler struct {
	logger *slog.Logger
	rooms  roomLookup
}

func (that *roomHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "getRoom")

	code, err := protocol.NormalizeRoomCode(chi.URLParam(r, "code"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	room, err := that.rooms.GetRoom(r.Context(), code)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		http.NotFound(w, r)
		return
	}

	if err != nil {
		log.Error("failed to get room", "roomCode", code, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(roomResponse{
		Code:    room.Code,
		Status:  room.Status,
		Players: len(room.Players),
	}); err != nil {
		log.Error("failed to write response", "error", err)
	}
}
