package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BioHazard786/Ghostlink/internal/directory"
	"github.com/go-chi/chi/v5"
)

// RoomHandler serves the session directory over HTTP.
type RoomHandler struct {
	dir directory.Directory
	log *slog.Logger
}

func NewRoomHandler(dir directory.Directory, log *slog.Logger) *RoomHandler {
	return &RoomHandler{dir: dir, log: log}
}

// GetRoom handles GET /api/rooms/{code}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := directory.ValidateCode(code); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	room, err := h.dir.Get(r.Context(), code)
	switch {
	case errors.Is(err, directory.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
		return
	case err != nil:
		h.log.Error("get room", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// CreateRoom handles POST /api/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var room directory.Room
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&room); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room.Code = directory.NormalizeCode(room.Code)
	if err := room.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.dir.Create(r.Context(), &room)
	switch {
	case errors.Is(err, directory.ErrRoomExists):
		writeError(w, http.StatusConflict, "room already exists")
		return
	case err != nil:
		h.log.Error("create room", "code", room.Code, "error", err)
		writeError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	h.log.Info("room created", "code", room.Code, "limit", room.TimeLimit)
	writeJSON(w, http.StatusCreated, room)
}

// DeleteRoom handles DELETE /api/rooms/{code}
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.dir.Delete(r.Context(), code); err != nil {
		h.log.Error("delete room", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
