package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"letschat/internal/service"

	"github.com/go-chi/chi/v5"
)

// RoomHandler handles room and message endpoints
type RoomHandler struct {
	chatService *service.ChatService
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(chatService *service.ChatService) *RoomHandler {
	return &RoomHandler{
		chatService: chatService,
	}
}

// PostMessageRequest represents a message submission
type PostMessageRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

// List retrieves all rooms
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chatService.ListRooms(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
	})
}

// Get returns a single room
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.chatService.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// GetMessages returns the room's messages with an id greater than ?after (default 0)
func (h *RoomHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	var after int64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	messages, err := h.chatService.History(r.Context(), roomID, after)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// PostMessage appends a message to the room
func (h *RoomHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	msg, err := h.chatService.Send(r.Context(), roomID, req.Username, req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
