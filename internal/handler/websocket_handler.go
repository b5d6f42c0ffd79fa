package handler

import (
	"context"
	"log/slog"
	"net/http"

	"letschat/internal/service"
	ws "letschat/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades /ws/rooms/{id} requests into live room sessions
type WebSocketHandler struct {
	ctx         context.Context
	chatService *service.ChatService
	registry    *ws.Registry
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Sessions are bound to
// ctx so they end when the server shuts down.
func NewWebSocketHandler(ctx context.Context, chatService *service.ChatService, registry *ws.Registry, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		ctx:         ctx,
		chatService: chatService,
		registry:    registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// HandleConnection subscribes before upgrading, so failures are plain HTTP errors
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "username query parameter required")
		return
	}

	feed, err := h.chatService.Subscribe(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		feed.Close()
		slog.Warn("websocket upgrade failed",
			slog.String("room_id", roomID),
			slog.String("error", err.Error()))
		return
	}

	slog.Debug("websocket feed opened",
		slog.String("room_id", roomID),
		slog.String("user", username),
		slog.Int64("last_id", feed.LastID()))

	client := ws.NewClient(h.ctx, conn, roomID, username, h.chatService, feed.History, feed.Live)
	go h.registry.Serve(client)
}
