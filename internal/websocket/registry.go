package websocket

import (
	"context"
	"log/slog"
	"sync"

	"letschat/internal/observability"
)

// Registry tracks connected clients per room so they can be counted and
// closed together on shutdown.
type Registry struct {
	mu      sync.Mutex
	clients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
}

func NewRegistry() *Registry {
	return &Registry{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serializes registrations until ctx is cancelled, then closes every client.
func (r *Registry) Run(ctx context.Context) error {
	defer r.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("websocket registry shutting down")
			return ctx.Err()

		case client := <-r.register:
			r.mu.Lock()
			if r.clients[client.roomID] == nil {
				r.clients[client.roomID] = make(map[*Client]struct{})
			}
			r.clients[client.roomID][client] = struct{}{}
			r.mu.Unlock()

			observability.WebSocketConnectionsActive.WithLabelValues(client.roomID).Inc()
			slog.Info("client registered",
				slog.String("user", client.username),
				slog.String("room_id", client.roomID))

		case client := <-r.unregister:
			r.remove(client)
		}
	}
}

func (r *Registry) remove(client *Client) {
	r.mu.Lock()
	clients, ok := r.clients[client.roomID]
	if ok {
		_, ok = clients[client]
		delete(clients, client)
		if len(clients) == 0 {
			delete(r.clients, client.roomID)
		}
	}
	r.mu.Unlock()

	if ok {
		observability.WebSocketConnectionsActive.WithLabelValues(client.roomID).Dec()
		slog.Info("client unregistered",
			slog.String("user", client.username),
			slog.String("room_id", client.roomID))
	}
}

func (r *Registry) shutdown() {
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	var all []*Client
	for roomID, clients := range r.clients {
		for client := range clients {
			all = append(all, client)
		}
		observability.WebSocketConnectionsActive.WithLabelValues(roomID).Sub(float64(len(clients)))
	}
	r.clients = make(map[string]map[*Client]struct{})
	r.mu.Unlock()

	for _, client := range all {
		client.Close()
	}
	slog.Info("websocket registry shutdown complete", slog.Int("closed", len(all)))
}

// Register adds a client. It returns false once the registry has shut down,
// in which case the caller owns closing the client.
func (r *Registry) Register(client *Client) bool {
	select {
	case r.register <- client:
		return true
	case <-r.done:
		return false
	}
}

// Unregister removes a client. Unknown clients are ignored.
func (r *Registry) Unregister(client *Client) {
	select {
	case r.unregister <- client:
	case <-r.done:
	}
}

// Serve registers client, runs it to completion and unregisters it.
func (r *Registry) Serve(client *Client) {
	if !r.Register(client) {
		client.Close()
		return
	}
	defer r.Unregister(client)
	client.Run()
}

// Count returns the number of clients connected to roomID.
func (r *Registry) Count(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients[roomID])
}
