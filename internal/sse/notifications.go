// Package sse pushes notifications to connected browsers as server-sent events.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"
)

const clientBuffer = 10

// Hub manages SSE connections and fans notifications out per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]chan models.Notification
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string][]chan models.Notification)}
}

// Subscribe registers a client for userID. The channel is closed once ctx ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) <-chan models.Notification {
	ch := make(chan models.Notification, clientBuffer)

	h.mu.Lock()
	h.clients[userID] = append(h.clients[userID], ch)
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(userID, ch)
	}()
	return ch
}

// Publish delivers n to every open stream of its user. Slow clients miss it;
// the stored copy is still listed by GET /notifications.
func (h *Hub) Publish(n models.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients[n.UserID] {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *Hub) remove(userID string, ch chan models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[userID]
	for i, c := range clients {
		if c == ch {
			h.clients[userID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// ClientCount returns the number of streams currently open for userID
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Handler streams the caller's notifications until the request ends. A comment
// line is written every heartbeat to keep proxies from closing the connection.
func Handler(hub *Hub, heartbeat time.Duration, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		rc := http.NewResponseController(w)
		// the server write timeout would otherwise cut the stream
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			log.Error("SSE", fmt.Sprintf("Streaming unsupported: %v", err))
			return
		}

		events := hub.Subscribe(r.Context(), userID)
		log.Debug("SSE", fmt.Sprintf("Stream opened for user %s", userID))

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				log.Debug("SSE", fmt.Sprintf("Stream closed for user %s", userID))
				return
			case n, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(n)
				if err != nil {
					log.Error("SSE", fmt.Sprintf("Failed to encode notification %s: %v", n.ID, err))
					continue
				}
				fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, payload)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
