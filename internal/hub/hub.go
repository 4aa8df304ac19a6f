// Package hub broadcasts collage change events to subscribed viewers over
// WebSocket. It is the push side of the change feed; each viewer's
// ChangeFeedClient is the pull side.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"photo-collage-app/internal/models"
)

// Hub maintains active feed subscribers and broadcasts change events
type Hub struct {
	Clients    map[string]map[*Client]bool // collageID -> clients
	Broadcast  chan *models.FeedMessage
	Register   chan *Client
	Unregister chan *Client
	Mu         sync.RWMutex
}

// NewHub creates a new feed hub
func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[string]map[*Client]bool),
		Broadcast:  make(chan *models.FeedMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Publish implements storage.EventSink; every repository mutation lands
// here and fans out to the collage's subscribers.
func (h *Hub) Publish(ev models.ChangeEvent) {
	h.Broadcast <- ev.Frame()
}

// Run starts the hub's dispatch loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Mu.Lock()
			if h.Clients[client.CollageID] == nil {
				h.Clients[client.CollageID] = make(map[*Client]bool)
			}
			h.Clients[client.CollageID][client] = true
			h.Mu.Unlock()

			// Confirm the subscription before any event can reach this
			// client; the feed client treats this frame as the
			// Connecting -> Live transition.
			confirm := &models.FeedMessage{
				Type:      models.MSG_SUBSCRIBED,
				CollageID: client.CollageID,
				Timestamp: time.Now(),
			}
			select {
			case client.Send <- mustMarshal(confirm):
			default:
				h.drop(client)
			}

		case client := <-h.Unregister:
			h.Mu.Lock()
			if clients, ok := h.Clients[client.CollageID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.Clients, client.CollageID)
					}
				}
			}
			h.Mu.Unlock()

		case message := <-h.Broadcast:
			raw := mustMarshal(message)

			h.Mu.RLock()
			targets := make([]*Client, 0, len(h.Clients[message.CollageID]))
			for client := range h.Clients[message.CollageID] {
				targets = append(targets, client)
			}
			h.Mu.RUnlock()

			for _, client := range targets {
				select {
				case client.Send <- raw:
				default:
					// Slow consumer; drop it rather than stall the feed.
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	clients, ok := h.Clients[client.CollageID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.Clients, client.CollageID)
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("hub: failed to marshal message", "error", err)
		return []byte("{}")
	}
	return b
}
