// Package live pushes advisory stock levels to product pages over
// websockets. Delivery is best-effort; a slow subscriber is dropped rather
// than allowed to block a broadcast.
package live

import (
	"encoding/json"
	"log"
)

type stockUpdate struct {
	Type      string `json:"type"`
	ProductID string `json:"productId"`
	Remaining int    `json:"remaining"`
}

type broadcastMsg struct {
	Product string
	Data    []byte
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	rooms      map[string]map[*Client]bool
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 64),
		rooms:      make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			room := h.rooms[client.Product]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.Product] = room
			}
			room[client] = true

		case client := <-h.unregister:
			if room, ok := h.rooms[client.Product]; ok {
				if room[client] {
					delete(room, client)
					close(client.Send)
				}
				if len(room) == 0 {
					delete(h.rooms, client.Product)
				}
			}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.Product] {
				select {
				case client.Send <- msg.Data:
				default:
					// subscriber is not keeping up, drop it
					delete(h.rooms[msg.Product], client)
					close(client.Send)
				}
			}

		case <-h.done:
			for _, room := range h.rooms {
				for client := range room {
					close(client.Send)
				}
			}
			h.rooms = make(map[string]map[*Client]bool)
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

// drop detaches a client without blocking when the hub has already stopped;
// Run is no longer draining unregister at that point.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// StockChanged broadcasts the post-decrement stock level for a product.
// Satisfies the finalizer's announcer hook.
func (h *Hub) StockChanged(productID string, remaining int) {
	data, err := json.Marshal(stockUpdate{Type: "stock_update", ProductID: productID, Remaining: remaining})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- broadcastMsg{Product: productID, Data: data}:
	default:
		log.Printf("live: broadcast queue full, dropping stock update for %s", productID)
	}
}
