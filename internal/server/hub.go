package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/fluxfuzzer/ltesec/pkg/types"
	"github.com/gofiber/websocket/v2"
)

// Hub fans testbench events out to websocket clients.
// Publish never blocks the reporting goroutine; frames are dropped when the buffer is full.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub and starts its broadcast loop
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	h := &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, buffer),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

// Publish is a testbench.Listener
func (h *Hub) Publish(ev types.Event) {
	h.send(types.Message{Type: "event", Data: ev})
}

func (h *Hub) send(msg types.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- data:
		h.published.Add(1)
	default:
		// Channel full, skip this update
		h.dropped.Add(1)
	}
}

func (h *Hub) run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.clientsMu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.clientsMu.Unlock()
		case <-h.done:
			return
		}
	}
}

func (h *Hub) add(c *websocket.Conn) {
	h.clientsMu.Lock()
	h.clients[c] = true
	h.clientsMu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.clientsMu.Lock()
	delete(h.clients, c)
	h.clientsMu.Unlock()
}

// Clients returns the number of connected websocket clients
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded because the buffer was full
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Published returns how many frames were queued for broadcast
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Close stops the broadcast loop and disconnects all clients
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.clientsMu.Lock()
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.clientsMu.Unlock()
	})
}
