// Package server carries the daemon's event hub and the HTTP/websocket
// surface used by the launcher UI. Events are the same line-JSON frames
// the socket and stdio transports push.
package server

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"hark/internal/protocol"
)

// Hub fans events out to subscribed clients. Slow subscribers drop
// frames rather than block the publisher.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		log:     logger,
		clients: make(map[chan []byte]struct{}),
	}
}

// Subscribe registers a new event channel.
func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the channel.
func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Broadcast delivers a raw frame to every subscriber.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Publish wraps a payload in an event frame and broadcasts it. It
// implements the EventPublisher interfaces of the core subsystems.
func (h *Hub) Publish(event string, payload any) {
	frame, err := protocol.NewEvent(event, payload)
	if err != nil {
		h.log.Error().
			Str("component", "hub").
			Str("event", event).
			Err(err).
			Msg("encode event")
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().
			Str("component", "hub").
			Str("event", event).
			Err(err).
			Msg("marshal event frame")
		return
	}
	h.Broadcast(data)
}
