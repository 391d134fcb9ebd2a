// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/services/events"
)

const (
	keepAliveInterval = 15 * time.Second
	broadcastTimeout  = 2 * time.Second
	clientBufferSize  = 16
)

type client struct {
	send        chan events.Event
	done        chan struct{}
	connectedAt time.Time
}

// EventsHandler streams bus events to connected dashboards over SSE.
type EventsHandler struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

func NewEventsHandler(bus *events.Bus) *EventsHandler {
	h := &EventsHandler{
		clients: make(map[*client]bool),
	}
	bus.Subscribe(h.broadcast)
	return h
}

// safeClose safely closes a channel if it's not already closed
func safeClose(ch chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("recover", r).Msg("Recovered from panic while closing channel")
		}
	}()

	select {
	case <-ch: // channel already closed
		return
	default:
		close(ch)
	}
}

// broadcast fans one event out to every connected client. Slow clients are
// skipped rather than blocking the publisher.
func (h *EventsHandler) broadcast(event events.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for cl := range h.clients {
		select {
		case <-cl.done:
			continue
		case cl.send <- event:
		case <-time.After(broadcastTimeout):
			log.Debug().
				Str("event_type", string(event.Type)).
				Time("client_connected_at", cl.connectedAt).
				Msg("Skipped broadcast due to slow client")
		}
	}
}

// Stream handles one SSE connection
func (h *EventsHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable proxy buffering

	cl := &client{
		send:        make(chan events.Event, clientBufferSize),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}

	h.mu.Lock()
	h.clients[cl] = true
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().
		Time("connected_at", cl.connectedAt).
		Int("total_clients", total).
		Msg("New SSE client connected")

	ctx := c.Request.Context()

	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		total := len(h.clients)
		h.mu.Unlock()
		safeClose(cl.done)

		log.Info().
			Time("connected_at", cl.connectedAt).
			Int("total_clients", total).
			Msg("SSE client disconnected")
	}()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cl.done:
			return
		case event := <-cl.send:
			data, err := json.Marshal(event)
			if err != nil {
				log.Error().Err(err).
					Str("event_type", string(event.Type)).
					Msg("Failed to marshal event")
				continue
			}
			c.SSEvent(string(event.Type), string(data))
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("keepalive", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}
