// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package events is the in-process publish/subscribe channel between the
// enforcement core and its notifiers. Delivery is synchronous and in emission
// order; a panicking subscriber is isolated and logged, never propagated.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/models"
)

// Type identifies the kind of event.
type Type string

const (
	TypeNewDevice           Type = "new_device"
	TypeLocationChange      Type = "location_change"
	TypeReturnedDevice      Type = "returned_device"
	TypeDeviceNoteSubmitted Type = "device_note_submitted"
	TypeStreamBlocked       Type = "stream_blocked"
)

// NewDevice is emitted when a (user, machine) pair is seen for the first time.
type NewDevice struct {
	Device   models.Device `json:"device"`
	Username string        `json:"username"`
}

// LocationChange is emitted when a known device streams from a new address.
type LocationChange struct {
	Device   models.Device `json:"device"`
	Username string        `json:"username"`
	OldIP    string        `json:"oldIp"`
	NewIP    string        `json:"newIp"`
}

// ReturnedDevice is emitted when a device reappears after the configured
// inactivity threshold.
type ReturnedDevice struct {
	Device   models.Device `json:"device"`
	Username string        `json:"username"`
	LastSeen time.Time     `json:"lastSeen"`
}

// DeviceNoteSubmitted is emitted when a portal user files their one-time note.
type DeviceNoteSubmitted struct {
	Device      models.Device `json:"device"`
	Username    string        `json:"username"`
	Description string        `json:"description"`
}

// StreamBlocked is emitted after a session was successfully terminated.
type StreamBlocked struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	DeviceID   int64  `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	MachineID  string `json:"machineId"`
	SessionKey string `json:"sessionKey"`
	StopCode   string `json:"stopCode"`
	Reason     string `json:"reason"`
	IP         string `json:"ip"`
}

// Event is one published occurrence with its typed payload.
type Event struct {
	Type    Type        `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload"`
}

// Handler consumes events. Handlers run synchronously on the publisher's
// goroutine and must not block for long.
type Handler func(Event)

// Bus is an in-process event bus.
type Bus struct {
	mu   sync.RWMutex
	subs []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every event type.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, h)
}

// Publish delivers the event to every subscriber in registration order.
func (b *Bus) Publish(eventType Type, payload interface{}) {
	event := Event{
		Type:    eventType,
		Time:    time.Now(),
		Payload: payload,
	}

	b.mu.RLock()
	subs := make([]Handler, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, h := range subs {
		b.deliver(h, event)
	}
}

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("recover", r).
				Str("event_type", string(event.Type)).
				Msg("Event subscriber panicked")
		}
	}()
	h(event)
}
