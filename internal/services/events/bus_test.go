// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus()

	var got []Type
	bus.Subscribe(func(e Event) {
		got = append(got, e.Type)
	})

	bus.Publish(TypeNewDevice, NewDevice{Username: "alice"})
	bus.Publish(TypeLocationChange, LocationChange{OldIP: "a", NewIP: "b"})
	bus.Publish(TypeStreamBlocked, StreamBlocked{StopCode: "LAN_ONLY"})

	assert.Equal(t, []Type{TypeNewDevice, TypeLocationChange, TypeStreamBlocked}, got)
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var first, second []Event
	bus.Subscribe(func(e Event) { first = append(first, e) })
	bus.Subscribe(func(e Event) { second = append(second, e) })

	bus.Publish(TypeReturnedDevice, ReturnedDevice{Username: "alice"})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, TypeReturnedDevice, first[0].Type)
	assert.False(t, first[0].Time.IsZero())

	payload, ok := first[0].Payload.(ReturnedDevice)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.Username)
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(func(Event) { panic("boom") })

	var delivered int
	bus.Subscribe(func(Event) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Publish(TypeNewDevice, NewDevice{})
		bus.Publish(TypeNewDevice, NewDevice{})
	})
	assert.Equal(t, 2, delivered)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()

	assert.NotPanics(t, func() {
		bus.Publish(TypeStreamBlocked, StreamBlocked{})
	})
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var count int
	bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				bus.Publish(TypeLocationChange, LocationChange{})
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 200, count)
}
