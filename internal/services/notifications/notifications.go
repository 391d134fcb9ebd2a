// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package notifications persists bus events so operators can catch up on
// what happened while they were away.
package notifications

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/events"
)

const writeTimeout = 5 * time.Second

// Recorder writes every published event to the notifications table.
type Recorder struct {
	db *database.DB
}

// NewRecorder creates a recorder and subscribes it to the bus.
func NewRecorder(db *database.DB, bus *events.Bus) *Recorder {
	r := &Recorder{db: db}
	bus.Subscribe(r.record)
	return r
}

func (r *Recorder) record(event events.Event) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		log.Error().Err(err).
			Str("event_type", string(event.Type)).
			Msg("Failed to marshal event payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	n := &models.Notification{
		EventType: string(event.Type),
		Payload:   string(payload),
		CreatedAt: event.Time,
	}
	if err := r.db.CreateNotification(ctx, n); err != nil {
		log.Error().Err(err).
			Str("event_type", string(event.Type)).
			Msg("Failed to persist notification")
	}
}
