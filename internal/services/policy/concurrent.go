// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package policy

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

type countableSession struct {
	sessionKey string
	startedAt  time.Time
}

// evaluateConcurrent runs the snapshot-wide stream-cap pass and returns the
// set of session keys to terminate. The newest sessions are selected: an
// established viewer is never interrupted by an incoming play attempt, the
// newcomer is the one denied.
func (e *Engine) evaluateConcurrent(ctx context.Context, snapshot *types.SessionSnapshot, starts map[string]time.Time) map[string]bool {
	globalLimit := e.settings.GetInt(ctx, settings.KeyConcurrentStreamLimit)
	includeTemp := e.settings.GetBool(ctx, settings.KeyConcurrentIncludeTemp)
	now := e.now()

	byUser := make(map[string][]countableSession)
	for i := range snapshot.Sessions {
		session := &snapshot.Sessions[i]
		if session.User.ID == "" || session.Player.MachineID == "" {
			continue
		}
		if session.Player.Product == plexampProduct {
			continue
		}

		device, err := e.store.GetDevice(ctx, session.User.ID, session.Player.MachineID)
		if err != nil && err != database.ErrNotFound {
			log.Error().Err(err).
				Str("session_key", session.SessionKey).
				Msg("Device lookup failed during concurrent pass, not counting session")
			continue
		}
		if device != nil {
			if device.ExcludeFromConcurrent {
				continue
			}
			if !includeTemp && device.TempAccessActive(now) {
				continue
			}
		}

		startedAt, ok := starts[session.SessionKey]
		if !ok {
			// Not in history yet: it is the newest thing we know about.
			startedAt = snapshot.FetchedAt
		}

		byUser[session.User.ID] = append(byUser[session.User.ID], countableSession{
			sessionKey: session.SessionKey,
			startedAt:  startedAt,
		})
	}

	capped := make(map[string]bool)
	for userID, sessions := range byUser {
		limit := e.userLimit(ctx, userID, globalLimit)
		if limit <= 0 || len(sessions) <= limit {
			continue
		}

		// Newest first; ties broken by session key so selection is stable.
		sort.Slice(sessions, func(i, j int) bool {
			if !sessions[i].startedAt.Equal(sessions[j].startedAt) {
				return sessions[i].startedAt.After(sessions[j].startedAt)
			}
			return sessions[i].sessionKey < sessions[j].sessionKey
		})

		excess := len(sessions) - limit
		for _, s := range sessions[:excess] {
			capped[s.sessionKey] = true
		}

		log.Debug().
			Str("user_id", userID).
			Int("sessions", len(sessions)).
			Int("limit", limit).
			Int("terminating", excess).
			Msg("Concurrent stream limit exceeded")
	}

	return capped
}

func (e *Engine) userLimit(ctx context.Context, userID string, globalLimit int) int {
	pref, err := e.store.GetUserPreference(ctx, userID)
	if err != nil || pref == nil || pref.ConcurrentStreamLimit == nil {
		return globalLimit
	}
	return *pref.ConcurrentStreamLimit
}
