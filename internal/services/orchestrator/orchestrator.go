// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package orchestrator sequences one enforcement tick: fetch sessions,
// ingest devices, reconcile session history, evaluate policy, terminate
// violations. Every step failure is contained; the loop must never die.
package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/plex"
	"github.com/autobrr/plexguard/internal/services/policy"
	"github.com/autobrr/plexguard/internal/services/registry"
	"github.com/autobrr/plexguard/internal/services/resilience"
	"github.com/autobrr/plexguard/internal/types"
)

// Upstream is the slice of the Plex client the orchestrator drives.
type Upstream interface {
	FetchSessions(ctx context.Context) (*types.SessionSnapshot, error)
	TerminateSession(ctx context.Context, sessionID, reason string) error
}

// Orchestrator runs enforcement ticks.
type Orchestrator struct {
	db       *database.DB
	upstream Upstream
	registry *registry.Registry
	policy   *policy.Engine
	bus      *events.Bus
	now      func() time.Time
}

// New wires an orchestrator.
func New(db *database.DB, upstream Upstream, reg *registry.Registry, engine *policy.Engine, bus *events.Bus) *Orchestrator {
	return &Orchestrator{
		db:       db,
		upstream: upstream,
		registry: reg,
		policy:   engine,
		bus:      bus,
		now:      time.Now,
	}
}

// Tick runs one full enforcement cycle. Errors are logged, never returned;
// the next tick retries from scratch.
func (o *Orchestrator) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("recover", r).Msg("Tick panicked")
		}
	}()

	snapshot, err := o.upstream.FetchSessions(ctx)
	if err != nil {
		if errors.Is(err, plex.ErrNotConfigured) {
			log.Debug().Msg("Plex server not configured, skipping tick")
		} else if errors.Is(err, resilience.ErrCircuitOpen) {
			log.Debug().Msg("Upstream circuit open, skipping tick")
		} else {
			log.Error().Err(err).Msg("Failed to fetch sessions, skipping tick")
		}
		return
	}

	activeStarts, err := o.db.ActiveSessionStarts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read session history, skipping tick")
		return
	}

	newKeys := make(map[string]bool)
	for i := range snapshot.Sessions {
		key := snapshot.Sessions[i].SessionKey
		if key != "" && !o.hasStart(activeStarts, key) {
			newKeys[key] = true
		}
	}

	o.registry.Ingest(ctx, snapshot, newKeys)
	o.reconcileHistory(ctx, snapshot, newKeys)

	decisions, err := o.policy.Evaluate(ctx, snapshot)
	if err != nil {
		log.Error().Err(err).Msg("Policy evaluation failed, skipping enforcement")
		return
	}

	o.enforce(ctx, decisions)
}

func (o *Orchestrator) hasStart(starts map[string]time.Time, key string) bool {
	_, ok := starts[key]
	return ok
}

// reconcileHistory opens rows for newly started sessions and closes rows for
// sessions that vanished from the snapshot.
func (o *Orchestrator) reconcileHistory(ctx context.Context, snapshot *types.SessionSnapshot, newKeys map[string]bool) {
	now := o.now()

	presentKeys := make([]string, 0, len(snapshot.Sessions))
	for i := range snapshot.Sessions {
		session := &snapshot.Sessions[i]
		if session.SessionKey == "" {
			continue
		}
		presentKeys = append(presentKeys, session.SessionKey)

		if !newKeys[session.SessionKey] {
			continue
		}

		entry := &models.SessionHistory{
			SessionKey:       session.SessionKey,
			UserID:           session.User.ID,
			DeviceAddress:    session.Player.Address,
			Title:            session.Content.Title,
			GrandparentTitle: session.Content.GrandparentTitle,
			MediaType:        session.Content.Type,
			StartedAt:        now,
		}
		if session.User.ID != "" && session.Player.MachineID != "" {
			if device, err := o.db.GetDevice(ctx, session.User.ID, session.Player.MachineID); err == nil {
				entry.DeviceID = device.ID
			}
		}

		if err := o.db.OpenSession(ctx, entry); err != nil {
			log.Error().Err(err).
				Str("session_key", session.SessionKey).
				Msg("Failed to open session history row")
		}
	}

	closed, err := o.db.CloseAbsentSessions(ctx, presentKeys, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to close ended sessions")
		return
	}
	if closed > 0 {
		log.Debug().Int64("closed", closed).Msg("Closed ended sessions")
	}
}

// enforce terminates every blocked session at most once and publishes a
// stream_blocked event for each successful termination.
func (o *Orchestrator) enforce(ctx context.Context, decisions []policy.Decision) {
	terminated := make(map[string]bool)

	for _, decision := range decisions {
		if decision.Allow {
			continue
		}

		sessionID := decision.Session.SessionID
		if sessionID == "" || terminated[sessionID] {
			continue
		}
		terminated[sessionID] = true

		if err := o.upstream.TerminateSession(ctx, sessionID, decision.Reason); err != nil {
			log.Error().Err(err).
				Str("session_id", sessionID).
				Str("stop_code", decision.StopCode).
				Msg("Failed to terminate session")
			continue
		}

		log.Info().
			Str("session_key", decision.Session.SessionKey).
			Str("user_id", decision.Session.User.ID).
			Str("machine_id", decision.Session.Player.MachineID).
			Str("stop_code", decision.StopCode).
			Msg("Terminated session")

		o.publishBlocked(ctx, decision)
	}
}

func (o *Orchestrator) publishBlocked(ctx context.Context, decision policy.Decision) {
	blocked := events.StreamBlocked{
		UserID:     decision.Session.User.ID,
		Username:   decision.Session.User.Name,
		MachineID:  decision.Session.Player.MachineID,
		SessionKey: decision.Session.SessionKey,
		StopCode:   decision.StopCode,
		Reason:     decision.Reason,
		IP:         decision.Session.Player.Address,
	}

	if blocked.UserID != "" && blocked.MachineID != "" {
		if device, err := o.db.GetDevice(ctx, blocked.UserID, blocked.MachineID); err == nil {
			blocked.DeviceID = device.ID
			blocked.DeviceName = device.Name
		}
	}

	o.bus.Publish(events.TypeStreamBlocked, blocked)
}
