// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package policy evaluates access rules for session snapshots. The engine is
// a pure evaluator: it reads point-in-time state and produces a decision per
// session, never mutating anything and never calling upstream.
//
// Evaluation order per session, first decisive outcome wins:
//
//	1. Plexamp product bypass
//	2. temporary access with policy bypass
//	3. network-location policy, then IP allow-list
//	4. time rules (device-specific rules shadow user-wide rules per day)
//	5. device approval state
//	6. concurrent-stream cap (computed snapshot-wide before the per-session
//	   pass; capped sessions skip steps 1-5)
//
// Unexpected per-session errors fail open: a broken lookup must not cascade
// into terminating every stream.
package policy

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

// Stop codes are stable machine-readable tokens for operator observability.
// They never leak to viewers; viewers only see the reason text.
const (
	StopLanOnly         = "LAN_ONLY"
	StopWanOnly         = "WAN_ONLY"
	StopIPNotAllowed    = "IP_NOT_ALLOWED"
	StopTimeRestricted  = "TIME_RESTRICTED"
	StopDeviceRejected  = "DEVICE_REJECTED"
	StopDevicePending   = "DEVICE_PENDING"
	StopConcurrentLimit = "CONCURRENT_LIMIT"
)

// plexampProduct streams are always allowed and never counted; Plexamp has
// no UI to re-authenticate a blocked device.
const plexampProduct = "Plexamp"

var stopReasonKeys = map[string]string{
	StopLanOnly:         settings.KeyMsgIPLanOnly,
	StopWanOnly:         settings.KeyMsgIPWanOnly,
	StopIPNotAllowed:    settings.KeyMsgIPNotAllowed,
	StopTimeRestricted:  settings.KeyMsgTimeRestricted,
	StopDeviceRejected:  settings.KeyMsgDeviceRejected,
	StopDevicePending:   settings.KeyMsgDevicePending,
	StopConcurrentLimit: settings.KeyMsgConcurrentLimit,
}

// Decision is the outcome for one session.
type Decision struct {
	Session  types.Session
	Allow    bool
	StopCode string
	Reason   string
}

// Store is the read-only state the engine evaluates against. *database.DB
// satisfies it.
type Store interface {
	GetDevice(ctx context.Context, userID, machineID string) (*models.Device, error)
	GetUserPreference(ctx context.Context, userID string) (*models.UserPreference, error)
	ListEnabledTimeRules(ctx context.Context, userID string) ([]models.TimeRule, error)
	ActiveSessionStarts(ctx context.Context) (map[string]time.Time, error)
}

// Settings is the subset of the settings store the engine reads.
type Settings interface {
	GetBool(ctx context.Context, key string) bool
	GetInt(ctx context.Context, key string) int
	GetString(ctx context.Context, key string) string
}

// Engine evaluates policies against snapshots.
type Engine struct {
	store    Store
	settings Settings
	now      func() time.Time
}

// New creates a policy engine.
func New(store Store, s Settings) *Engine {
	return &Engine{
		store:    store,
		settings: s,
		now:      time.Now,
	}
}

// Evaluate returns a decision for every session in the snapshot. The only
// error condition is failing to read session history; per-session problems
// degrade to allow.
func (e *Engine) Evaluate(ctx context.Context, snapshot *types.SessionSnapshot) ([]Decision, error) {
	if snapshot == nil || len(snapshot.Sessions) == 0 {
		return nil, nil
	}

	starts, err := e.store.ActiveSessionStarts(ctx)
	if err != nil {
		return nil, err
	}

	capped := e.evaluateConcurrent(ctx, snapshot, starts)

	decisions := make([]Decision, 0, len(snapshot.Sessions))
	for i := range snapshot.Sessions {
		session := snapshot.Sessions[i]

		if capped[session.SessionKey] {
			decisions = append(decisions, e.block(ctx, session, StopConcurrentLimit))
			continue
		}

		decisions = append(decisions, e.evaluateSession(ctx, session))
	}

	return decisions, nil
}

func (e *Engine) allow(session types.Session) Decision {
	return Decision{Session: session, Allow: true}
}

func (e *Engine) block(ctx context.Context, session types.Session, stopCode string) Decision {
	return Decision{
		Session:  session,
		Allow:    false,
		StopCode: stopCode,
		Reason:   e.settings.GetString(ctx, stopReasonKeys[stopCode]),
	}
}

func (e *Engine) evaluateSession(ctx context.Context, session types.Session) Decision {
	// Sessions without identity cannot be policed; the registry already
	// logged them.
	if session.User.ID == "" || session.Player.MachineID == "" {
		return e.allow(session)
	}

	if session.Player.Product == plexampProduct {
		return e.allow(session)
	}

	now := e.now()

	device, err := e.store.GetDevice(ctx, session.User.ID, session.Player.MachineID)
	if err != nil && err != database.ErrNotFound {
		log.Error().Err(err).
			Str("session_key", session.SessionKey).
			Msg("Device lookup failed, allowing session")
		return e.allow(session)
	}

	if device != nil && device.TempAccessActive(now) && device.TempAccessBypass {
		return e.allow(session)
	}

	pref, err := e.store.GetUserPreference(ctx, session.User.ID)
	if err != nil && err != database.ErrNotFound {
		log.Error().Err(err).
			Str("session_key", session.SessionKey).
			Msg("Preference lookup failed, allowing session")
		return e.allow(session)
	}

	if stopCode := e.checkIPPolicy(session, pref); stopCode != "" {
		return e.block(ctx, session, stopCode)
	}

	blocked, err := e.checkTimeRules(ctx, session, now)
	if err != nil {
		log.Error().Err(err).
			Str("session_key", session.SessionKey).
			Msg("Time rule lookup failed, allowing session")
		return e.allow(session)
	}
	if blocked {
		return e.block(ctx, session, StopTimeRestricted)
	}

	return e.checkApproval(ctx, session, device, pref, now)
}

func (e *Engine) checkApproval(ctx context.Context, session types.Session, device *models.Device, pref *models.UserPreference, now time.Time) Decision {
	if device != nil && device.Status == models.DeviceStatusApproved {
		return e.allow(session)
	}

	if device != nil && device.Status == models.DeviceStatusRejected {
		if device.TempAccessActive(now) {
			return e.allow(session)
		}
		return e.block(ctx, session, StopDeviceRejected)
	}

	// Pending, or not materialized yet.
	if device != nil && device.TempAccessActive(now) {
		return e.allow(session)
	}
	if e.effectiveDefaultBlock(ctx, pref) {
		return e.block(ctx, session, StopDevicePending)
	}
	return e.allow(session)
}

func (e *Engine) effectiveDefaultBlock(ctx context.Context, pref *models.UserPreference) bool {
	if pref != nil && pref.DefaultBlock != nil {
		return *pref.DefaultBlock
	}
	return e.settings.GetBool(ctx, settings.KeyDefaultBlock)
}
