// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package registry materializes devices from session snapshots. It is the
// only writer of device rows; everything else reads.
package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

// returnedThreshold is how long a device must have been unseen before its
// reappearance is announced as a return.
const returnedThreshold = 24 * time.Hour

// Registry tracks devices observed in session snapshots.
type Registry struct {
	db       *database.DB
	settings *settings.Store
	bus      *events.Bus
	now      func() time.Time
}

// New creates a device registry.
func New(db *database.DB, store *settings.Store, bus *events.Bus) *Registry {
	return &Registry{
		db:       db,
		settings: store,
		bus:      bus,
		now:      time.Now,
	}
}

// Ingest upserts a device row for every identifiable session in the
// snapshot. newKeys holds the session keys the history writer classified as
// newly started this tick; only those bump session_count. Per-session errors
// are logged and skipped so one bad entry never aborts the tick.
func (r *Registry) Ingest(ctx context.Context, snapshot *types.SessionSnapshot, newKeys map[string]bool) {
	if snapshot == nil {
		return
	}

	for i := range snapshot.Sessions {
		session := &snapshot.Sessions[i]
		if session.User.ID == "" || session.Player.MachineID == "" {
			log.Debug().
				Str("session_key", session.SessionKey).
				Msg("Session missing user or machine identifier, skipping")
			continue
		}

		if err := r.ingestSession(ctx, session, newKeys[session.SessionKey]); err != nil {
			log.Error().Err(err).
				Str("session_key", session.SessionKey).
				Str("user_id", session.User.ID).
				Msg("Failed to ingest session")
		}
	}
}

func (r *Registry) ingestSession(ctx context.Context, session *types.Session, newlyStarted bool) error {
	pref, err := r.db.EnsureUserPreference(ctx, session.User.ID, session.User.Name, session.User.Thumb)
	if err != nil {
		return err
	}

	now := r.now()

	device, err := r.db.GetDevice(ctx, session.User.ID, session.Player.MachineID)
	if err != nil {
		if err != database.ErrNotFound {
			return err
		}
		return r.createDevice(ctx, session, pref, now)
	}

	if device.Name == "" && session.Player.Title != "" ||
		device.Platform != session.Player.Platform ||
		device.Product != session.Player.Product ||
		device.Version != session.Player.Version {
		name := device.Name
		if name == "" {
			name = session.Player.Title
		}
		if err := r.db.UpdateDeviceDescriptive(ctx, device.ID, name,
			session.Player.Platform, session.Player.Product, session.Player.Version); err != nil {
			return err
		}
	}

	if session.Player.Address != "" && device.LastIP != "" && device.LastIP != session.Player.Address {
		r.bus.Publish(events.TypeLocationChange, events.LocationChange{
			Device:   *device,
			Username: pref.Username,
			OldIP:    device.LastIP,
			NewIP:    session.Player.Address,
		})
	}

	if now.Sub(device.LastSeen) > returnedThreshold {
		r.bus.Publish(events.TypeReturnedDevice, events.ReturnedDevice{
			Device:   *device,
			Username: pref.Username,
			LastSeen: device.LastSeen,
		})
	}

	var newSessions int64
	if newlyStarted {
		newSessions = 1
	}

	ip := session.Player.Address
	if ip == "" {
		ip = device.LastIP
	}

	return r.db.TouchDevice(ctx, device.ID, now, ip, newSessions)
}

func (r *Registry) createDevice(ctx context.Context, session *types.Session, pref *models.UserPreference, now time.Time) error {
	status := models.DeviceStatusPending
	if r.settings.GetBool(ctx, settings.KeyStrictMode) {
		// Strict mode decides new devices immediately instead of queueing
		// them for review.
		if r.effectiveDefaultBlock(ctx, pref) {
			status = models.DeviceStatusRejected
		} else {
			status = models.DeviceStatusApproved
		}
	}

	name := session.Player.Title
	if name == "" {
		name = session.Player.Product
	}

	device := &models.Device{
		UserID:           session.User.ID,
		DeviceIdentifier: session.Player.MachineID,
		Name:             name,
		Platform:         session.Player.Platform,
		Product:          session.Player.Product,
		Version:          session.Player.Version,
		Status:           status,
		FirstSeen:        now,
		LastSeen:         now,
		LastIP:           session.Player.Address,
		SessionCount:     1,
	}

	if err := r.db.CreateDevice(ctx, device); err != nil {
		return err
	}

	log.Info().
		Str("user_id", device.UserID).
		Str("machine_id", device.DeviceIdentifier).
		Str("status", string(device.Status)).
		Msg("New device tracked")

	r.bus.Publish(events.TypeNewDevice, events.NewDevice{
		Device:   *device,
		Username: pref.Username,
	})

	return nil
}

func (r *Registry) effectiveDefaultBlock(ctx context.Context, pref *models.UserPreference) bool {
	if pref != nil && pref.DefaultBlock != nil {
		return *pref.DefaultBlock
	}
	return r.settings.GetBool(ctx, settings.KeyDefaultBlock)
}

// CleanupInactive deletes devices unseen for the configured number of days.
// Devices with an unread note or an active temp grant survive the sweep.
func (r *Registry) CleanupInactive(ctx context.Context) {
	if !r.settings.GetBool(ctx, settings.KeyDeviceCleanupEnabled) {
		return
	}

	days := r.settings.GetInt(ctx, settings.KeyDeviceCleanupIntervalDays)
	if days <= 0 {
		return
	}

	now := r.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	deleted, err := r.db.DeleteInactiveDevices(ctx, cutoff, now)
	if err != nil {
		log.Error().Err(err).Msg("Device cleanup failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Int("threshold_days", days).Msg("Cleaned up inactive devices")
	}
}

// Get returns one device by its natural key.
func (r *Registry) Get(ctx context.Context, userID, machineID string) (*models.Device, error) {
	return r.db.GetDevice(ctx, userID, machineID)
}

// ListForUser returns the devices of one user.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]models.Device, error) {
	return r.db.ListDevicesForUser(ctx, userID)
}

// TempAccessValid reports whether the device holds an unexpired grant.
func (r *Registry) TempAccessValid(device *models.Device) bool {
	return device != nil && device.TempAccessActive(r.now())
}
