// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package registry

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) handle(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) ofType(t events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *database.DB, *settings.Store, *eventSink) {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := settings.NewStore(db, cache.NewMemoryStore())
	bus := events.NewBus()
	sink := &eventSink{}
	bus.Subscribe(sink.handle)

	return New(db, store, bus), db, store, sink
}

func rokuSession(userID string) types.Session {
	return types.Session{
		SessionKey: "k-" + userID,
		SessionID:  "id-" + userID,
		User:       types.SessionUser{ID: userID, Name: "viewer"},
		Player: types.SessionPlayer{
			MachineID: "roku-" + userID,
			Platform:  "Roku",
			Product:   "Plex for Roku",
			Version:   "9.0",
			Address:   "192.168.1.50",
			Title:     "Living Room Roku",
		},
	}
}

func ingest(reg *Registry, sessions []types.Session, newKeys map[string]bool) {
	reg.Ingest(context.Background(), &types.SessionSnapshot{
		Sessions:  sessions,
		FetchedAt: time.Now(),
	}, newKeys)
}

func TestIngestCreatesPendingDevice(t *testing.T) {
	reg, db, _, sink := newTestRegistry(t)
	ctx := context.Background()

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusPending, device.Status)
	assert.Equal(t, "Living Room Roku", device.Name)
	assert.Equal(t, "192.168.1.50", device.LastIP)
	assert.Equal(t, int64(1), device.SessionCount)

	pref, err := db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "viewer", pref.Username)

	created := sink.ofType(events.TypeNewDevice)
	require.Len(t, created, 1)
	payload := created[0].Payload.(events.NewDevice)
	assert.Equal(t, "roku-1", payload.Device.DeviceIdentifier)
}

func TestIngestIsIdempotentForOngoingSessions(t *testing.T) {
	reg, db, _, sink := newTestRegistry(t)
	ctx := context.Background()

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})
	// Same ongoing session seen on later ticks: no new-device event, no
	// session_count growth.
	ingest(reg, []types.Session{s}, nil)
	ingest(reg, []types.Session{s}, nil)

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), device.SessionCount)
	assert.Len(t, sink.ofType(events.TypeNewDevice), 1)
}

func TestIngestCountsNewSessions(t *testing.T) {
	reg, db, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	s.SessionKey = "k-next"
	ingest(reg, []types.Session{s}, map[string]bool{"k-next": true})

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), device.SessionCount)
}

func TestIngestStrictModeApprovesByDefault(t *testing.T) {
	reg, db, store, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, settings.KeyStrictMode, "true"))

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusApproved, device.Status)
}

func TestIngestStrictModeRejectsWhenDefaultBlock(t *testing.T) {
	reg, db, store, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, settings.KeyStrictMode, "true"))
	require.NoError(t, store.Set(ctx, settings.KeyDefaultBlock, "true"))

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusRejected, device.Status)
}

func TestIngestEmitsLocationChange(t *testing.T) {
	reg, _, _, sink := newTestRegistry(t)

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	s.Player.Address = "203.0.113.7"
	ingest(reg, []types.Session{s}, nil)

	changes := sink.ofType(events.TypeLocationChange)
	require.Len(t, changes, 1)
	payload := changes[0].Payload.(events.LocationChange)
	assert.Equal(t, "192.168.1.50", payload.OldIP)
	assert.Equal(t, "203.0.113.7", payload.NewIP)
}

func TestIngestEmitsReturnedDevice(t *testing.T) {
	reg, _, _, sink := newTestRegistry(t)

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	// Fast-forward past the return threshold.
	reg.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	ingest(reg, []types.Session{s}, nil)

	assert.Len(t, sink.ofType(events.TypeReturnedDevice), 1)

	// Seen again shortly after: no second announcement.
	ingest(reg, []types.Session{s}, nil)
	assert.Len(t, sink.ofType(events.TypeReturnedDevice), 1)
}

func TestIngestSkipsUnidentifiableSessions(t *testing.T) {
	reg, db, _, sink := newTestRegistry(t)

	s := rokuSession("1")
	s.User.ID = ""
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	devices, err := db.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Empty(t, sink.ofType(events.TypeNewDevice))
}

func TestIngestRefreshesDescriptiveFields(t *testing.T) {
	reg, db, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	s.Player.Version = "9.1"
	ingest(reg, []types.Session{s}, nil)

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, "9.1", device.Version)
	// The display name is never clobbered by a refresh.
	assert.Equal(t, "Living Room Roku", device.Name)
}

func TestCleanupInactive(t *testing.T) {
	reg, db, store, _ := newTestRegistry(t)
	ctx := context.Background()

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	// Disabled by default: nothing is deleted.
	reg.now = func() time.Time { return time.Now().Add(90 * 24 * time.Hour) }
	reg.CleanupInactive(ctx)
	_, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, settings.KeyDeviceCleanupEnabled, "true"))
	reg.CleanupInactive(ctx)
	_, err = db.GetDevice(ctx, "1", "roku-1")
	assert.Equal(t, database.ErrNotFound, err)
}

func TestCleanupSparesDevicesWithActiveGrant(t *testing.T) {
	reg, db, store, _ := newTestRegistry(t)
	ctx := context.Background()

	s := rokuSession("1")
	ingest(reg, []types.Session{s}, map[string]bool{s.SessionKey: true})

	device, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)

	future := time.Now().Add(120 * 24 * time.Hour)
	require.NoError(t, db.GrantTempAccess(ctx, device.ID, future.Add(time.Hour), time.Now(), 60, false))

	require.NoError(t, store.Set(ctx, settings.KeyDeviceCleanupEnabled, "true"))
	reg.now = func() time.Time { return future }
	reg.CleanupInactive(ctx)

	_, err = db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
}
