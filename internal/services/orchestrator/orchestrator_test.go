// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/services/cache"
	"github.com/autobrr/plexguard/internal/services/events"
	"github.com/autobrr/plexguard/internal/services/policy"
	"github.com/autobrr/plexguard/internal/services/registry"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

type fakeUpstream struct {
	mu           sync.Mutex
	snapshot     *types.SessionSnapshot
	fetchErr     error
	terminateErr error
	terminated   []string
}

func (f *fakeUpstream) FetchSessions(context.Context) (*types.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.snapshot, nil
}

func (f *fakeUpstream) TerminateSession(_ context.Context, sessionID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminateErr != nil {
		return f.terminateErr
	}
	f.terminated = append(f.terminated, sessionID)
	return nil
}

func (f *fakeUpstream) terminatedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminated...)
}

type testHarness struct {
	orch     *Orchestrator
	upstream *fakeUpstream
	db       *database.DB
	settings *settings.Store
	sink     *eventSink
}

type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) handle(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) blocked() []events.StreamBlocked {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.StreamBlocked
	for _, e := range s.events {
		if e.Type == events.TypeStreamBlocked {
			out = append(out, e.Payload.(events.StreamBlocked))
		}
	}
	return out
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := settings.NewStore(db, cache.NewMemoryStore())
	bus := events.NewBus()
	sink := &eventSink{}
	bus.Subscribe(sink.handle)

	upstream := &fakeUpstream{}
	reg := registry.New(db, store, bus)
	engine := policy.New(db, store)
	orch := New(db, upstream, reg, engine, bus)

	return &testHarness{
		orch:     orch,
		upstream: upstream,
		db:       db,
		settings: store,
		sink:     sink,
	}
}

func makeSession(key, id, userID, machineID string) types.Session {
	return types.Session{
		SessionKey: key,
		SessionID:  id,
		User:       types.SessionUser{ID: userID, Name: "viewer"},
		Player: types.SessionPlayer{
			MachineID: machineID,
			Product:   "Plex Web",
			Address:   "203.0.113.7",
		},
		Content: types.SessionContent{Title: "Some Movie", Type: "movie"},
	}
}

func (h *testHarness) setSnapshot(sessions ...types.Session) {
	h.upstream.mu.Lock()
	defer h.upstream.mu.Unlock()
	h.upstream.snapshot = &types.SessionSnapshot{
		Sessions:  sessions,
		FetchedAt: time.Now(),
	}
}

func TestTickAllowsByDefault(t *testing.T) {
	h := newHarness(t)
	h.setSnapshot(makeSession("k1", "id1", "1", "roku"))

	h.orch.Tick(context.Background())

	assert.Empty(t, h.upstream.terminatedIDs())
	assert.Empty(t, h.sink.blocked())
}

func TestTickTerminatesBlockedSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.settings.Set(ctx, settings.KeyDefaultBlock, "true"))

	h.setSnapshot(makeSession("k1", "id1", "1", "roku"))
	h.orch.Tick(ctx)

	assert.Equal(t, []string{"id1"}, h.upstream.terminatedIDs())

	blocked := h.sink.blocked()
	require.Len(t, blocked, 1)
	assert.Equal(t, "DEVICE_PENDING", blocked[0].StopCode)
	assert.Equal(t, "1", blocked[0].UserID)
	assert.NotZero(t, blocked[0].DeviceID)
	assert.NotEmpty(t, blocked[0].Reason)
}

func TestTickTerminatesAtMostOncePerSessionID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.settings.Set(ctx, settings.KeyDefaultBlock, "true"))

	// Two snapshot entries sharing one terminate identifier.
	h.setSnapshot(
		makeSession("k1", "shared", "1", "roku"),
		makeSession("k2", "shared", "1", "tv"),
	)
	h.orch.Tick(ctx)

	assert.Equal(t, []string{"shared"}, h.upstream.terminatedIDs())
}

func TestTickNoEventWhenTerminationFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.settings.Set(ctx, settings.KeyDefaultBlock, "true"))

	h.upstream.terminateErr = errors.New("upstream gone")
	h.setSnapshot(makeSession("k1", "id1", "1", "roku"))
	h.orch.Tick(ctx)

	assert.Empty(t, h.sink.blocked())
}

func TestTickOpensAndClosesHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.setSnapshot(makeSession("k1", "id1", "1", "roku"))
	h.orch.Tick(ctx)

	starts, err := h.db.ActiveSessionStarts(ctx)
	require.NoError(t, err)
	assert.Contains(t, starts, "k1")

	// Session vanished: its row is closed.
	h.setSnapshot()
	h.orch.Tick(ctx)

	starts, err = h.db.ActiveSessionStarts(ctx)
	require.NoError(t, err)
	assert.NotContains(t, starts, "k1")

	history, err := h.db.ListSessionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "k1", history[0].SessionKey)
	assert.NotNil(t, history[0].EndedAt)
}

func TestTickDoesNotReopenOngoingSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.setSnapshot(makeSession("k1", "id1", "1", "roku"))
	h.orch.Tick(ctx)
	h.orch.Tick(ctx)
	h.orch.Tick(ctx)

	history, err := h.db.ListSessionHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTickSkipsWhenFetchFails(t *testing.T) {
	h := newHarness(t)
	h.upstream.fetchErr = errors.New("connection refused")

	h.orch.Tick(context.Background())

	history, err := h.db.ListSessionHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, h.upstream.terminatedIDs())
}
