// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/plexguard/internal/database"
	"github.com/autobrr/plexguard/internal/services/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db, cache.NewMemoryStore())
}

func TestDefaultsApplyWithoutRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, "32400", store.GetString(ctx, KeyPlexServerPort))
	assert.Equal(t, 10, store.GetInt(ctx, KeyRefreshInterval))
	assert.False(t, store.GetBool(ctx, KeyDefaultBlock))
	assert.Equal(t, Catalog[KeyMsgDevicePending].Default, store.GetString(ctx, KeyMsgDevicePending))
}

func TestSetAndReadBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyRefreshInterval, "30"))
	assert.Equal(t, 30, store.GetInt(ctx, KeyRefreshInterval))

	require.NoError(t, store.Set(ctx, KeyDefaultBlock, "true"))
	assert.True(t, store.GetBool(ctx, KeyDefaultBlock))
}

func TestSetRejectsUnknownKey(t *testing.T) {
	store := newTestStore(t)

	err := store.Set(context.Background(), "NOT_A_KEY", "value")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestValidateChecksKindWithoutWriting(t *testing.T) {
	assert.NoError(t, Validate(KeyRefreshInterval, "30"))
	assert.NoError(t, Validate(KeyDefaultBlock, "true"))
	assert.ErrorIs(t, Validate(KeyRefreshInterval, "soon"), ErrInvalidValue)
	assert.ErrorIs(t, Validate(KeyDefaultBlock, "maybe"), ErrInvalidValue)
	assert.ErrorIs(t, Validate("NOT_A_KEY", "x"), ErrUnknownKey)
}

func TestSetValidatesKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Set(ctx, KeyRefreshInterval, "soon"), ErrInvalidValue)
	assert.ErrorIs(t, store.Set(ctx, KeyDefaultBlock, "maybe"), ErrInvalidValue)
}

func TestWriteInvalidatesCache(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Prime the cache with the current value, then change it.
	assert.Equal(t, 10, store.GetInt(ctx, KeyRefreshInterval))
	require.NoError(t, store.Set(ctx, KeyRefreshInterval, "60"))

	assert.Equal(t, 60, store.GetInt(ctx, KeyRefreshInterval))
}

func TestUnknownKeyReadsEmpty(t *testing.T) {
	store := newTestStore(t)

	assert.Empty(t, store.GetString(context.Background(), "NOT_A_KEY"))
}

func TestExportSkipsPrivateKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyPlexToken, "secret-token"))
	require.NoError(t, store.Set(ctx, KeyPlexServerIP, "plex.local"))

	exported := store.Export(ctx)

	assert.NotContains(t, exported, KeyPlexToken)
	assert.NotContains(t, exported, KeySessionSecret)

	server, ok := exported[KeyPlexServerIP]
	require.True(t, ok)
	assert.Equal(t, "plex.local", server.Value)
	assert.Equal(t, string(KindString), server.Type)

	// Keys without rows export their defaults.
	assert.Equal(t, "32400", exported[KeyPlexServerPort].Value)
}
