// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/plexguard/internal/models"
)

func TestEnsureUserPreferenceCreates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	pref, err := db.EnsureUserPreference(ctx, "1", "alice", "https://plex.tv/alice.png")
	require.NoError(t, err)
	assert.Equal(t, "1", pref.UserID)
	assert.Equal(t, "alice", pref.Username)
	assert.Equal(t, models.NetworkPolicyBoth, pref.NetworkPolicy)
	assert.Equal(t, models.IPAccessPolicyAll, pref.IPAccessPolicy)
	assert.Nil(t, pref.DefaultBlock)
	assert.Nil(t, pref.ConcurrentStreamLimit)
}

func TestEnsureUserPreferenceRefreshesDisplayFields(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.EnsureUserPreference(ctx, "1", "alice", "")
	require.NoError(t, err)

	pref, err := db.EnsureUserPreference(ctx, "1", "alice-renamed", "")
	require.NoError(t, err)
	assert.Equal(t, "alice-renamed", pref.Username)

	// No duplicate rows.
	prefs, err := db.ListUserPreferences(ctx)
	require.NoError(t, err)
	assert.Len(t, prefs, 1)
}

func TestSetUserDefaultBlock(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.EnsureUserPreference(ctx, "1", "alice", "")
	require.NoError(t, err)

	block := true
	require.NoError(t, db.SetUserDefaultBlock(ctx, "1", &block))

	pref, err := db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, pref.DefaultBlock)
	assert.True(t, *pref.DefaultBlock)

	// Nil restores the global fallback.
	require.NoError(t, db.SetUserDefaultBlock(ctx, "1", nil))
	pref, err = db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, pref.DefaultBlock)
}

func TestSetUserIPPolicy(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.EnsureUserPreference(ctx, "1", "alice", "")
	require.NoError(t, err)

	allowed := []string{"203.0.113.7", "198.51.100.0/24"}
	require.NoError(t, db.SetUserIPPolicy(ctx, "1", models.NetworkPolicyWAN, models.IPAccessPolicyRestricted, allowed))

	pref, err := db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.NetworkPolicyWAN, pref.NetworkPolicy)
	assert.Equal(t, models.IPAccessPolicyRestricted, pref.IPAccessPolicy)
	assert.Equal(t, allowed, pref.AllowedIPs)

	// A nil list is stored as an empty allow-list, not null.
	require.NoError(t, db.SetUserIPPolicy(ctx, "1", models.NetworkPolicyBoth, models.IPAccessPolicyAll, nil))
	pref, err = db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, pref.AllowedIPs)
}

func TestSetUserConcurrentLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.EnsureUserPreference(ctx, "1", "alice", "")
	require.NoError(t, err)

	limit := 2
	require.NoError(t, db.SetUserConcurrentLimit(ctx, "1", &limit))

	pref, err := db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, pref.ConcurrentStreamLimit)
	assert.Equal(t, 2, *pref.ConcurrentStreamLimit)

	require.NoError(t, db.SetUserConcurrentLimit(ctx, "1", nil))
	pref, err = db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, pref.ConcurrentStreamLimit)
}

func TestSetUserHidden(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.EnsureUserPreference(ctx, "1", "alice", "")
	require.NoError(t, err)

	require.NoError(t, db.SetUserHidden(ctx, "1", true))

	pref, err := db.GetUserPreference(ctx, "1")
	require.NoError(t, err)
	assert.True(t, pref.Hidden)
}
