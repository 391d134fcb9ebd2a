// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/plexguard/internal/models"
)

func openTestSession(t *testing.T, db *DB, key string, startedAt time.Time) *models.SessionHistory {
	t.Helper()

	h := &models.SessionHistory{
		SessionKey:    key,
		UserID:        "1",
		DeviceAddress: "192.168.1.50",
		Title:         "The Pilot",
		MediaType:     "episode",
		StartedAt:     startedAt,
	}
	require.NoError(t, db.OpenSession(context.Background(), h))
	return h
}

func TestOpenSessionTracksStarts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	openTestSession(t, db, "k1", now.Add(-time.Hour))
	openTestSession(t, db, "k2", now)

	starts, err := db.ActiveSessionStarts(ctx)
	require.NoError(t, err)
	require.Len(t, starts, 2)
	assert.Equal(t, now.Add(-time.Hour), starts["k1"].UTC())
	assert.Equal(t, now, starts["k2"].UTC())
}

func TestCloseAbsentSessions(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	openTestSession(t, db, "k1", now.Add(-time.Hour))
	openTestSession(t, db, "k2", now.Add(-time.Minute))

	closed, err := db.CloseAbsentSessions(ctx, []string{"k2"}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	starts, err := db.ActiveSessionStarts(ctx)
	require.NoError(t, err)
	assert.NotContains(t, starts, "k1")
	assert.Contains(t, starts, "k2")

	// Closing again is a no-op.
	closed, err = db.CloseAbsentSessions(ctx, []string{"k2"}, now)
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestCloseAbsentSessionsWithEmptySnapshot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	openTestSession(t, db, "k1", now.Add(-time.Hour))
	openTestSession(t, db, "k2", now.Add(-time.Minute))

	closed, err := db.CloseAbsentSessions(ctx, nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), closed)
}

func TestListSessionHistoryNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	openTestSession(t, db, "old", now.Add(-2*time.Hour))
	openTestSession(t, db, "new", now)

	entries, err := db.ListSessionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].SessionKey)
	assert.Equal(t, "old", entries[1].SessionKey)
	assert.Nil(t, entries[0].EndedAt)

	entries, err = db.ListSessionHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
