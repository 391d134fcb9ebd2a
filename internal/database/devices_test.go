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

func TestCreateAndGetDevice(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := testDevice("1", "roku-1")
	require.NoError(t, db.CreateDevice(ctx, d))
	assert.NotZero(t, d.ID)

	got, err := db.GetDevice(ctx, "1", "roku-1")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, models.DeviceStatusPending, got.Status)
	assert.Equal(t, "Living Room Roku", got.Name)
	assert.Nil(t, got.TempAccessUntil)
	assert.Nil(t, got.RequestSubmittedAt)

	byID, err := db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "roku-1", byID.DeviceIdentifier)
}

func TestGetDeviceNotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetDevice(context.Background(), "1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchDevice(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := testDevice("1", "roku-1")
	require.NoError(t, db.CreateDevice(ctx, d))

	seen := time.Now().UTC().Truncate(time.Second).Add(time.Hour)
	require.NoError(t, db.TouchDevice(ctx, d.ID, seen, "203.0.113.7", 2))
	// Ongoing sightings update last_seen without bumping the counter.
	require.NoError(t, db.TouchDevice(ctx, d.ID, seen, "203.0.113.7", 0))

	got, err := db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", got.LastIP)
	assert.Equal(t, int64(3), got.SessionCount)
}

func TestUpdateDeviceStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := testDevice("1", "roku-1")
	require.NoError(t, db.CreateDevice(ctx, d))

	require.NoError(t, db.UpdateDeviceStatus(ctx, d.ID, models.DeviceStatusApproved))

	got, err := db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusApproved, got.Status)
}

func TestTempAccessRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := testDevice("1", "roku-1")
	require.NoError(t, db.CreateDevice(ctx, d))

	until := time.Now().UTC().Truncate(time.Second).Add(time.Hour)
	require.NoError(t, db.GrantTempAccess(ctx, d.ID, until, time.Now(), 60, true))

	got, err := db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TempAccessUntil)
	assert.True(t, got.TempAccessBypass)
	require.NotNil(t, got.TempAccessMinutes)
	assert.Equal(t, 60, *got.TempAccessMinutes)
	assert.True(t, got.TempAccessActive(time.Now()))

	require.NoError(t, db.RevokeTempAccess(ctx, d.ID))

	got, err = db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TempAccessUntil)
	assert.False(t, got.TempAccessBypass)
}

func TestSubmitDeviceRequestOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := testDevice("1", "roku-1")
	require.NoError(t, db.CreateDevice(ctx, d))

	require.NoError(t, db.SubmitDeviceRequest(ctx, d.ID, "This is my bedroom TV", time.Now()))

	err := db.SubmitDeviceRequest(ctx, d.ID, "second try", time.Now())
	assert.ErrorIs(t, err, ErrRequestAlreadySubmitted)

	got, err := db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RequestDescription)
	assert.Equal(t, "This is my bedroom TV", *got.RequestDescription)
	assert.True(t, got.HasUnreadRequest())

	require.NoError(t, db.MarkDeviceRequestRead(ctx, d.ID, time.Now()))
	got, err = db.GetDeviceByID(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.HasUnreadRequest())
}

func TestListDevicesForUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateDevice(ctx, testDevice("1", "roku-1")))
	require.NoError(t, db.CreateDevice(ctx, testDevice("1", "tv-1")))
	require.NoError(t, db.CreateDevice(ctx, testDevice("2", "phone-1")))

	all, err := db.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := db.ListDevicesForUser(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestDeleteDevice(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d := testDevice("1", "roku-1")
	require.NoError(t, db.CreateDevice(ctx, d))
	require.NoError(t, db.DeleteDevice(ctx, d.ID))

	_, err := db.GetDeviceByID(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInactiveDevices(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	stale := testDevice("1", "roku-1")
	stale.LastSeen = now.Add(-60 * 24 * time.Hour)
	require.NoError(t, db.CreateDevice(ctx, stale))

	fresh := testDevice("1", "tv-1")
	require.NoError(t, db.CreateDevice(ctx, fresh))

	// Unread notes protect a stale device.
	noted := testDevice("2", "phone-1")
	noted.LastSeen = now.Add(-60 * 24 * time.Hour)
	require.NoError(t, db.CreateDevice(ctx, noted))
	require.NoError(t, db.SubmitDeviceRequest(ctx, noted.ID, "keep me", now))

	// Active temp grants do too.
	granted := testDevice("2", "tablet-1")
	granted.LastSeen = now.Add(-60 * 24 * time.Hour)
	require.NoError(t, db.CreateDevice(ctx, granted))
	require.NoError(t, db.GrantTempAccess(ctx, granted.ID, now.Add(time.Hour), now, 60, false))

	deleted, err := db.DeleteInactiveDevices(ctx, now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = db.GetDeviceByID(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, id := range []int64{fresh.ID, noted.ID, granted.ID} {
		_, err = db.GetDeviceByID(ctx, id)
		require.NoError(t, err)
	}
}
