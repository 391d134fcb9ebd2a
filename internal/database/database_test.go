// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/plexguard/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func testDevice(userID, machineID string) *models.Device {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Device{
		UserID:           userID,
		DeviceIdentifier: machineID,
		Name:             "Living Room Roku",
		Platform:         "Roku",
		Product:          "Plex for Roku",
		Version:          "9.0",
		Status:           models.DeviceStatusPending,
		FirstSeen:        now,
		LastSeen:         now,
		LastIP:           "192.168.1.50",
		SessionCount:     1,
	}
}
