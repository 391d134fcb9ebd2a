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

func TestAdminUserLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	has, err := db.HasAdminUsers(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	user := &models.AdminUser{
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: "$2a$10$notarealhash",
	}
	require.NoError(t, db.CreateAdminUser(ctx, user))
	assert.NotZero(t, user.ID)

	has, err = db.HasAdminUsers(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := db.GetAdminUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "$2a$10$notarealhash", got.PasswordHash)

	_, err = db.GetAdminUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
