// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/autobrr/plexguard/internal/models"
)

// HasAdminUsers checks if any operator accounts exist.
func (db *DB) HasAdminUsers(ctx context.Context) (bool, error) {
	query, args, err := db.squirrel.
		Select("COUNT(*)").
		From("admin_users").
		ToSql()
	if err != nil {
		return false, errors.Wrap(err, "error building query")
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, errors.Wrap(err, "error counting admin users")
	}
	return count > 0, nil
}

// CreateAdminUser creates a new operator account.
func (db *DB) CreateAdminUser(ctx context.Context, user *models.AdminUser) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query, args, err := db.squirrel.
		Insert("admin_users").
		Columns("username", "email", "password_hash", "created_at", "updated_at").
		Values(user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if db.driver == "postgres" {
		err = db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&user.ID)
		return errors.Wrap(err, "error creating admin user")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error creating admin user")
	}
	user.ID, err = result.LastInsertId()
	return errors.Wrap(err, "error getting admin user id")
}

// GetAdminUserByUsername finds an operator account by username.
func (db *DB) GetAdminUserByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	query, args, err := db.squirrel.
		Select("id", "username", "email", "password_hash", "created_at", "updated_at").
		From("admin_users").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	var u models.AdminUser
	err = db.QueryRowContext(ctx, query, args...).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning admin user")
	}
	return &u, nil
}
