// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/autobrr/plexguard/internal/models"
)

// GetSetting returns one settings row.
func (db *DB) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	query, args, err := db.squirrel.
		Select("key", "value", "type").
		From("settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	var s models.Setting
	err = db.QueryRowContext(ctx, query, args...).Scan(&s.Key, &s.Value, &s.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning setting")
	}
	return &s, nil
}

// ListSettings returns every settings row.
func (db *DB) ListSettings(ctx context.Context) ([]models.Setting, error) {
	query, args, err := db.squirrel.
		Select("key", "value", "type").
		From("settings").
		OrderBy("key").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying settings")
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.Type); err != nil {
			return nil, errors.Wrap(err, "error scanning setting")
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// UpsertSetting writes a settings row, replacing any existing value.
func (db *DB) UpsertSetting(ctx context.Context, s *models.Setting) error {
	update, updateArgs, err := db.squirrel.
		Update("settings").
		Set("value", s.Value).
		Set("type", s.Type).
		Where(sq.Eq{"key": s.Key}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := db.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return errors.Wrap(err, "error updating setting")
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	insert, insertArgs, err := db.squirrel.
		Insert("settings").
		Columns("key", "value", "type").
		Values(s.Key, s.Value, s.Type).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, insert, insertArgs...)
	return errors.Wrap(err, "error inserting setting")
}

// DeleteSetting removes a settings row, reverting the key to its default.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	query, args, err := db.squirrel.
		Delete("settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error deleting setting")
}
