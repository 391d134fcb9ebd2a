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

// ActiveSessionStarts returns started_at per session key for every history
// row that has not been closed yet. The policy engine orders concurrent
// sessions with this map; the orchestrator derives newly started keys from it.
func (db *DB) ActiveSessionStarts(ctx context.Context) (map[string]time.Time, error) {
	query, args, err := db.squirrel.
		Select("session_key", "started_at").
		From("session_history").
		Where(sq.Eq{"ended_at": nil}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying active sessions")
	}
	defer rows.Close()

	starts := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var startedAt time.Time
		if err := rows.Scan(&key, &startedAt); err != nil {
			return nil, errors.Wrap(err, "error scanning active session")
		}
		starts[key] = startedAt
	}
	return starts, rows.Err()
}

// OpenSession inserts a history row for a newly observed session key.
func (db *DB) OpenSession(ctx context.Context, h *models.SessionHistory) error {
	query, args, err := db.squirrel.
		Insert("session_history").
		Columns("session_key", "user_id", "device_id", "device_address",
			"title", "grandparent_title", "media_type", "started_at").
		Values(h.SessionKey, h.UserID, h.DeviceID, h.DeviceAddress,
			h.Title, h.GrandparentTitle, h.MediaType, h.StartedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if db.driver == "postgres" {
		err = db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&h.ID)
		return errors.Wrap(err, "error opening session")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error opening session")
	}
	h.ID, err = result.LastInsertId()
	return errors.Wrap(err, "error getting session history id")
}

// CloseAbsentSessions stamps ended_at on open rows whose session key is no
// longer present in the snapshot. Returns the number of rows closed.
func (db *DB) CloseAbsentSessions(ctx context.Context, presentKeys []string, endedAt time.Time) (int64, error) {
	builder := db.squirrel.
		Update("session_history").
		Set("ended_at", endedAt).
		Where(sq.Eq{"ended_at": nil})

	if len(presentKeys) > 0 {
		builder = builder.Where(sq.NotEq{"session_key": presentKeys})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "error closing sessions")
	}

	return result.RowsAffected()
}

// ListSessionHistory returns recent history rows, newest first.
func (db *DB) ListSessionHistory(ctx context.Context, limit uint64) ([]models.SessionHistory, error) {
	if limit == 0 {
		limit = 100
	}

	query, args, err := db.squirrel.
		Select("id", "session_key", "user_id", "device_id", "device_address",
			"title", "grandparent_title", "media_type", "started_at", "ended_at").
		From("session_history").
		OrderBy("started_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying session history")
	}
	defer rows.Close()

	var entries []models.SessionHistory
	for rows.Next() {
		var (
			h       models.SessionHistory
			endedAt sql.NullTime
		)
		err := rows.Scan(&h.ID, &h.SessionKey, &h.UserID, &h.DeviceID,
			&h.DeviceAddress, &h.Title, &h.GrandparentTitle, &h.MediaType,
			&h.StartedAt, &endedAt)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning session history")
		}
		if endedAt.Valid {
			h.EndedAt = &endedAt.Time
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
