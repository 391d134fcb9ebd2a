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

// CreateNotification appends a row to the in-app notification feed.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	query, args, err := db.squirrel.
		Insert("notifications").
		Columns("event_type", "payload", "created_at").
		Values(n.EventType, n.Payload, n.CreatedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if db.driver == "postgres" {
		err = db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&n.ID)
		return errors.Wrap(err, "error creating notification")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error creating notification")
	}
	n.ID, err = result.LastInsertId()
	return errors.Wrap(err, "error getting notification id")
}

// ListNotifications returns recent notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, limit uint64) ([]models.Notification, error) {
	if limit == 0 {
		limit = 50
	}

	query, args, err := db.squirrel.
		Select("id", "event_type", "payload", "created_at", "read_at").
		From("notifications").
		OrderBy("created_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying notifications")
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var (
			n      models.Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.EventType, &n.Payload, &n.CreatedAt, &readAt); err != nil {
			return nil, errors.Wrap(err, "error scanning notification")
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead stamps a notification as read.
func (db *DB) MarkNotificationRead(ctx context.Context, id int64, readAt time.Time) error {
	query, args, err := db.squirrel.
		Update("notifications").
		Set("read_at", readAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error marking notification read")
}
