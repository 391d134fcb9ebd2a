// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/autobrr/plexguard/internal/models"
)

var preferenceColumns = []string{
	"id", "user_id", "username", "avatar_url", "hidden", "default_block",
	"network_policy", "ip_access_policy", "allowed_ips", "concurrent_stream_limit",
}

func scanPreference(row sq.RowScanner) (*models.UserPreference, error) {
	var (
		p            models.UserPreference
		defaultBlock sql.NullBool
		limit        sql.NullInt64
		allowedIPs   string
	)

	err := row.Scan(
		&p.ID, &p.UserID, &p.Username, &p.AvatarURL, &p.Hidden, &defaultBlock,
		&p.NetworkPolicy, &p.IPAccessPolicy, &allowedIPs, &limit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning user preference")
	}

	if defaultBlock.Valid {
		p.DefaultBlock = &defaultBlock.Bool
	}
	if limit.Valid {
		l := int(limit.Int64)
		p.ConcurrentStreamLimit = &l
	}
	if err := json.Unmarshal([]byte(allowedIPs), &p.AllowedIPs); err != nil {
		p.AllowedIPs = nil
	}

	return &p, nil
}

// GetUserPreference returns the preference row for a Plex user id.
func (db *DB) GetUserPreference(ctx context.Context, userID string) (*models.UserPreference, error) {
	query, args, err := db.squirrel.
		Select(preferenceColumns...).
		From("user_preferences").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	return scanPreference(db.QueryRowContext(ctx, query, args...))
}

// ListUserPreferences returns every known user.
func (db *DB) ListUserPreferences(ctx context.Context) ([]models.UserPreference, error) {
	query, args, err := db.squirrel.
		Select(preferenceColumns...).
		From("user_preferences").
		OrderBy("username").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying user preferences")
	}
	defer rows.Close()

	var prefs []models.UserPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, *p)
	}
	return prefs, rows.Err()
}

// EnsureUserPreference lazily creates the preference row on first session
// observation and refreshes the cached display fields on later ones.
func (db *DB) EnsureUserPreference(ctx context.Context, userID, username, avatarURL string) (*models.UserPreference, error) {
	pref, err := db.GetUserPreference(ctx, userID)
	if err == nil {
		if (username != "" && username != pref.Username) || (avatarURL != "" && avatarURL != pref.AvatarURL) {
			query, args, err := db.squirrel.
				Update("user_preferences").
				Set("username", username).
				Set("avatar_url", avatarURL).
				Where(sq.Eq{"user_id": userID}).
				ToSql()
			if err != nil {
				return nil, errors.Wrap(err, "error building query")
			}
			if _, err := db.ExecContext(ctx, query, args...); err != nil {
				return nil, errors.Wrap(err, "error updating user preference")
			}
			pref.Username = username
			pref.AvatarURL = avatarURL
		}
		return pref, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	query, args, err := db.squirrel.
		Insert("user_preferences").
		Columns("user_id", "username", "avatar_url", "hidden", "network_policy",
			"ip_access_policy", "allowed_ips").
		Values(userID, username, avatarURL, false, models.NetworkPolicyBoth,
			models.IPAccessPolicyAll, "[]").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrap(err, "error creating user preference")
	}

	return db.GetUserPreference(ctx, userID)
}

// SetUserDefaultBlock overrides the global pending-device default for one
// user. A nil value restores the global fallback.
func (db *DB) SetUserDefaultBlock(ctx context.Context, userID string, defaultBlock *bool) error {
	query, args, err := db.squirrel.
		Update("user_preferences").
		Set("default_block", defaultBlock).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating default block")
}

// SetUserIPPolicy updates the network-location and allow-list policy.
func (db *DB) SetUserIPPolicy(ctx context.Context, userID string, network models.NetworkPolicy, access models.IPAccessPolicy, allowedIPs []string) error {
	if allowedIPs == nil {
		allowedIPs = []string{}
	}
	encoded, err := json.Marshal(allowedIPs)
	if err != nil {
		return errors.Wrap(err, "error encoding allowed ips")
	}

	query, args, err := db.squirrel.
		Update("user_preferences").
		Set("network_policy", network).
		Set("ip_access_policy", access).
		Set("allowed_ips", string(encoded)).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating ip policy")
}

// SetUserConcurrentLimit sets the per-user stream cap. Nil restores the
// global fallback; zero means unlimited.
func (db *DB) SetUserConcurrentLimit(ctx context.Context, userID string, limit *int) error {
	query, args, err := db.squirrel.
		Update("user_preferences").
		Set("concurrent_stream_limit", limit).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating concurrent limit")
}

// SetUserHidden toggles visibility of the user in the dashboard.
func (db *DB) SetUserHidden(ctx context.Context, userID string, hidden bool) error {
	query, args, err := db.squirrel.
		Update("user_preferences").
		Set("hidden", hidden).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating hidden flag")
}
