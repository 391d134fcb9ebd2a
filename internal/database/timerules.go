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

var timeRuleColumns = []string{
	"id", "user_id", "device_identifier", "day_of_week", "start_time",
	"end_time", "enabled", "rule_name",
}

func scanTimeRule(row sq.RowScanner) (*models.TimeRule, error) {
	var r models.TimeRule
	err := row.Scan(
		&r.ID, &r.UserID, &r.DeviceIdentifier, &r.DayOfWeek, &r.StartTime,
		&r.EndTime, &r.Enabled, &r.RuleName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning time rule")
	}
	return &r, nil
}

func (db *DB) queryTimeRules(ctx context.Context, builder sq.SelectBuilder) ([]models.TimeRule, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying time rules")
	}
	defer rows.Close()

	var rules []models.TimeRule
	for rows.Next() {
		r, err := scanTimeRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// GetTimeRule returns a single rule by id.
func (db *DB) GetTimeRule(ctx context.Context, id int64) (*models.TimeRule, error) {
	query, args, err := db.squirrel.
		Select(timeRuleColumns...).
		From("time_rules").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	return scanTimeRule(db.QueryRowContext(ctx, query, args...))
}

// ListTimeRules returns all rules of a user, enabled or not.
func (db *DB) ListTimeRules(ctx context.Context, userID string) ([]models.TimeRule, error) {
	return db.queryTimeRules(ctx, db.squirrel.
		Select(timeRuleColumns...).
		From("time_rules").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("day_of_week", "start_time"))
}

// ListEnabledTimeRules returns the enabled rules of a user, the set the
// policy engine evaluates.
func (db *DB) ListEnabledTimeRules(ctx context.Context, userID string) ([]models.TimeRule, error) {
	return db.queryTimeRules(ctx, db.squirrel.
		Select(timeRuleColumns...).
		From("time_rules").
		Where(sq.Eq{"user_id": userID, "enabled": true}).
		OrderBy("day_of_week", "start_time"))
}

// CreateTimeRule inserts a rule and fills in its id.
func (db *DB) CreateTimeRule(ctx context.Context, r *models.TimeRule) error {
	query, args, err := db.squirrel.
		Insert("time_rules").
		Columns("user_id", "device_identifier", "day_of_week", "start_time",
			"end_time", "enabled", "rule_name").
		Values(r.UserID, r.DeviceIdentifier, r.DayOfWeek, r.StartTime,
			r.EndTime, r.Enabled, r.RuleName).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if db.driver == "postgres" {
		err = db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&r.ID)
		return errors.Wrap(err, "error creating time rule")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error creating time rule")
	}
	r.ID, err = result.LastInsertId()
	return errors.Wrap(err, "error getting time rule id")
}

// UpdateTimeRule replaces every editable field of a rule.
func (db *DB) UpdateTimeRule(ctx context.Context, r *models.TimeRule) error {
	query, args, err := db.squirrel.
		Update("time_rules").
		Set("device_identifier", r.DeviceIdentifier).
		Set("day_of_week", r.DayOfWeek).
		Set("start_time", r.StartTime).
		Set("end_time", r.EndTime).
		Set("enabled", r.Enabled).
		Set("rule_name", r.RuleName).
		Where(sq.Eq{"id": r.ID, "user_id": r.UserID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error updating time rule")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTimeRule removes a rule scoped to its owner.
func (db *DB) DeleteTimeRule(ctx context.Context, id int64, userID string) error {
	query, args, err := db.squirrel.
		Delete("time_rules").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error deleting time rule")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return ErrNotFound
	}
	return nil
}
