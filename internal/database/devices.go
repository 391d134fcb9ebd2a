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

var deviceColumns = []string{
	"id", "user_id", "device_identifier", "name", "platform", "product", "version",
	"status", "exclude_from_concurrent", "first_seen", "last_seen", "last_ip",
	"session_count", "temp_access_until", "temp_access_granted_at",
	"temp_access_minutes", "temp_access_bypass", "request_description",
	"request_submitted_at", "request_read_at",
}

func scanDevice(row sq.RowScanner) (*models.Device, error) {
	var (
		d             models.Device
		tempUntil     sql.NullTime
		tempGrantedAt sql.NullTime
		tempMinutes   sql.NullInt64
		reqDesc       sql.NullString
		reqSubmitted  sql.NullTime
		reqRead       sql.NullTime
	)

	err := row.Scan(
		&d.ID, &d.UserID, &d.DeviceIdentifier, &d.Name, &d.Platform, &d.Product,
		&d.Version, &d.Status, &d.ExcludeFromConcurrent, &d.FirstSeen, &d.LastSeen,
		&d.LastIP, &d.SessionCount, &tempUntil, &tempGrantedAt, &tempMinutes,
		&d.TempAccessBypass, &reqDesc, &reqSubmitted, &reqRead,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "error scanning device")
	}

	if tempUntil.Valid {
		d.TempAccessUntil = &tempUntil.Time
	}
	if tempGrantedAt.Valid {
		d.TempAccessGrantedAt = &tempGrantedAt.Time
	}
	if tempMinutes.Valid {
		m := int(tempMinutes.Int64)
		d.TempAccessMinutes = &m
	}
	if reqDesc.Valid {
		d.RequestDescription = &reqDesc.String
	}
	if reqSubmitted.Valid {
		d.RequestSubmittedAt = &reqSubmitted.Time
	}
	if reqRead.Valid {
		d.RequestReadAt = &reqRead.Time
	}

	return &d, nil
}

// GetDevice returns the device for the (user, machine identifier) pair.
func (db *DB) GetDevice(ctx context.Context, userID, deviceIdentifier string) (*models.Device, error) {
	query, args, err := db.squirrel.
		Select(deviceColumns...).
		From("devices").
		Where(sq.Eq{"user_id": userID, "device_identifier": deviceIdentifier}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	return scanDevice(db.QueryRowContext(ctx, query, args...))
}

// GetDeviceByID returns the device with the given surrogate id.
func (db *DB) GetDeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	query, args, err := db.squirrel.
		Select(deviceColumns...).
		From("devices").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	return scanDevice(db.QueryRowContext(ctx, query, args...))
}

func (db *DB) queryDevices(ctx context.Context, builder sq.SelectBuilder) ([]models.Device, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error querying devices")
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// ListDevices returns every tracked device, most recently seen first.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	return db.queryDevices(ctx, db.squirrel.
		Select(deviceColumns...).
		From("devices").
		OrderBy("last_seen DESC"))
}

// ListDevicesForUser returns the devices of a single user.
func (db *DB) ListDevicesForUser(ctx context.Context, userID string) ([]models.Device, error) {
	return db.queryDevices(ctx, db.squirrel.
		Select(deviceColumns...).
		From("devices").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("last_seen DESC"))
}

// CreateDevice inserts a new device row and fills in its id.
func (db *DB) CreateDevice(ctx context.Context, d *models.Device) error {
	query, args, err := db.squirrel.
		Insert("devices").
		Columns("user_id", "device_identifier", "name", "platform", "product",
			"version", "status", "exclude_from_concurrent", "first_seen",
			"last_seen", "last_ip", "session_count", "temp_access_bypass").
		Values(d.UserID, d.DeviceIdentifier, d.Name, d.Platform, d.Product,
			d.Version, d.Status, d.ExcludeFromConcurrent, d.FirstSeen,
			d.LastSeen, d.LastIP, d.SessionCount, d.TempAccessBypass).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if db.driver == "postgres" {
		err = db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&d.ID)
		return errors.Wrap(err, "error creating device")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error creating device")
	}
	d.ID, err = result.LastInsertId()
	return errors.Wrap(err, "error getting device id")
}

// TouchDevice updates the observation fields after a session sighting.
// session_count is only bumped for newly started sessions, so the counter
// stays monotonic under repeated ingests of the same snapshot.
func (db *DB) TouchDevice(ctx context.Context, id int64, seenAt time.Time, ip string, newSessions int64) error {
	builder := db.squirrel.
		Update("devices").
		Set("last_seen", seenAt).
		Set("last_ip", ip).
		Where(sq.Eq{"id": id})

	if newSessions > 0 {
		builder = builder.Set("session_count", sq.Expr("session_count + ?", newSessions))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating device")
}

// UpdateDeviceDescriptive refreshes the upstream-provided display fields.
func (db *DB) UpdateDeviceDescriptive(ctx context.Context, id int64, name, platform, product, version string) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("name", name).
		Set("platform", platform).
		Set("product", product).
		Set("version", version).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating device")
}

// UpdateDeviceStatus changes the approval state.
func (db *DB) UpdateDeviceStatus(ctx context.Context, id int64, status models.DeviceStatus) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("status", status).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating device status")
}

// RenameDevice sets the user-editable display name.
func (db *DB) RenameDevice(ctx context.Context, id int64, name string) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("name", name).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error renaming device")
}

// SetDeviceExclusion toggles whether the device counts toward the
// concurrent-stream cap.
func (db *DB) SetDeviceExclusion(ctx context.Context, id int64, exclude bool) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("exclude_from_concurrent", exclude).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error updating device exclusion")
}

// GrantTempAccess stores a temporary access grant on the device.
func (db *DB) GrantTempAccess(ctx context.Context, id int64, until, grantedAt time.Time, minutes int, bypass bool) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("temp_access_until", until).
		Set("temp_access_granted_at", grantedAt).
		Set("temp_access_minutes", minutes).
		Set("temp_access_bypass", bypass).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error granting temp access")
}

// RevokeTempAccess clears any temporary access grant.
func (db *DB) RevokeTempAccess(ctx context.Context, id int64) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("temp_access_until", nil).
		Set("temp_access_granted_at", nil).
		Set("temp_access_minutes", nil).
		Set("temp_access_bypass", false).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error revoking temp access")
}

// SubmitDeviceRequest stores the one-shot user note. It fails with
// ErrRequestAlreadySubmitted when a note was ever submitted for the device.
func (db *DB) SubmitDeviceRequest(ctx context.Context, id int64, description string, submittedAt time.Time) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("request_description", description).
		Set("request_submitted_at", submittedAt).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"request_submitted_at": nil}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error submitting device request")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error checking device request")
	}
	if affected == 0 {
		return ErrRequestAlreadySubmitted
	}
	return nil
}

// ErrRequestAlreadySubmitted marks a second note submission for a device.
var ErrRequestAlreadySubmitted = errors.New("request already submitted for this device")

// MarkDeviceRequestRead records that an admin has read the user note.
func (db *DB) MarkDeviceRequestRead(ctx context.Context, id int64, readAt time.Time) error {
	query, args, err := db.squirrel.
		Update("devices").
		Set("request_read_at", readAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error marking request read")
}

// DeleteDevice removes a device row.
func (db *DB) DeleteDevice(ctx context.Context, id int64) error {
	query, args, err := db.squirrel.
		Delete("devices").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	_, err = db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "error deleting device")
}

// DeleteInactiveDevices removes devices unseen since the cutoff. Devices with
// an unread user note or a still-active temp grant are kept.
func (db *DB) DeleteInactiveDevices(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query, args, err := db.squirrel.
		Delete("devices").
		Where(sq.Lt{"last_seen": cutoff}).
		Where(sq.Or{
			sq.Eq{"request_submitted_at": nil},
			sq.NotEq{"request_read_at": nil},
		}).
		Where(sq.Or{
			sq.Eq{"temp_access_until": nil},
			sq.LtOrEq{"temp_access_until": now},
		}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "error deleting inactive devices")
	}

	return result.RowsAffected()
}
