// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import "time"

// DeviceStatus is the approval state of a tracked device.
type DeviceStatus string

const (
	DeviceStatusPending  DeviceStatus = "pending"
	DeviceStatusApproved DeviceStatus = "approved"
	DeviceStatusRejected DeviceStatus = "rejected"
)

// NetworkPolicy restricts which network locations a user may stream from.
type NetworkPolicy string

const (
	NetworkPolicyBoth NetworkPolicy = "both"
	NetworkPolicyLAN  NetworkPolicy = "lan"
	NetworkPolicyWAN  NetworkPolicy = "wan"
)

// IPAccessPolicy controls whether a user's streams are limited to an allow-list.
type IPAccessPolicy string

const (
	IPAccessPolicyAll        IPAccessPolicy = "all"
	IPAccessPolicyRestricted IPAccessPolicy = "restricted"
)

// Device is one (user, machine identifier) pair observed streaming from the
// Plex server. The registry is the only writer of device rows.
type Device struct {
	ID                    int64        `json:"id"`
	UserID                string       `json:"userId"`
	DeviceIdentifier      string       `json:"deviceIdentifier"`
	Name                  string       `json:"name"`
	Platform              string       `json:"platform"`
	Product               string       `json:"product"`
	Version               string       `json:"version"`
	Status                DeviceStatus `json:"status"`
	ExcludeFromConcurrent bool         `json:"excludeFromConcurrent"`
	FirstSeen             time.Time    `json:"firstSeen"`
	LastSeen              time.Time    `json:"lastSeen"`
	LastIP                string       `json:"lastIp"`
	SessionCount          int64        `json:"sessionCount"`

	TempAccessUntil     *time.Time `json:"tempAccessUntil,omitempty"`
	TempAccessGrantedAt *time.Time `json:"tempAccessGrantedAt,omitempty"`
	TempAccessMinutes   *int       `json:"tempAccessMinutes,omitempty"`
	TempAccessBypass    bool       `json:"tempAccessBypass"`

	RequestDescription *string    `json:"requestDescription,omitempty"`
	RequestSubmittedAt *time.Time `json:"requestSubmittedAt,omitempty"`
	RequestReadAt      *time.Time `json:"requestReadAt,omitempty"`
}

// TempAccessActive reports whether the device holds an unexpired temporary
// access grant at the given instant.
func (d *Device) TempAccessActive(now time.Time) bool {
	return d.TempAccessUntil != nil && d.TempAccessUntil.After(now)
}

// HasUnreadRequest reports whether the device carries a user note that an
// admin has not read yet.
func (d *Device) HasUnreadRequest() bool {
	return d.RequestSubmittedAt != nil && d.RequestReadAt == nil
}

// UserPreference holds per-user policy overrides, keyed by the Plex user id.
// Nil pointer fields fall back to the global setting.
type UserPreference struct {
	ID                    int64          `json:"id"`
	UserID                string         `json:"userId"`
	Username              string         `json:"username"`
	AvatarURL             string         `json:"avatarUrl,omitempty"`
	Hidden                bool           `json:"hidden"`
	DefaultBlock          *bool          `json:"defaultBlock,omitempty"`
	NetworkPolicy         NetworkPolicy  `json:"networkPolicy"`
	IPAccessPolicy        IPAccessPolicy `json:"ipAccessPolicy"`
	AllowedIPs            []string       `json:"allowedIps"`
	ConcurrentStreamLimit *int           `json:"concurrentStreamLimit,omitempty"`
}

// TimeRule is a weekly recurring block window. An empty DeviceIdentifier
// applies the rule to every device of the user. Windows with StartTime after
// EndTime wrap past midnight on the rule's own day.
type TimeRule struct {
	ID               int64  `json:"id"`
	UserID           string `json:"userId"`
	DeviceIdentifier string `json:"deviceIdentifier,omitempty"`
	DayOfWeek        int    `json:"dayOfWeek"` // 0 = Sunday
	StartTime        string `json:"startTime"` // HH:MM
	EndTime          string `json:"endTime"`   // HH:MM
	Enabled          bool   `json:"enabled"`
	RuleName         string `json:"ruleName"`
}

// SessionHistory is one observed playback session. Rows are opened when a
// session key first appears in a snapshot and closed when it vanishes.
type SessionHistory struct {
	ID               int64      `json:"id"`
	SessionKey       string     `json:"sessionKey"`
	UserID           string     `json:"userId"`
	DeviceID         int64      `json:"deviceId"`
	DeviceAddress    string     `json:"deviceAddress"`
	Title            string     `json:"title"`
	GrandparentTitle string     `json:"grandparentTitle,omitempty"`
	MediaType        string     `json:"mediaType"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
}

// Setting is a typed global key/value row.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"` // string|int|bool|json
}

// Notification is a persisted copy of a bus event, consumed by the in-app
// feed and external notifiers.
type Notification struct {
	ID        int64      `json:"id"`
	EventType string     `json:"eventType"`
	Payload   string     `json:"payload"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

// AdminUser is a dashboard operator account.
type AdminUser struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
