// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

import "time"

// SessionData is the cached payload behind an admin session cookie.
type SessionData struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PortalSession is the cached payload behind a user-portal cookie. The portal
// login flow (external to the core) writes these entries; portal handlers only
// read the Plex user id out of them.
type PortalSession struct {
	PlexUserID string    `json:"plex_user_id"`
	Username   string    `json:"username"`
	ExpiresAt  time.Time `json:"expires_at"`
}
