// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

import "time"

// SessionUser identifies the Plex account a session belongs to. ID is always
// the decimal string form of the upstream user id.
type SessionUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Thumb string `json:"thumb,omitempty"`
}

// SessionPlayer describes the client machine a session plays on. Address is
// the source address the session reaches the server from and is what every
// policy check and the device registry key off; PublicAddress carries the
// household public IP Plex reports alongside it, for display only.
type SessionPlayer struct {
	MachineID     string `json:"machineId"`
	Platform      string `json:"platform"`
	Product       string `json:"product"`
	Version       string `json:"version"`
	Address       string `json:"address"`
	PublicAddress string `json:"publicAddress,omitempty"`
	State         string `json:"state"`
	Title         string `json:"title"`
}

// SessionMedia carries stream technical details for display.
type SessionMedia struct {
	Resolution string `json:"resolution,omitempty"`
	Bitrate    int    `json:"bitrate,omitempty"`
	Container  string `json:"container,omitempty"`
	VideoCodec string `json:"videoCodec,omitempty"`
	AudioCodec string `json:"audioCodec,omitempty"`
}

// SessionContent describes what is being played.
type SessionContent struct {
	Title            string `json:"title"`
	GrandparentTitle string `json:"grandparentTitle,omitempty"`
	ParentTitle      string `json:"parentTitle,omitempty"`
	Year             int    `json:"year,omitempty"`
	Duration         int64  `json:"duration,omitempty"`
	ViewOffset       int64  `json:"viewOffset,omitempty"`
	Type             string `json:"type"`
	Thumb            string `json:"thumb,omitempty"`
	Art              string `json:"art,omitempty"`
	RatingKey        string `json:"ratingKey,omitempty"`
	ParentRatingKey  string `json:"parentRatingKey,omitempty"`
}

// Session is one normalized playback session from /status/sessions.
// SessionID is the identifier accepted by the terminate endpoint; SessionKey
// is the stable key used for history tracking.
type Session struct {
	SessionKey string         `json:"sessionKey"`
	SessionID  string         `json:"sessionId"`
	User       SessionUser    `json:"user"`
	Player     SessionPlayer  `json:"player"`
	Media      SessionMedia   `json:"media"`
	Content    SessionContent `json:"content"`
}

// SessionSnapshot is the canonical view of active sessions for one tick.
type SessionSnapshot struct {
	Sessions  []Session `json:"sessions"`
	FetchedAt time.Time `json:"fetchedAt"`
}
