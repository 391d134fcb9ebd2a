// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexID unmarshals a JSON value that may arrive as either a string or a
// number. Plex is inconsistent about user ids across server versions; every
// id is normalized to its decimal string form here so later comparisons never
// mix representations.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// PlexUser is the User element of a session entry.
type PlexUser struct {
	ID    FlexID `json:"id"`
	Title string `json:"title"`
	Thumb string `json:"thumb"`
}

// PlexPlayer is the Player element of a session entry.
type PlexPlayer struct {
	Address             string `json:"address"`
	Device              string `json:"device"`
	MachineIdentifier   string `json:"machineIdentifier"`
	Platform            string `json:"platform"`
	PlatformVersion     string `json:"platformVersion"`
	Product             string `json:"product"`
	RemotePublicAddress string `json:"remotePublicAddress"`
	State               string `json:"state"`
	Title               string `json:"title"`
	Version             string `json:"version"`
}

// PlexMedia is one Media element of a session entry.
type PlexMedia struct {
	VideoResolution string `json:"videoResolution"`
	Bitrate         int    `json:"bitrate"`
	Container       string `json:"container"`
	VideoCodec      string `json:"videoCodec"`
	AudioCodec      string `json:"audioCodec"`
}

// PlexSessionInfo is the embedded Session element; its id is what the
// terminate endpoint expects.
type PlexSessionInfo struct {
	ID        string `json:"id"`
	Bandwidth int    `json:"bandwidth"`
	Location  string `json:"location"`
}

// PlexSessionMetadata is one entry of MediaContainer.Metadata.
type PlexSessionMetadata struct {
	SessionKey       string           `json:"sessionKey"`
	RatingKey        string           `json:"ratingKey"`
	ParentRatingKey  string           `json:"parentRatingKey"`
	Title            string           `json:"title"`
	GrandparentTitle string           `json:"grandparentTitle"`
	ParentTitle      string           `json:"parentTitle"`
	Year             int              `json:"year"`
	Duration         int64            `json:"duration"`
	ViewOffset       int64            `json:"viewOffset"`
	Type             string           `json:"type"`
	Thumb            string           `json:"thumb"`
	Art              string           `json:"art"`
	User             *PlexUser        `json:"User,omitempty"`
	Player           *PlexPlayer     `json:"Player,omitempty"`
	Media            []PlexMedia      `json:"Media,omitempty"`
	Session          *PlexSessionInfo `json:"Session,omitempty"`
}

// PlexSessionsResponse is the JSON shape of GET /status/sessions.
type PlexSessionsResponse struct {
	MediaContainer struct {
		Size     int                   `json:"size"`
		Metadata []PlexSessionMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// PlexIdentityResponse is the JSON shape of GET /identity.
type PlexIdentityResponse struct {
	MediaContainer struct {
		MachineIdentifier string `json:"machineIdentifier"`
		Version           string `json:"version"`
	} `json:"MediaContainer"`
}

// Normalize converts a wire session entry into the canonical Session form.
// The boolean result is false when the entry lacks the fields the core needs
// (user id or player machine identifier).
func (m *PlexSessionMetadata) Normalize() (Session, bool) {
	s := Session{
		SessionKey: m.SessionKey,
		Content: SessionContent{
			Title:            m.Title,
			GrandparentTitle: m.GrandparentTitle,
			ParentTitle:      m.ParentTitle,
			Year:             m.Year,
			Duration:         m.Duration,
			ViewOffset:       m.ViewOffset,
			Type:             m.Type,
			Thumb:            m.Thumb,
			Art:              m.Art,
			RatingKey:        m.RatingKey,
			ParentRatingKey:  m.ParentRatingKey,
		},
	}
	if m.Session != nil && m.Session.ID != "" {
		s.SessionID = m.Session.ID
	} else {
		s.SessionID = m.SessionKey
	}
	if m.User != nil {
		s.User = SessionUser{
			ID:    normalizeUserID(m.User.ID.String()),
			Name:  m.User.Title,
			Thumb: m.User.Thumb,
		}
	}
	if m.Player != nil {
		// remotePublicAddress is the household public IP and is reported
		// even for in-home players; the source address stays canonical so
		// LAN sessions classify as LAN.
		s.Player = SessionPlayer{
			MachineID:     m.Player.MachineIdentifier,
			Platform:      m.Player.Platform,
			Product:       m.Player.Product,
			Version:       m.Player.Version,
			Address:       m.Player.Address,
			PublicAddress: m.Player.RemotePublicAddress,
			State:         m.Player.State,
			Title:         m.Player.Title,
		}
	}
	if len(m.Media) > 0 {
		s.Media = SessionMedia{
			Resolution: m.Media[0].VideoResolution,
			Bitrate:    m.Media[0].Bitrate,
			Container:  m.Media[0].Container,
			VideoCodec: m.Media[0].VideoCodec,
			AudioCodec: m.Media[0].AudioCodec,
		}
	}
	if s.User.ID == "" || s.Player.MachineID == "" {
		return s, false
	}
	return s, true
}

// normalizeUserID strips any non-decimal representation down to the canonical
// string form. Numeric strings pass through unchanged.
func normalizeUserID(id string) string {
	if id == "" {
		return ""
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return id
}
