// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKeepsSourceAddress(t *testing.T) {
	// Plex reports the household public IP alongside the player's own
	// address even for in-home sessions. The source address must stay
	// canonical or a LAN-only user gets blocked at home.
	m := PlexSessionMetadata{
		SessionKey: "42",
		User:       &PlexUser{ID: "7", Title: "alice"},
		Player: &PlexPlayer{
			Address:             "192.168.1.10",
			RemotePublicAddress: "203.0.113.9",
			MachineIdentifier:   "roku-1",
		},
	}

	s, ok := m.Normalize()
	require.True(t, ok)
	assert.Equal(t, "192.168.1.10", s.Player.Address)
	assert.Equal(t, "203.0.113.9", s.Player.PublicAddress)
}

func TestNormalizeSessionIDFallsBackToKey(t *testing.T) {
	m := PlexSessionMetadata{
		SessionKey: "42",
		User:       &PlexUser{ID: "7"},
		Player:     &PlexPlayer{MachineIdentifier: "roku-1"},
	}

	s, ok := m.Normalize()
	require.True(t, ok)
	assert.Equal(t, "42", s.SessionID)

	m.Session = &PlexSessionInfo{ID: "terminate-me"}
	s, _ = m.Normalize()
	assert.Equal(t, "terminate-me", s.SessionID)
}

func TestNormalizeFlagsMissingIdentity(t *testing.T) {
	m := PlexSessionMetadata{
		SessionKey: "42",
		Player:     &PlexPlayer{MachineIdentifier: "roku-1"},
	}

	_, ok := m.Normalize()
	assert.False(t, ok)

	m.User = &PlexUser{ID: "7"}
	m.Player.MachineIdentifier = ""
	_, ok = m.Normalize()
	assert.False(t, ok)
}

func TestFlexIDNormalizesNumbersAndStrings(t *testing.T) {
	var u PlexUser
	require.NoError(t, json.Unmarshal([]byte(`{"id": 7, "title": "alice"}`), &u))
	assert.Equal(t, "7", u.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id": "7", "title": "alice"}`), &u))
	assert.Equal(t, "7", u.ID.String())

	require.NoError(t, json.Unmarshal([]byte(`{"id": null}`), &u))
	assert.Equal(t, "", u.ID.String())
}
