// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package policy

import (
	"net"
	"strings"

	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/types"
)

// Location of a session source address relative to the server.
type Location string

const (
	LocationLAN Location = "lan"
	LocationWAN Location = "wan"
)

// LocationOf classifies an address. RFC1918, loopback, and link-local
// addresses are LAN; everything else, including unparseable addresses, is
// treated as WAN.
func LocationOf(address string) Location {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return LocationWAN
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return LocationLAN
	}
	return LocationWAN
}

// checkIPPolicy applies the network-location policy and then the IP
// allow-list. An empty stop code means the session passes.
func (e *Engine) checkIPPolicy(session types.Session, pref *models.UserPreference) string {
	if pref == nil {
		return ""
	}

	location := LocationOf(session.Player.Address)

	switch pref.NetworkPolicy {
	case models.NetworkPolicyLAN:
		if location != LocationLAN {
			return StopLanOnly
		}
	case models.NetworkPolicyWAN:
		if location != LocationWAN {
			return StopWanOnly
		}
	}

	if pref.IPAccessPolicy == models.IPAccessPolicyRestricted {
		if !addressAllowed(session.Player.Address, pref.AllowedIPs) {
			return StopIPNotAllowed
		}
	}

	return ""
}

// addressAllowed reports whether the address matches any allow-list entry.
// Entries are single IPs (exact match) or CIDR ranges (containment).
func addressAllowed(address string, allowed []string) bool {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return false
	}

	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err == nil && network.Contains(ip) {
				return true
			}
			continue
		}

		if allowedIP := net.ParseIP(entry); allowedIP != nil && allowedIP.Equal(ip) {
			return true
		}
	}

	return false
}
