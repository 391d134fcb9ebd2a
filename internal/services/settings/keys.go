// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package settings

// Kind is the declared value type of a settings key.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindJSON   Kind = "json"
)

// Keys recognized by the core. Unknown keys are rejected on write.
const (
	KeyPlexServerIP    = "PLEX_SERVER_IP"
	KeyPlexServerPort  = "PLEX_SERVER_PORT"
	KeyPlexToken       = "PLEX_TOKEN"
	KeyUseSSL          = "USE_SSL"
	KeyIgnoreSSLErrors = "IGNORE_SSL_ERRORS"

	KeyRefreshInterval = "PLEXGUARD_REFRESH_INTERVAL"
	KeyDefaultBlock    = "PLEX_GUARD_DEFAULT_BLOCK"
	KeyStrictMode      = "STRICT_MODE"

	KeyConcurrentStreamLimit = "CONCURRENT_STREAM_LIMIT"
	KeyConcurrentIncludeTemp = "CONCURRENT_LIMIT_INCLUDE_TEMP_ACCESS"

	KeyDeviceCleanupEnabled      = "DEVICE_CLEANUP_ENABLED"
	KeyDeviceCleanupIntervalDays = "DEVICE_CLEANUP_INTERVAL_DAYS"

	KeyTimezone = "TIMEZONE"

	KeyMsgDevicePending  = "MSG_DEVICE_PENDING"
	KeyMsgDeviceRejected = "MSG_DEVICE_REJECTED"
	KeyMsgTimeRestricted = "MSG_TIME_RESTRICTED"
	KeyMsgConcurrentLimit = "MSG_CONCURRENT_LIMIT"
	KeyMsgIPLanOnly      = "MSG_IP_LAN_ONLY"
	KeyMsgIPWanOnly      = "MSG_IP_WAN_ONLY"
	KeyMsgIPNotAllowed   = "MSG_IP_NOT_ALLOWED"

	KeySessionSecret = "SESSION_SECRET"
)

// Spec declares the type, default, and visibility of a key.
type Spec struct {
	Kind    Kind
	Default string
	// Private keys never appear in settings exports.
	Private bool
}

// Catalog enumerates every key the core reads, with defaults applied when the
// settings table has no row for the key.
var Catalog = map[string]Spec{
	KeyPlexServerIP:    {Kind: KindString, Default: ""},
	KeyPlexServerPort:  {Kind: KindString, Default: "32400"},
	KeyPlexToken:       {Kind: KindString, Default: "", Private: true},
	KeyUseSSL:          {Kind: KindBool, Default: "false"},
	KeyIgnoreSSLErrors: {Kind: KindBool, Default: "false"},

	KeyRefreshInterval: {Kind: KindInt, Default: "10"},
	KeyDefaultBlock:    {Kind: KindBool, Default: "false"},
	KeyStrictMode:      {Kind: KindBool, Default: "false"},

	KeyConcurrentStreamLimit: {Kind: KindInt, Default: "0"},
	KeyConcurrentIncludeTemp: {Kind: KindBool, Default: "false"},

	KeyDeviceCleanupEnabled:      {Kind: KindBool, Default: "false"},
	KeyDeviceCleanupIntervalDays: {Kind: KindInt, Default: "30"},

	KeyTimezone: {Kind: KindString, Default: "+00:00"},

	KeyMsgDevicePending:   {Kind: KindString, Default: "This device is awaiting approval. Ask your server admin to approve it."},
	KeyMsgDeviceRejected:  {Kind: KindString, Default: "This device has been blocked by the server admin."},
	KeyMsgTimeRestricted:  {Kind: KindString, Default: "Streaming is not allowed at this time."},
	KeyMsgConcurrentLimit: {Kind: KindString, Default: "Too many simultaneous streams on this account."},
	KeyMsgIPLanOnly:       {Kind: KindString, Default: "This account may only stream from the local network."},
	KeyMsgIPWanOnly:       {Kind: KindString, Default: "This account may only stream from outside the local network."},
	KeyMsgIPNotAllowed:    {Kind: KindString, Default: "Streaming from this network address is not allowed."},

	KeySessionSecret: {Kind: KindString, Default: "", Private: true},
}
