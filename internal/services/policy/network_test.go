// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationOf(t *testing.T) {
	tests := []struct {
		address string
		want    Location
	}{
		{"192.168.1.50", LocationLAN},
		{"10.0.0.4", LocationLAN},
		{"172.16.10.1", LocationLAN},
		{"127.0.0.1", LocationLAN},
		{"169.254.1.1", LocationLAN},
		{"fe80::1", LocationLAN},
		{"::1", LocationLAN},
		{"203.0.113.7", LocationWAN},
		{"8.8.8.8", LocationWAN},
		{"2001:db8::1", LocationWAN},
		{"172.32.0.1", LocationWAN}, // just outside 172.16/12
		{"not-an-ip", LocationWAN},
		{"", LocationWAN},
		{" 192.168.1.50 ", LocationLAN},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LocationOf(tt.address), "address %q", tt.address)
	}
}

func TestAddressAllowed(t *testing.T) {
	allowed := []string{"203.0.113.7", "198.51.100.0/24", "", " 10.1.2.3 ", "bogus"}

	assert.True(t, addressAllowed("203.0.113.7", allowed))
	assert.True(t, addressAllowed("198.51.100.1", allowed))
	assert.True(t, addressAllowed("198.51.100.254", allowed))
	assert.True(t, addressAllowed("10.1.2.3", allowed))

	assert.False(t, addressAllowed("198.51.101.1", allowed))
	assert.False(t, addressAllowed("203.0.113.8", allowed))
	assert.False(t, addressAllowed("not-an-ip", allowed))
	assert.False(t, addressAllowed("203.0.113.7", nil))
}
