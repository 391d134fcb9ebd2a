// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/plexguard/internal/models"
	"github.com/autobrr/plexguard/internal/services/settings"
	"github.com/autobrr/plexguard/internal/types"
)

// ParseUTCOffset parses a fixed "±HH:MM" offset. Time rules deliberately use
// a fixed offset instead of a zone database: no DST surprises at the block
// window edge.
func ParseUTCOffset(offset string) (time.Duration, error) {
	offset = strings.TrimSpace(offset)
	if len(offset) != 6 || (offset[0] != '+' && offset[0] != '-') || offset[3] != ':' {
		return 0, fmt.Errorf("invalid timezone offset %q, want ±HH:MM", offset)
	}

	hours, err := strconv.Atoi(offset[1:3])
	if err != nil || hours > 14 {
		return 0, fmt.Errorf("invalid timezone offset %q", offset)
	}
	minutes, err := strconv.Atoi(offset[4:6])
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("invalid timezone offset %q", offset)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if offset[0] == '-' {
		d = -d
	}
	return d, nil
}

// wallClock converts an instant into the configured naive wall clock.
func (e *Engine) wallClock(ctx context.Context, now time.Time) time.Time {
	offset, err := ParseUTCOffset(e.settings.GetString(ctx, settings.KeyTimezone))
	if err != nil {
		offset = 0
	}
	return now.UTC().Add(offset)
}

// checkTimeRules reports whether the session falls inside an enabled block
// window right now. Device-specific rules shadow user-wide rules: when any
// enabled device-specific rule exists for the session's device on the
// current day, user-wide rules for that day are ignored.
func (e *Engine) checkTimeRules(ctx context.Context, session types.Session, now time.Time) (bool, error) {
	rules, err := e.store.ListEnabledTimeRules(ctx, session.User.ID)
	if err != nil {
		return false, err
	}
	if len(rules) == 0 {
		return false, nil
	}

	wall := e.wallClock(ctx, now)
	dayOfWeek := int(wall.Weekday()) // 0 = Sunday
	hhmm := wall.Format("15:04")

	var deviceRules, userRules []models.TimeRule
	for _, rule := range rules {
		if rule.DayOfWeek != dayOfWeek {
			continue
		}
		switch rule.DeviceIdentifier {
		case "":
			userRules = append(userRules, rule)
		case session.Player.MachineID:
			deviceRules = append(deviceRules, rule)
		}
	}

	applicable := userRules
	if len(deviceRules) > 0 {
		applicable = deviceRules
	}

	for _, rule := range applicable {
		if insideWindow(hhmm, rule.StartTime, rule.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

// insideWindow compares zero-padded HH:MM strings. The window is
// [start, end); a start after its end wraps past midnight on the rule's own
// day, so 22:00-02:00 blocks 22:00-23:59 and 00:00-01:59 of that weekday.
func insideWindow(now, start, end string) bool {
	if start == end {
		return false
	}
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}
