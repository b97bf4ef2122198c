// Package checkin decides when to nudge a user with a push notification and
// sends the nudge. The rules are rate limits, not engagement optimisation:
// at most four sends a week, never two within eighteen hours, and never while
// the user is already actively journaling.
package checkin

import "time"

const (
	// MaxPerWeek caps sends in a rolling seven days.
	MaxPerWeek = 4
	// MinGap is the minimum spacing between two sends.
	MinGap = 18 * time.Hour
	// ActivityWindow and ActivityThreshold skip users who already wrote
	// three or more messages recently; they do not need a nudge.
	ActivityWindow    = 36 * time.Hour
	ActivityThreshold = 3
)

// Eligible applies the rate-limit rules for one user and returns the verdict
// with the rule that blocked it, if any.
func Eligible(enabled bool, lastSend *time.Time, sentThisWeek, recentUserMessages int, now time.Time) (bool, string) {
	if !enabled {
		return false, "check-ins disabled"
	}
	if sentThisWeek >= MaxPerWeek {
		return false, "weekly cap reached"
	}
	if lastSend != nil && now.Sub(*lastSend) < MinGap {
		return false, "minimum gap not elapsed"
	}
	if recentUserMessages >= ActivityThreshold {
		return false, "user recently active"
	}
	return true, ""
}
