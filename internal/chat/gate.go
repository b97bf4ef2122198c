package chat

import "errors"

// ErrMessageLimit is returned when a free-plan user has exhausted their
// monthly message allowance.
var ErrMessageLimit = errors.New("monthly message limit reached")

// ErrEmptyMessage is returned for a blank journal entry before any request is
// issued.
var ErrEmptyMessage = errors.New("message text is empty")

// AllowMessage reports whether a user on the given plan may send another
// message this calendar month. Only an empty or "free" plan is capped; any
// other plan name came from a paid subscription and is uncapped. Plan names
// are not enumerated here because billing sets them from checkout metadata.
func AllowMessage(plan string, sentThisMonth, freeCap int) error {
	switch plan {
	case "", "free":
		if sentThisMonth >= freeCap {
			return ErrMessageLimit
		}
	}
	return nil
}
