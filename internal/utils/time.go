package utils

import (
	"time"
)

// UnixTimeToTime converts epoch seconds from a provider payload. Zero maps to
// the zero time.
func UnixTimeToTime(unixTime int64) time.Time {
	if unixTime == 0 {
		return time.Time{}
	}
	return time.Unix(unixTime, 0)
}
