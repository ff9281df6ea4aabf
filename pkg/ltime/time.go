// Package ltime provides a compact, serializable representation of wall
// time used throughout signed updates and auth challenges.
package ltime

import "time"

// Seconds is a whole-second Unix timestamp. It is intentionally coarser
// than time.Time so that it round-trips identically through msgpack/yaml
// without monotonic-clock or location baggage.
type Seconds uint64

// Now returns the current time truncated to whole seconds.
func Now() Seconds {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to Seconds.
func FromTime(t time.Time) Seconds {
	return Seconds(t.Unix())
}

// Time converts back to a time.Time in UTC.
func (s Seconds) Time() time.Time {
	return time.Unix(int64(s), 0).UTC()
}

// Since returns how many seconds have elapsed from s to other. Negative if
// s is in the future relative to other.
func (s Seconds) Since(other Seconds) int64 {
	return int64(other) - int64(s)
}
