package impl

import "time"

// Clock returns the current time. Services take one so tests can move time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

func (c Clock) now() time.Time {
	if c == nil {
		return systemClock()
	}
	return c().UTC()
}
