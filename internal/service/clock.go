package service

import "time"

// Clock returns the current time. Services truncate to whole seconds so
// stored timestamps match the unix-second resolution indexers read.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func orSystem(c Clock) Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
