// Package system provides the wall clock used to stamp run manifests.
package system

import "time"

// Clock implements catalog.Clock. Times are UTC truncated to the second so
// manifests stay stable across encoders.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
