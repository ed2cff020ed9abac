package provider

import (
	"time"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/roughtime"
)

// WallClock is a concrete Clock implementation: a thin
// wrapper over roughtime, itself a thin wrapper over time.Now. Components
// take Clock as an interface so tests can inject fake since/until/after
// functions instead of sleeping real time.
type WallClock struct{}

var _ Clock = WallClock{}

func (WallClock) Now() time.Time                      { return roughtime.Now() }
func (WallClock) Since(t time.Time) time.Duration      { return roughtime.Since(t) }
func (WallClock) Until(t time.Time) time.Duration      { return roughtime.Until(t) }
func (WallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
