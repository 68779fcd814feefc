package fat12

import "time"

// Clock supplies the current time for directory-entry timestamps. Tests
// should inject a fixed implementation for deterministic output; production
// code can use DefaultClock, per spec.md section 9.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// DefaultClock reads the system wall clock.
var DefaultClock Clock = systemClock{}
