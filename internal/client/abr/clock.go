package abr

import "time"

// Clock is the engine's view of time. Tests substitute a manual implementation.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once d has elapsed. f must never run before AfterFunc returns.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer cancels a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
