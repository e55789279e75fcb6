package reset

import "time"

// Scheduler runs f once after d. The returned stop function cancels it and
// reports whether the call was prevented.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// TimerScheduler schedules on the runtime timer
type TimerScheduler struct{}

// AfterFunc implements Scheduler with time.AfterFunc
func (TimerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Navigator moves the user to another route. Fire-and-forget.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

// Navigate calls f(path)
func (f NavigatorFunc) Navigate(path string) {
	f(path)
}
