package refresh

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyRefreshing is returned when a manual refresh is requested while
// a cycle is running.
var ErrAlreadyRefreshing = errors.New("refresh already in progress")

// CooldownError is returned when a manual refresh is requested before the
// cooldown since the last cycle start has elapsed.
type CooldownError struct {
	Remaining time.Duration
}

// Error returns the advisory message with the remaining cooldown rounded up
// to whole seconds.
func (e *CooldownError) Error() string {
	return fmt.Sprintf("refresh available in %d seconds", e.RemainingSeconds())
}

// RemainingSeconds returns the remaining cooldown in whole seconds, rounded
// up so the advisory never reads "0 seconds" while still rejecting.
func (e *CooldownError) RemainingSeconds() int {
	secs := int((e.Remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
