package fit

import "fmt"

// InsufficientDataError reports a fit bucket that received no valid samples.
// It is recovered locally: the bucket takes the prior curve's value, or the
// previous distance's value on the first iteration.
type InsufficientDataError struct {
	// Window is the local window index, or -1 for the global curve.
	Window   int
	Distance int
}

func (e *InsufficientDataError) Error() string {
	if e.Window < 0 {
		return fmt.Sprintf("insufficient data for global fit at distance %d", e.Distance)
	}
	return fmt.Sprintf("insufficient data for window %d fit at distance %d", e.Window, e.Distance)
}

// Diagnostics summarizes degraded buckets of one estimation.
type Diagnostics struct {
	// Fallbacks lists every bucket that was filled from a fallback value.
	Fallbacks []*InsufficientDataError
}

// Degraded reports whether any bucket fell back.
func (d Diagnostics) Degraded() bool { return len(d.Fallbacks) > 0 }
