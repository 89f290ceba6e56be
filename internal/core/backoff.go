package core

import "time"

// NextBackoff computes the reconnect delay that should follow an attempt.
// Ported from the original core::adapter reconnect loop's next_backoff:
// a stable run (an attempt that both succeeded and stayed up for at least
// minStable) resets the delay to its floor; anything else doubles the
// previous delay, saturating rather than overflowing, and clamps to
// maxBackoff.
func NextBackoff(prev, elapsed time.Duration, ok bool, maxBackoff, minStable time.Duration) time.Duration {
	if ok && elapsed >= minStable {
		return time.Second
	}
	return saturatingDouble(prev, maxBackoff)
}

// saturatingDouble doubles d without overflowing time.Duration's int64
// range, clamping to max.
func saturatingDouble(d, max time.Duration) time.Duration {
	if d <= 0 {
		d = time.Second
	}
	const maxDuration = time.Duration(1<<63 - 1)
	if d > maxDuration/2 {
		return max
	}
	doubled := d * 2
	if doubled > max {
		return max
	}
	return doubled
}
