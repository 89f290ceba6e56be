package core

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker wraps sony/gobreaker with the trip policy the teacher uses for
// its upstream data providers: three consecutive failures, or a >5%
// failure rate once at least 20 requests have been observed in the
// rolling 60s window. Used around resnapshot fetches and dead-letter sink
// publishes so a flaky REST endpoint or downstream sink stops being hit
// at full rate instead of compounding the outage.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// NewBreaker creates a named breaker; name shows up in gobreaker's state
// change callback for logging.
func NewBreaker(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker, short-circuiting with
// gobreaker.ErrOpenState while the breaker is open.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// State exposes the breaker's current state for health reporting.
func (b *Breaker) State() cb.State {
	return b.cb.State()
}
