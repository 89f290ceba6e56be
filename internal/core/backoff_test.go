package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff_ResetsAfterStableRun(t *testing.T) {
	const maxBackoff = 64 * time.Second
	const minStable = 5 * time.Second

	backoff := time.Second
	backoff = NextBackoff(backoff, 0, false, maxBackoff, minStable)
	assert.Equal(t, 2*time.Second, backoff)

	backoff = NextBackoff(backoff, 10*time.Second, true, maxBackoff, minStable)
	assert.Equal(t, time.Second, backoff)
}

func TestNextBackoff_DoesNotResetOnShortLivedSuccess(t *testing.T) {
	const maxBackoff = 64 * time.Second
	const minStable = 30 * time.Second

	backoff := 4 * time.Second
	backoff = NextBackoff(backoff, 2*time.Second, true, maxBackoff, minStable)
	assert.Equal(t, 8*time.Second, backoff, "success shorter than minStable still doubles")
}

func TestNextBackoff_HandlesLargePreviousWithoutOverflow(t *testing.T) {
	const maxBackoff = 64 * time.Second
	huge := time.Duration(1<<63 - 1)

	backoff := NextBackoff(huge, 0, false, maxBackoff, 30*time.Second)
	assert.Equal(t, maxBackoff, backoff)
}

func TestNextBackoff_HandlesPreviousNearOverflow(t *testing.T) {
	const maxBackoff = 64 * time.Second
	near := time.Duration(uint64(1<<63-1)/2 + 1)

	backoff := NextBackoff(near, 0, false, maxBackoff, 30*time.Second)
	assert.Equal(t, maxBackoff, backoff)
}

func TestNextBackoff_ClampsAtCeiling(t *testing.T) {
	const maxBackoff = 64 * time.Second
	backoff := 40 * time.Second
	backoff = NextBackoff(backoff, 0, false, maxBackoff, 30*time.Second)
	assert.Equal(t, maxBackoff, backoff)
}
