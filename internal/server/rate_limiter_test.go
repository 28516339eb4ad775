package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsBurstThenDenies(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow(), "event %d within burst", i)
	}
	assert.False(t, rl.allow(), "event over burst should be denied")
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := newRateLimiter(2, 20*time.Millisecond)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.allow(), "tokens should have refilled")
}

func TestRateLimiterSanitizesInvalidParameters(t *testing.T) {
	rl := newRateLimiter(0, 0)
	assert.True(t, rl.allow(), "limiter with clamped defaults should allow the first event")
}
