package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(30, time.Minute)

	for i := 0; i < 30; i++ {
		res := rl.Check("10.0.0.1:create")
		assert.True(t, res.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 30-(i+1), res.Remaining)
	}

	res := rl.Check("10.0.0.1:create")
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.Positive(t, time.Until(res.ResetTime), "reset time must lie in the future")
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Check("10.0.0.1:create").Allowed)
	assert.False(t, rl.Check("10.0.0.1:create").Allowed)

	// A different caller and a different endpoint class each get their
	// own budget.
	assert.True(t, rl.Check("10.0.0.2:create").Allowed)
	assert.True(t, rl.Check("10.0.0.1:list").Allowed)
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 30*time.Millisecond)

	assert.True(t, rl.Check("k").Allowed)
	assert.False(t, rl.Check("k").Allowed)

	time.Sleep(50 * time.Millisecond)
	res := rl.Check("k")
	assert.True(t, res.Allowed)
}

func TestRateLimiterDeniedDoesNotConsume(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)

	first := rl.Check("k")
	assert.True(t, first.Allowed)
	second := rl.Check("k")
	assert.True(t, second.Allowed)

	// Denied requests keep reporting the same reset boundary.
	d1 := rl.Check("k")
	d2 := rl.Check("k")
	assert.False(t, d1.Allowed)
	assert.False(t, d2.Allowed)
	assert.Equal(t, d1.ResetTime, d2.ResetTime)
	assert.Equal(t, second.ResetTime, d1.ResetTime)
}
