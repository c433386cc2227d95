package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name      string
		perMinute int
		burst     int
		calls     int
		wantPass  int
	}{
		{
			name:      "burst allows initial requests",
			perMinute: 60,
			burst:     3,
			calls:     3,
			wantPass:  3,
		},
		{
			name:      "exceeding burst blocks",
			perMinute: 60,
			burst:     2,
			calls:     5,
			wantPass:  2,
		},
		{
			name:      "zero rate disables limiting",
			perMinute: 0,
			burst:     1,
			calls:     50,
			wantPass:  50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.perMinute, tt.burst)
			defer rl.Stop()

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("tok") {
					passed++
				}
			}

			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1)
	defer rl.Stop()

	assert.True(t, rl.Allow("laptop"))
	assert.False(t, rl.Allow("laptop"), "laptop should be exhausted")
	assert.True(t, rl.Allow("phone"), "phone should be independent")
}

func TestKeyedRateLimiter_RetryAfter(t *testing.T) {
	rl := New(120, 1)
	defer rl.Stop()
	assert.Equal(t, 500*time.Millisecond, rl.RetryAfter())

	unlimited := New(0, 1)
	defer unlimited.Stop()
	assert.Zero(t, unlimited.RetryAfter())
}

func TestKeyedRateLimiter_EvictIdle(t *testing.T) {
	rl := New(60, 1)
	defer rl.Stop()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(rl.idleTTL - time.Minute)
	rl.Allow("recent")
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 1, rl.evictIdle())
	assert.Equal(t, 1, rl.Len())

	// An evicted key starts over with a full bucket.
	assert.True(t, rl.Allow("old"))
}

func TestKeyedRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(60, 1)
	rl.Stop()
	rl.Shutdown()
}
