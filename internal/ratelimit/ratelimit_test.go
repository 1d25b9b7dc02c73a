package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClockPacerDisabled(t *testing.T) {
	p := NewWallClockPacer(0)
	ok, wait := p.Allow(1_000_000, 0)
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestWallClockPacerAheadOfSchedule(t *testing.T) {
	// 10 qps, 1 query sent after only 10ms elapsed: required = 100ms > 10ms.
	p := NewWallClockPacer(10)
	ok, wait := p.Allow(1, 10*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, 90*time.Millisecond, wait)
}

func TestWallClockPacerOnSchedule(t *testing.T) {
	p := NewWallClockPacer(10)
	ok, wait := p.Allow(1, 200*time.Millisecond)
	assert.True(t, ok)
	assert.Zero(t, wait)
}

func TestBucketPacerDisabled(t *testing.T) {
	p := NewBucketPacer(0)
	ok, _ := p.Allow(0, 0)
	assert.True(t, ok)
}

func TestBucketPacerBurstIsOne(t *testing.T) {
	p := NewBucketPacer(1000)
	ok, _ := p.Allow(0, 0)
	assert.True(t, ok, "first call should consume the single starting token")
	ok, wait := p.Allow(0, 0)
	assert.False(t, ok, "second immediate call should be denied (burst=1)")
	assert.Greater(t, wait, time.Duration(0))
}

func TestBucketPacerReplenishes(t *testing.T) {
	p := NewBucketPacer(1000) // 1 token/ms
	ok, _ := p.Allow(0, 0)
	assert.True(t, ok)
	time.Sleep(2 * time.Millisecond)
	ok, _ = p.Allow(0, 0)
	assert.True(t, ok, "token should have replenished after 2ms at 1000qps")
}
