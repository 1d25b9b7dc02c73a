// Package ratelimit paces a sender's query emissions against a target
// queries-per-second rate.
//
// The default Pacer ties the target send count to wall-clock elapsed
// time rather than a token bucket: sent <= qps * elapsed, with drift
// bounded by a single iteration. BucketPacer offers a token-bucket
// substitute (burst capped at 1 to preserve the same bound) for callers
// that prefer that algorithm.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Pacer decides whether the sender may transmit the next query now,
// given how many it has already sent and how long the run has been
// going. A zero-valued rate means unlimited: Allow always returns ok=true.
type Pacer interface {
	// Allow reports whether a send is permitted right now. If not, it
	// returns the duration the caller should sleep before re-checking.
	Allow(numSent uint64, elapsed time.Duration) (ok bool, retryAfter time.Duration)
}

// WallClockPacer implements the default rate-limiting discipline:
// required_time = numSent / rate; if that exceeds elapsed, the caller
// must wait out the difference. This bounds burst size to whatever a
// single loop iteration produces and keeps long-run throughput within
// rate regardless of scheduling jitter.
type WallClockPacer struct {
	rate float64 // queries per second; 0 disables limiting
}

// NewWallClockPacer builds a WallClockPacer targeting rate queries per
// second. A non-positive rate disables limiting.
func NewWallClockPacer(rate float64) *WallClockPacer {
	return &WallClockPacer{rate: rate}
}

func (p *WallClockPacer) Allow(numSent uint64, elapsed time.Duration) (bool, time.Duration) {
	if p == nil || p.rate <= 0 {
		return true, 0
	}
	required := time.Duration(float64(numSent) / p.rate * float64(time.Second))
	if required > elapsed {
		return false, required - elapsed
	}
	return true, 0
}

// BucketPacer is a token-bucket pacer with burst fixed at 1 token, the
// largest burst that still preserves the sent <= ceil(qps*T)+ε property
// of WallClockPacer, specialized to a single global bucket.
type BucketPacer struct {
	rate  float64
	burst float64

	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// NewBucketPacer builds a BucketPacer targeting rate queries per second
// with a burst capacity of 1 query.
func NewBucketPacer(rate float64) *BucketPacer {
	return &BucketPacer{
		rate:       rate,
		burst:      1,
		tokens:     1,
		lastUpdate: time.Now(),
	}
}

func (p *BucketPacer) Allow(_ uint64, _ time.Duration) (bool, time.Duration) {
	if p == nil || p.rate <= 0 {
		return true, 0
	}

	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := now.Sub(p.lastUpdate).Seconds()
	p.lastUpdate = now
	if elapsed > 0 {
		p.tokens = math.Min(p.burst, p.tokens+elapsed*p.rate)
	}

	if p.tokens >= 1 {
		p.tokens--
		return true, 0
	}

	deficit := 1 - p.tokens
	return false, time.Duration(deficit / p.rate * float64(time.Second))
}
