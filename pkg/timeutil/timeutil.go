package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// Sleeper abstracts time.Sleep so callers can inject a fake clock in tests.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps on the wall clock via time.Sleep.
type RealSleeper struct{}

func NewRealSleeper() RealSleeper {
	return RealSleeper{}
}

func (s *RealSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// MaxDuration returns the largest value among delays, or 0 for an empty slice.
func MaxDuration(delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	max := delays[0]
	for _, d := range delays[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max). max <= 0 yields 0.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay before the next retry attempt,
// given the attempt number (1-indexed), a jitter ceiling, an RNG, and the
// backoff curve parameters. delay = min(initial * multiplier^(attempt-1), max) + uniform(0, jitter).
func ExponentialBackoffDelay(attempt int, jitter time.Duration, rng rand.Rand, backoffParam BackoffParam) time.Duration {
	exponent := float64(attempt - 1)
	delay := float64(backoffParam.InitialDuration()) * math.Pow(backoffParam.Multiplier(), exponent)
	if max := float64(backoffParam.MaxDuration()); max > 0 && delay > max {
		delay = max
	}

	delay += float64(ComputeJitter(jitter, rng))

	return time.Duration(delay)
}
