package backoff

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand/v2"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt, saturating at math.MaxInt64.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(int64(base) * multiplier)
}

// FullJitter returns a random duration in [0, delay).
// crypto/rand is preferred; math/rand/v2 is used if it fails.
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(delay)))
	if err != nil {
		return time.Duration(mrand.Int64N(int64(delay))) // #nosec G404 -- jitter only
	}

	return time.Duration(n.Int64())
}

// ExponentialWithJitter returns a random duration in [0, base * 2^attempt).
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// Capped returns ExponentialWithJitter bounded by limit. A non-positive limit
// disables the bound.
func Capped(base, limit time.Duration, attempt int) time.Duration {
	delay := ExponentialWithJitter(base, attempt)
	if limit > 0 && delay > limit {
		return limit
	}

	return delay
}

// SleepWithContext sleeps for duration unless ctx is done first.
// Zero or negative durations return immediately.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
