//go:build unit

package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{name: "zero base", base: 0, attempt: 3, want: 0},
		{name: "negative base", base: -time.Second, attempt: 1, want: 0},
		{name: "first attempt", base: 100 * time.Millisecond, attempt: 0, want: 100 * time.Millisecond},
		{name: "third attempt", base: 100 * time.Millisecond, attempt: 3, want: 800 * time.Millisecond},
		{name: "negative attempt", base: time.Second, attempt: -4, want: time.Second},
		{name: "overflow saturates", base: time.Hour, attempt: 100, want: time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, Exponential(tt.base, tt.attempt))
		})
	}
}

func TestFullJitterStaysInRange(t *testing.T) {
	t.Parallel()

	assert.Zero(t, FullJitter(0))
	assert.Zero(t, FullJitter(-time.Second))

	for range 100 {
		got := FullJitter(50 * time.Millisecond)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, 50*time.Millisecond)
	}
}

func TestExponentialWithJitterBounded(t *testing.T) {
	t.Parallel()

	for range 100 {
		got := ExponentialWithJitter(10*time.Millisecond, 2)
		assert.Less(t, got, 40*time.Millisecond)
	}
}

func TestCapped(t *testing.T) {
	t.Parallel()

	for range 100 {
		assert.LessOrEqual(t, Capped(time.Second, 200*time.Millisecond, 10), 200*time.Millisecond)
	}

	assert.Less(t, Capped(time.Millisecond, 0, 1), 2*time.Millisecond)
}

func TestSleepWithContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepWithContext(context.Background(), 0))
	require.NoError(t, SleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepWithContext(ctx, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
