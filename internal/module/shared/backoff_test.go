package shared_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dumbtokens/launch-watcher/internal/module/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingBackoff(maxRetries int, initial time.Duration) (*shared.Backoff, *[]time.Duration) {
	var delays []time.Duration
	b := shared.NewBackoff(maxRetries, initial)
	b.Sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return b, &delays
}

func TestRetryDoublesDelayBetweenAttempts(t *testing.T) {
	b, delays := recordingBackoff(4, 100*time.Millisecond)

	attempts := 0
	result, err := shared.Retry(context.Background(), b, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 4 {
			return "", errors.New("not yet")
		}
		return "abi", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "abi", result)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, *delays)
}

func TestRetryFailsAfterMaxAttempts(t *testing.T) {
	b, delays := recordingBackoff(5, time.Second)
	boom := errors.New("boom")

	attempts := 0
	_, err := shared.Retry(context.Background(), b, func(ctx context.Context) (int, error) {
		attempts++
		return 0, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrRetriesExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
}

func TestRetrySucceedsFirstTryWithoutSleeping(t *testing.T) {
	b, delays := recordingBackoff(5, time.Second)

	_, err := shared.Retry(context.Background(), b, func(ctx context.Context) (bool, error) {
		return true, nil
	})

	require.NoError(t, err)
	assert.Empty(t, *delays)
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	b := shared.NewBackoff(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	_, err := shared.Retry(ctx, b, func(ctx context.Context) (int, error) {
		attempts++
		cancel()
		return 0, errors.New("down")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestNewBackoffDefaults(t *testing.T) {
	b := shared.NewBackoff(0, 0)

	assert.Equal(t, shared.DefaultMaxRetries, b.MaxRetries)
	assert.Equal(t, shared.DefaultInitialDelay, b.InitialDelay)
	assert.Equal(t, 16*time.Second, b.Delay(4))
}
