package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("rpc unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryExhausted(t *testing.T) {
	attempts := 0
	boom := errors.New("rpc unavailable")
	err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnContextError(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		attempts++
		return context.Canceled
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := withRetry(ctx, 5, time.Hour, func(context.Context) error {
		cancel()
		return errors.New("rpc unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, defaultRetryDelay, backoff(0, 0))
	assert.Equal(t, 400*time.Millisecond, backoff(100*time.Millisecond, 2))
	assert.Equal(t, maxRetryDelay, backoff(time.Second, 10))
	assert.Equal(t, maxRetryDelay, backoff(time.Second, 1000))
}
