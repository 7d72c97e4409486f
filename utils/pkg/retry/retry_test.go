package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_Do(t *testing.T) {
	t.Parallel()

	fastCfg := Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	t.Run("succeeds on first attempt", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("retries retryable errors until success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("does not retry non-retryable errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		permanent := errors.New("invalid signature")
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			return permanent
		})
		require.ErrorIs(t, err, permanent)
		require.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := Do(context.Background(), fastCfg, func() error {
			calls++
			return errors.New("timeout")
		})
		require.Error(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("respects context cancellation between attempts", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Do(ctx, Config{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Second}, func() error {
			return errors.New("timeout")
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetry_IsRetryable(t *testing.T) {
	t.Parallel()

	require.False(t, IsRetryable(nil))
	require.False(t, IsRetryable(context.Canceled))
	require.False(t, IsRetryable(context.DeadlineExceeded))
	require.False(t, IsRetryable(errors.New("nonce already used")))

	require.True(t, IsRetryable(errors.New("connection reset by peer")))
	require.True(t, IsRetryable(errors.New("serialization failure")))
	require.True(t, IsRetryable(&net.DNSError{Err: "no such host", IsTimeout: true}))
}
