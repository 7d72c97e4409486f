package server_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/moneymayx/billions-bounty/protocol/pkg/server"
)

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	t.Run("enforces the burst per ip", func(t *testing.T) {
		t.Parallel()
		rl := server.NewRateLimiter(rate.Every(time.Hour), 2)
		defer rl.Stop()

		for i := 0; i < 2; i++ {
			allowed, _ := rl.AllowWithRetry("10.0.0.1")
			require.True(t, allowed)
		}
		allowed, retryAfter := rl.AllowWithRetry("10.0.0.1")
		require.False(t, allowed)
		require.Greater(t, retryAfter, time.Duration(0))

		// Other clients are unaffected.
		allowed, _ = rl.AllowWithRetry("10.0.0.2")
		require.True(t, allowed)
	})

	t.Run("stop is idempotent and leaves the limiter usable", func(t *testing.T) {
		t.Parallel()
		rl := server.NewRateLimiter(rate.Every(time.Hour), 1)
		rl.Stop()
		rl.Stop()

		allowed, _ := rl.AllowWithRetry("10.0.0.1")
		require.True(t, allowed)
	})
}
