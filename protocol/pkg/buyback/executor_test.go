package buyback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/moneymayx/billions-bounty/protocol/pkg/buyback"
	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	btesting "github.com/moneymayx/billions-bounty/utils/pkg/testing"
)

const testBasePrice = uint64(10_000_000)

type swapFunc func(ctx context.Context, amount uint64) (uint64, error)

func (f swapFunc) Swap(ctx context.Context, amount uint64) (uint64, error) {
	return f(ctx, amount)
}

type fixture struct {
	eng     *engine.Engine
	authKey solana.PrivateKey
}

func mustKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

// newFixture bootstraps the protocol with one bounty and a single processed
// entry, leaving 1_000_000 owed to the buyback executor.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := btesting.NewLogger()

	st := testDB.NewTestStore(t, log)
	eng, err := engine.New(engine.Config{Logger: log, Store: st})
	require.NoError(t, err)

	f := &fixture{eng: eng, authKey: mustKey(t)}

	require.NoError(t, eng.Initialize(t.Context(), engine.InitializeParams{
		Authority:      f.authKey.PublicKey(),
		DecisionSigner: mustKey(t).PublicKey(),
		PoolWallet:     mustKey(t).PublicKey(),
		OpsWallet:      mustKey(t).PublicKey(),
		BuybackWallet:  mustKey(t).PublicKey(),
		StakingWallet:  mustKey(t).PublicKey(),
	}))
	require.NoError(t, eng.InitializeBounty(t.Context(), f.authKey.PublicKey(), 1, testBasePrice))

	payer := mustKey(t).PublicKey()
	require.NoError(t, eng.CreditWallet(t.Context(), f.authKey.PublicKey(), payer, testBasePrice))
	_, err = eng.ProcessEntry(t.Context(), payer, 1, testBasePrice)
	require.NoError(t, err)
	return f
}

func (f *fixture) owed(t *testing.T) uint64 {
	t.Helper()
	_, owed, err := f.eng.BuybackStatus(t.Context())
	require.NoError(t, err)
	return owed
}

func TestExecutor_Run(t *testing.T) {
	t.Parallel()

	t.Run("settles the full owed amount", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.Equal(t, uint64(1_000_000), f.owed(t))

		exec, err := buyback.New(buyback.Config{
			Logger:    btesting.NewLogger(),
			Engine:    f.eng,
			Authority: f.authKey.PublicKey(),
		})
		require.NoError(t, err)

		require.NoError(t, exec.Run(t.Context()))
		require.Equal(t, uint64(0), f.owed(t))

		// Nothing left; a second run is a no-op.
		require.NoError(t, exec.Run(t.Context()))
		require.Equal(t, uint64(0), f.owed(t))
	})

	t.Run("partial fills leave the rest owed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		exec, err := buyback.New(buyback.Config{
			Logger:    btesting.NewLogger(),
			Engine:    f.eng,
			Authority: f.authKey.PublicKey(),
			Swapper: swapFunc(func(ctx context.Context, amount uint64) (uint64, error) {
				return amount / 2, nil
			}),
		})
		require.NoError(t, err)

		require.NoError(t, exec.Run(t.Context()))
		require.Equal(t, uint64(500_000), f.owed(t))
	})

	t.Run("over-execution by the swapper is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		exec, err := buyback.New(buyback.Config{
			Logger:    btesting.NewLogger(),
			Engine:    f.eng,
			Authority: f.authKey.PublicKey(),
			Swapper: swapFunc(func(ctx context.Context, amount uint64) (uint64, error) {
				return amount + 1, nil
			}),
		})
		require.NoError(t, err)

		require.Error(t, exec.Run(t.Context()))
		require.Equal(t, uint64(1_000_000), f.owed(t))
	})

	t.Run("swap failure leaves the ledger untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		exec, err := buyback.New(buyback.Config{
			Logger:    btesting.NewLogger(),
			Engine:    f.eng,
			Authority: f.authKey.PublicKey(),
			Swapper: swapFunc(func(ctx context.Context, amount uint64) (uint64, error) {
				return 0, errors.New("venue unavailable")
			}),
		})
		require.NoError(t, err)

		require.Error(t, exec.Run(t.Context()))
		require.Equal(t, uint64(1_000_000), f.owed(t))
	})

	t.Run("dust below the threshold is skipped", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		exec, err := buyback.New(buyback.Config{
			Logger:       btesting.NewLogger(),
			Engine:       f.eng,
			Authority:    f.authKey.PublicKey(),
			MinExecution: 2_000_000,
		})
		require.NoError(t, err)

		require.NoError(t, exec.Run(t.Context()))
		require.Equal(t, uint64(1_000_000), f.owed(t))
	})
}

func TestExecutor_Start(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	clock := clockwork.NewFakeClock()
	exec, err := buyback.New(buyback.Config{
		Logger:    btesting.NewLogger(),
		Engine:    f.eng,
		Authority: f.authKey.PublicKey(),
		Clock:     clock,
		Interval:  time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	exec.Start(ctx)

	// Let the loop reach the ticker before advancing.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)

	require.Eventually(t, func() bool {
		return f.owed(t) == 0
	}, 10*time.Second, 50*time.Millisecond)
}
