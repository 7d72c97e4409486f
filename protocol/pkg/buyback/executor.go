// Package buyback runs the periodic executor that drains the owed buyback
// allocation. The executor reads the tracker, hands the owed amount to a
// Swapper, and records the confirmed execution so the ledger's
// executed-never-exceeds-allocated bound is maintained by the engine.
package buyback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	"github.com/moneymayx/billions-bounty/protocol/pkg/metrics"
	"github.com/moneymayx/billions-bounty/utils/pkg/retry"
)

// Swapper performs the actual token swap/burn for an owed amount and returns
// how much was executed. Implementations may execute less than requested
// (partial fills, slippage limits) but never more.
type Swapper interface {
	Swap(ctx context.Context, amount uint64) (uint64, error)
}

// LogSwapper is a Swapper that only records intent. Deployments without a
// live swap venue run this and settle manually.
type LogSwapper struct {
	Log *slog.Logger
}

func (s *LogSwapper) Swap(ctx context.Context, amount uint64) (uint64, error) {
	s.Log.Info("buyback: swap requested, settling full amount", "amount", amount)
	return amount, nil
}

type Config struct {
	Logger    *slog.Logger
	Engine    *engine.Engine
	Authority solana.PublicKey
	Swapper   Swapper
	Clock     clockwork.Clock

	// Interval between executor runs.
	Interval time.Duration

	// MinExecution skips runs while the owed amount is below this threshold,
	// so dust does not trigger swaps.
	MinExecution uint64

	Retry retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Authority.IsZero() {
		return errors.New("authority is required")
	}
	if cfg.Swapper == nil {
		cfg.Swapper = &LogSwapper{Log: cfg.Logger}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Executor periodically settles the owed buyback allocation.
type Executor struct {
	log *slog.Logger
	cfg Config

	runMu sync.Mutex
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{log: cfg.Logger, cfg: cfg}, nil
}

// Start launches the executor loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (e *Executor) Start(ctx context.Context) {
	go func() {
		e.log.Info("buyback: starting executor loop", "interval", e.cfg.Interval)

		ticker := e.cfg.Clock.NewTicker(e.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				e.safeRun(ctx)
			}
		}
	}()
}

func (e *Executor) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("buyback: run panicked", "panic", r)
		}
	}()

	if err := e.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		e.log.Error("buyback: run failed", "error", err)
	}
}

// Run executes one settlement pass: swap the owed amount and record the
// execution against the tracker.
func (e *Executor) Run(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	runStart := time.Now()
	var runErr error
	defer func() {
		metrics.RecordBuybackRun(time.Since(runStart), runErr)
	}()

	tracker, owed, err := e.cfg.Engine.BuybackStatus(ctx)
	if err != nil {
		runErr = fmt.Errorf("failed to read buyback status: %w", err)
		return runErr
	}
	metrics.RecordBuybackState(tracker.TotalAllocated, tracker.TotalExecuted)

	if owed == 0 || owed < e.cfg.MinExecution {
		e.log.Debug("buyback: nothing to execute", "owed", owed, "min", e.cfg.MinExecution)
		return nil
	}

	executed, err := e.cfg.Swapper.Swap(ctx, owed)
	if err != nil {
		runErr = fmt.Errorf("failed to swap: %w", err)
		return runErr
	}
	if executed == 0 {
		e.log.Debug("buyback: swap executed nothing", "owed", owed)
		return nil
	}
	if executed > owed {
		runErr = fmt.Errorf("swapper executed %d but only %d was owed", executed, owed)
		return runErr
	}

	err = retry.Do(ctx, e.cfg.Retry, func() error {
		tracker, err := e.cfg.Engine.RecordBuybackExecution(ctx, e.cfg.Authority, executed)
		if err != nil {
			return err
		}
		metrics.RecordBuybackState(tracker.TotalAllocated, tracker.TotalExecuted)
		return nil
	})
	if err != nil {
		runErr = fmt.Errorf("failed to record buyback execution: %w", err)
		return runErr
	}

	e.log.Info("buyback: execution recorded", "executed", executed, "owed", owed)
	return nil
}
