// Package engine implements the protocol state machine: paid entries with
// the escalating price curve and four-way split, the permissionless time
// escape fallback, signature-authorized winner payouts with nonce replay
// protection, and the buyback execution ledger. Every operation is one
// atomic store transaction; either every check and transfer in a call
// commits, or none does.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
	"github.com/moneymayx/billions-bounty/protocol/pkg/price"
	"github.com/moneymayx/billions-bounty/protocol/pkg/store"
)

const (
	// DefaultEscapeWindow is how long a bounty must sit without a new entry
	// before anyone may trigger the escape fallback.
	DefaultEscapeWindow = 24 * time.Hour

	// LastShareRatePct is the slice of the pool paid synchronously to the
	// last participant on escape; the remainder is journaled for the
	// off-chain batch distributor.
	LastShareRatePct = 20

	// Emergency recovery limits, carried from the deployed program: one
	// recovery per cooldown period, at most a tenth of the pool per call.
	recoveryCooldown = 24 * time.Hour
	maxRecoveryPct   = 10

	maxNonceLength = 100
)

// maxLedgerAmount bounds every ingested amount and every accumulator so the
// BIGINT ledger can never overflow. Exceeding it is ArithmeticOverflow,
// checked before any transfer applies.
const maxLedgerAmount = uint64(math.MaxInt64)

type Config struct {
	Logger *slog.Logger
	Store  *store.Store
	Clock  clockwork.Clock

	// EscapeWindow overrides DefaultEscapeWindow; zero keeps the default.
	EscapeWindow time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.EscapeWindow == 0 {
		cfg.EscapeWindow = DefaultEscapeWindow
	}
	if cfg.EscapeWindow < 0 {
		return errors.New("escape window must be positive")
	}
	return nil
}

// Engine executes protocol calls against the store.
type Engine struct {
	log   *slog.Logger
	cfg   Config
	store *store.Store
	clock clockwork.Clock
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		log:   cfg.Logger,
		cfg:   cfg,
		store: cfg.Store,
		clock: cfg.Clock,
	}, nil
}

// InitializeParams bootstraps the protocol singleton.
type InitializeParams struct {
	Authority      solana.PublicKey
	DecisionSigner solana.PublicKey
	PoolWallet     solana.PublicKey
	OpsWallet      solana.PublicKey
	BuybackWallet  solana.PublicKey
	StakingWallet  solana.PublicKey
	PoolFloor      uint64
}

func (p *InitializeParams) validate() error {
	for _, k := range []solana.PublicKey{p.Authority, p.DecisionSigner, p.PoolWallet, p.OpsWallet, p.BuybackWallet, p.StakingWallet} {
		if k.IsZero() {
			return fmt.Errorf("%w: zero wallet identity", ErrInvalidInput)
		}
	}
	if p.PoolFloor > maxLedgerAmount {
		return ErrArithmeticOverflow
	}
	return nil
}

// Initialize creates the global config and the four destination wallet rows.
// The pool wallet must already hold at least the pool floor.
func (e *Engine) Initialize(ctx context.Context, p InitializeParams) error {
	if err := p.validate(); err != nil {
		return err
	}

	return e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		for _, w := range []solana.PublicKey{p.PoolWallet, p.OpsWallet, p.BuybackWallet, p.StakingWallet, p.Authority} {
			if err := tx.EnsureWallet(ctx, w.String()); err != nil {
				return err
			}
		}

		balance, err := tx.GetWalletBalance(ctx, p.PoolWallet.String())
		if err != nil {
			return err
		}
		if balance < p.PoolFloor {
			return fmt.Errorf("%w: pool wallet holds %d, floor is %d", ErrInsufficientFunds, balance, p.PoolFloor)
		}

		if err := tx.InsertConfig(ctx, store.GlobalConfig{
			Authority:      p.Authority.String(),
			DecisionSigner: p.DecisionSigner.String(),
			PoolWallet:     p.PoolWallet.String(),
			OpsWallet:      p.OpsWallet.String(),
			BuybackWallet:  p.BuybackWallet.String(),
			StakingWallet:  p.StakingWallet.String(),
			PoolFloor:      p.PoolFloor,
			IsActive:       true,
		}); err != nil {
			if errors.Is(err, store.ErrAlreadyInitialized) {
				return ErrAlreadyInitialized
			}
			return err
		}

		e.log.Info("protocol initialized",
			"authority", p.Authority.String(),
			"decision_signer", p.DecisionSigner.String(),
			"pool_floor", p.PoolFloor)

		return tx.AppendEvent(ctx, "protocol_initialized", nil, map[string]any{
			"authority":       p.Authority.String(),
			"decision_signer": p.DecisionSigner.String(),
			"pool_wallet":     p.PoolWallet.String(),
			"ops_wallet":      p.OpsWallet.String(),
			"buyback_wallet":  p.BuybackWallet.String(),
			"staking_wallet":  p.StakingWallet.String(),
			"pool_floor":      p.PoolFloor,
		}, e.clock.Now().UTC())
	})
}

// InitializeBounty creates one bounty ledger in the ACCRUING state with its
// pool at the configured floor. Authority only.
func (e *Engine) InitializeBounty(ctx context.Context, caller solana.PublicKey, bountyID, basePrice uint64) error {
	if basePrice == 0 || basePrice > maxLedgerAmount {
		return fmt.Errorf("%w: base price must be in (0, 2^63)", ErrInvalidInput)
	}

	return e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		cfg, err := e.configFor(ctx, tx, caller)
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		if err := tx.InsertBounty(ctx, store.Bounty{
			BountyID:       bountyID,
			BasePrice:      basePrice,
			CurrentPool:    cfg.PoolFloor,
			TotalEntries:   0,
			IsActive:       true,
			LastActivityAt: now,
		}); err != nil {
			if errors.Is(err, store.ErrBountyExists) {
				return ErrBountyExists
			}
			return err
		}

		e.log.Info("bounty initialized", "bounty_id", bountyID, "base_price", basePrice)

		return tx.AppendEvent(ctx, "bounty_initialized", &bountyID, map[string]any{
			"bounty_id":  bountyID,
			"base_price": basePrice,
			"pool_floor": cfg.PoolFloor,
		}, now)
	})
}

// EntryReceipt reports the committed effects of one paid entry.
type EntryReceipt struct {
	BountyID     uint64      `json:"bounty_id"`
	Payer        string      `json:"payer"`
	Amount       uint64      `json:"amount"`
	Split        price.Split `json:"split"`
	CurrentPool  uint64      `json:"current_pool"`
	TotalEntries uint64      `json:"total_entries"`
	NextPrice    uint64      `json:"next_price"`
}

// ProcessEntry validates and executes one paid entry: enforces the escalated
// price, performs the four-way split out of the payer's balance, advances
// the entry count and resets the escape timer.
func (e *Engine) ProcessEntry(ctx context.Context, payer solana.PublicKey, bountyID, amount uint64) (*EntryReceipt, error) {
	if payer.IsZero() {
		return nil, fmt.Errorf("%w: zero payer identity", ErrInvalidInput)
	}
	if amount > maxLedgerAmount {
		return nil, ErrArithmeticOverflow
	}

	var receipt *EntryReceipt
	err := e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		cfg, err := e.activeConfig(ctx, tx)
		if err != nil {
			return err
		}

		bounty, err := e.activeBountyForUpdate(ctx, tx, bountyID)
		if err != nil {
			return err
		}

		required := price.Required(bounty.BasePrice, bounty.TotalEntries)
		if amount < required {
			return &InsufficientPaymentError{Required: required, Got: amount}
		}

		split := price.SplitEntry(amount)

		// Overflow on any accumulator aborts before any transfer applies.
		if bounty.CurrentPool > maxLedgerAmount-split.Pool {
			return ErrArithmeticOverflow
		}
		tracker, err := tx.GetBuybackTrackerForUpdate(ctx)
		if err != nil {
			return err
		}
		if tracker.TotalAllocated > maxLedgerAmount-split.Buyback {
			return ErrArithmeticOverflow
		}

		if err := e.debit(ctx, tx, payer.String(), amount); err != nil {
			return err
		}
		for _, leg := range []struct {
			wallet string
			amount uint64
		}{
			{cfg.PoolWallet, split.Pool},
			{cfg.OpsWallet, split.Ops},
			{cfg.BuybackWallet, split.Buyback},
			{cfg.StakingWallet, split.Staking},
		} {
			if leg.amount == 0 {
				continue
			}
			if err := tx.CreditWallet(ctx, leg.wallet, leg.amount); err != nil {
				return err
			}
		}

		now := e.clock.Now().UTC()
		payerAddr := payer.String()
		bounty.CurrentPool += split.Pool
		bounty.TotalEntries++
		bounty.LastParticipant = &payerAddr
		bounty.LastActivityAt = now
		if err := tx.UpdateBounty(ctx, *bounty); err != nil {
			return err
		}

		tracker.TotalAllocated += split.Buyback
		if err := tx.UpdateBuybackTracker(ctx, *tracker); err != nil {
			return err
		}

		receipt = &EntryReceipt{
			BountyID:     bountyID,
			Payer:        payerAddr,
			Amount:       amount,
			Split:        split,
			CurrentPool:  bounty.CurrentPool,
			TotalEntries: bounty.TotalEntries,
			NextPrice:    price.Required(bounty.BasePrice, bounty.TotalEntries),
		}

		return tx.AppendEvent(ctx, "entry_processed", &bountyID, receipt, now)
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("entry processed",
		"bounty_id", bountyID,
		"payer", receipt.Payer,
		"amount", receipt.Amount,
		"current_pool", receipt.CurrentPool,
		"total_entries", receipt.TotalEntries)
	return receipt, nil
}

// EscapeResult is the auditable record of one escape fallback execution. The
// remainder is not distributed synchronously; the off-chain batch
// distributor consumes this record.
type EscapeResult struct {
	BountyID                 uint64 `json:"bounty_id"`
	LastParticipant          string `json:"last_participant"`
	LastShare                uint64 `json:"last_share"`
	Remainder                uint64 `json:"remainder"`
	TotalEntries             uint64 `json:"total_entries"`
	EqualSharePerParticipant uint64 `json:"equal_share_per_participant"`
}

// TriggerEscape executes the time fallback once the escape window has
// elapsed with no new entry: 20% of the pool goes to the last participant
// synchronously, the remainder is journaled for off-chain batch
// distribution, and the bounty resets to its floor. Callable by anyone.
func (e *Engine) TriggerEscape(ctx context.Context, bountyID uint64) (*EscapeResult, error) {
	var result *EscapeResult
	err := e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		cfg, err := e.activeConfig(ctx, tx)
		if err != nil {
			return err
		}

		bounty, err := e.activeBountyForUpdate(ctx, tx, bountyID)
		if err != nil {
			return err
		}

		if bounty.LastParticipant == nil || bounty.TotalEntries == 0 {
			return ErrNoParticipants
		}

		now := e.clock.Now().UTC()
		readyAt := bounty.LastActivityAt.Add(e.cfg.EscapeWindow)
		if now.Before(readyAt) {
			return &EscapeNotExpiredError{ReadyAt: readyAt}
		}

		pool := bounty.CurrentPool
		lastShare := price.PctOf(pool, LastShareRatePct)
		remainder := pool - lastShare

		if lastShare > 0 {
			if err := e.debit(ctx, tx, cfg.PoolWallet, lastShare); err != nil {
				return err
			}
			if err := tx.CreditWallet(ctx, *bounty.LastParticipant, lastShare); err != nil {
				return err
			}
		}

		result = &EscapeResult{
			BountyID:                 bountyID,
			LastParticipant:          *bounty.LastParticipant,
			LastShare:                lastShare,
			Remainder:                remainder,
			TotalEntries:             bounty.TotalEntries,
			EqualSharePerParticipant: remainder / bounty.TotalEntries,
		}

		bounty.CurrentPool = cfg.PoolFloor
		bounty.TotalEntries = 0
		bounty.LastParticipant = nil
		bounty.LastActivityAt = now
		if err := tx.UpdateBounty(ctx, *bounty); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, "escape_executed", &bountyID, result, now)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("escape fallback executed",
		"bounty_id", bountyID,
		"last_participant", result.LastParticipant,
		"last_share", result.LastShare,
		"remainder", result.Remainder)
	return result, nil
}

// DecisionParams authorizes a full-pool payout to a declared winner.
type DecisionParams struct {
	BountyID     uint64
	Winner       solana.PublicKey
	DecisionHash [32]byte
	Nonce        string
	Signature    solana.Signature
}

func (p *DecisionParams) validate() error {
	if p.Winner.IsZero() {
		return fmt.Errorf("%w: zero winner identity", ErrInvalidInput)
	}
	if p.Nonce == "" || len(p.Nonce) > maxNonceLength {
		return fmt.Errorf("%w: nonce must be 1..%d characters", ErrInvalidInput, maxNonceLength)
	}
	for _, c := range p.Nonce {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return fmt.Errorf("%w: nonce must be alphanumeric, '-' or '_'", ErrInvalidInput)
		}
	}
	return nil
}

// DecisionResult reports a committed winner payout.
type DecisionResult struct {
	BountyID uint64 `json:"bounty_id"`
	Winner   string `json:"winner"`
	Amount   uint64 `json:"amount"`
	Nonce    string `json:"nonce"`
}

// ProcessDecision pays the full pool to the declared winner, authorized only
// by a valid decision-signer signature over the canonical decision message
// and an unused nonce. The signature check and the nonce consumption happen
// before any transfer, inside the same atomic unit of work as the transfer.
func (e *Engine) ProcessDecision(ctx context.Context, p DecisionParams) (*DecisionResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var result *DecisionResult
	err := e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		cfg, err := e.activeConfig(ctx, tx)
		if err != nil {
			return err
		}

		signer, err := authority.ParsePublicKey(cfg.DecisionSigner)
		if err != nil {
			return fmt.Errorf("failed to parse configured decision signer: %w", err)
		}
		msg := authority.DecisionMessage(p.BountyID, p.Winner, p.DecisionHash, p.Nonce)
		if !authority.Verify(signer, msg, p.Signature) {
			return ErrInvalidSignature
		}

		// Creation failure of the nonce record is the replay check.
		now := e.clock.Now().UTC()
		hashHex := fmt.Sprintf("%x", p.DecisionHash)
		if err := tx.InsertDecisionNonce(ctx, p.Nonce, p.BountyID, hashHex, p.Winner.String(), now); err != nil {
			if errors.Is(err, store.ErrNonceExists) {
				return ErrNonceAlreadyUsed
			}
			return err
		}

		bounty, err := e.activeBountyForUpdate(ctx, tx, p.BountyID)
		if err != nil {
			return err
		}

		payout := bounty.CurrentPool
		if payout == 0 {
			return ErrInsufficientFunds
		}

		if err := e.debit(ctx, tx, cfg.PoolWallet, payout); err != nil {
			return err
		}
		if err := tx.CreditWallet(ctx, p.Winner.String(), payout); err != nil {
			return err
		}

		bounty.CurrentPool = cfg.PoolFloor
		bounty.TotalEntries = 0
		bounty.LastParticipant = nil
		bounty.LastActivityAt = now
		if err := tx.UpdateBounty(ctx, *bounty); err != nil {
			return err
		}

		result = &DecisionResult{
			BountyID: p.BountyID,
			Winner:   p.Winner.String(),
			Amount:   payout,
			Nonce:    p.Nonce,
		}
		return tx.AppendEvent(ctx, "winner_paid", &p.BountyID, map[string]any{
			"bounty_id":     p.BountyID,
			"winner":        result.Winner,
			"amount":        payout,
			"nonce":         p.Nonce,
			"decision_hash": hashHex,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("winner paid",
		"bounty_id", result.BountyID,
		"winner", result.Winner,
		"amount", result.Amount,
		"nonce", result.Nonce)
	return result, nil
}

// RecordBuybackExecution advances the executed counter after an external
// executor has performed the swap/burn. Authority only; the executed total
// can never exceed the allocated total.
func (e *Engine) RecordBuybackExecution(ctx context.Context, caller solana.PublicKey, amount uint64) (*store.BuybackTracker, error) {
	if amount == 0 || amount > maxLedgerAmount {
		return nil, fmt.Errorf("%w: amount must be in (0, 2^63)", ErrInvalidInput)
	}

	var tracker *store.BuybackTracker
	err := e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := e.configFor(ctx, tx, caller); err != nil {
			return err
		}

		t, err := tx.GetBuybackTrackerForUpdate(ctx)
		if err != nil {
			return err
		}
		if amount > t.TotalAllocated-t.TotalExecuted {
			return fmt.Errorf("%w: owed %d, claimed %d", ErrOverExecution, t.TotalAllocated-t.TotalExecuted, amount)
		}

		t.TotalExecuted += amount
		if err := tx.UpdateBuybackTracker(ctx, *t); err != nil {
			return err
		}
		tracker = t

		return tx.AppendEvent(ctx, "buyback_executed", nil, map[string]any{
			"amount":          amount,
			"total_allocated": t.TotalAllocated,
			"total_executed":  t.TotalExecuted,
		}, e.clock.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("buyback execution recorded", "amount", amount,
		"total_allocated", tracker.TotalAllocated, "total_executed", tracker.TotalExecuted)
	return tracker, nil
}

// EmergencyRecover moves funds from a bounty pool back to the authority
// wallet, rate-limited to one recovery per cooldown period and a tenth of
// the pool per call. Authority only.
func (e *Engine) EmergencyRecover(ctx context.Context, caller solana.PublicKey, bountyID, amount uint64) error {
	if amount == 0 || amount > maxLedgerAmount {
		return fmt.Errorf("%w: amount must be in (0, 2^63)", ErrInvalidInput)
	}

	return e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		cfg, err := e.configFor(ctx, tx, caller)
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		if cfg.LastRecoveryAt != nil && now.Sub(*cfg.LastRecoveryAt) < recoveryCooldown {
			return ErrRecoveryCooldown
		}

		bounty, err := tx.GetBountyForUpdate(ctx, bountyID)
		if err != nil {
			if errors.Is(err, store.ErrBountyNotFound) {
				return ErrBountyNotFound
			}
			return err
		}

		if amount > bounty.CurrentPool {
			return ErrInsufficientFunds
		}
		if limit := price.PctOf(bounty.CurrentPool, maxRecoveryPct); amount > limit {
			return fmt.Errorf("%w: max %d", ErrRecoveryLimit, limit)
		}

		if err := e.debit(ctx, tx, cfg.PoolWallet, amount); err != nil {
			return err
		}
		if err := tx.CreditWallet(ctx, cfg.Authority, amount); err != nil {
			return err
		}

		bounty.CurrentPool -= amount
		if err := tx.UpdateBounty(ctx, *bounty); err != nil {
			return err
		}
		if err := tx.SetLastRecoveryAt(ctx, now); err != nil {
			return err
		}

		e.log.Warn("emergency recovery executed", "bounty_id", bountyID, "amount", amount,
			"remaining_pool", bounty.CurrentPool)

		return tx.AppendEvent(ctx, "emergency_recovery", &bountyID, map[string]any{
			"bounty_id":      bountyID,
			"amount":         amount,
			"remaining_pool": bounty.CurrentPool,
		}, now)
	})
}

// SetDecisionSigner rotates the key the decision verifier trusts. Authority
// only.
func (e *Engine) SetDecisionSigner(ctx context.Context, caller, newSigner solana.PublicKey) error {
	if newSigner.IsZero() {
		return fmt.Errorf("%w: zero signer identity", ErrInvalidInput)
	}

	return e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := e.configFor(ctx, tx, caller); err != nil {
			return err
		}
		if err := tx.UpdateDecisionSigner(ctx, newSigner.String()); err != nil {
			return err
		}

		e.log.Info("decision signer rotated", "decision_signer", newSigner.String())

		return tx.AppendEvent(ctx, "decision_signer_rotated", nil, map[string]any{
			"decision_signer": newSigner.String(),
		}, e.clock.Now().UTC())
	})
}

// DeactivateBounty stops a bounty from accepting entries or draining.
// Authority only.
func (e *Engine) DeactivateBounty(ctx context.Context, caller solana.PublicKey, bountyID uint64) error {
	return e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := e.configFor(ctx, tx, caller); err != nil {
			return err
		}

		bounty, err := tx.GetBountyForUpdate(ctx, bountyID)
		if err != nil {
			if errors.Is(err, store.ErrBountyNotFound) {
				return ErrBountyNotFound
			}
			return err
		}
		bounty.IsActive = false
		if err := tx.UpdateBounty(ctx, *bounty); err != nil {
			return err
		}

		return tx.AppendEvent(ctx, "bounty_deactivated", &bountyID, map[string]any{
			"bounty_id": bountyID,
		}, e.clock.Now().UTC())
	})
}

// --- Read paths (the indexer/mirror boundary; never authoritative writes) ---

func (e *Engine) GetBounty(ctx context.Context, bountyID uint64) (*store.Bounty, error) {
	b, err := e.store.Read().GetBounty(ctx, bountyID)
	if err != nil {
		if errors.Is(err, store.ErrBountyNotFound) {
			return nil, ErrBountyNotFound
		}
		return nil, err
	}
	return b, nil
}

func (e *Engine) GetConfig(ctx context.Context) (*store.GlobalConfig, error) {
	cfg, err := e.store.Read().GetConfig(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	return cfg, nil
}

// RequiredPrice returns the current minimum entry amount for a bounty.
func (e *Engine) RequiredPrice(ctx context.Context, bountyID uint64) (uint64, error) {
	b, err := e.GetBounty(ctx, bountyID)
	if err != nil {
		return 0, err
	}
	return price.Required(b.BasePrice, b.TotalEntries), nil
}

// BuybackStatus returns the tracker and the amount still owed to the
// executor boundary.
func (e *Engine) BuybackStatus(ctx context.Context) (*store.BuybackTracker, uint64, error) {
	t, err := e.store.Read().GetBuybackTracker(ctx)
	if err != nil {
		return nil, 0, err
	}
	return t, t.TotalAllocated - t.TotalExecuted, nil
}

func (e *Engine) ListEvents(ctx context.Context, filter store.EventFilter) ([]store.Event, error) {
	return e.store.Read().ListEvents(ctx, filter)
}

// --- helpers ---

// activeConfig loads the config and requires the protocol to be active.
func (e *Engine) activeConfig(ctx context.Context, tx *store.Tx) (*store.GlobalConfig, error) {
	cfg, err := tx.GetConfig(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotInitialized) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}
	if !cfg.IsActive {
		return nil, ErrProtocolInactive
	}
	return cfg, nil
}

// configFor loads the config and requires caller to be the authority.
func (e *Engine) configFor(ctx context.Context, tx *store.Tx, caller solana.PublicKey) (*store.GlobalConfig, error) {
	cfg, err := e.activeConfig(ctx, tx)
	if err != nil {
		return nil, err
	}
	if caller.String() != cfg.Authority {
		return nil, ErrUnauthorized
	}
	return cfg, nil
}

// activeBountyForUpdate locks a bounty row and requires it active.
func (e *Engine) activeBountyForUpdate(ctx context.Context, tx *store.Tx, bountyID uint64) (*store.Bounty, error) {
	bounty, err := tx.GetBountyForUpdate(ctx, bountyID)
	if err != nil {
		if errors.Is(err, store.ErrBountyNotFound) {
			return nil, ErrBountyNotFound
		}
		return nil, err
	}
	if !bounty.IsActive {
		return nil, ErrBountyInactive
	}
	return bounty, nil
}

// debit maps the store's wallet errors into the protocol taxonomy.
func (e *Engine) debit(ctx context.Context, tx *store.Tx, wallet string, amount uint64) error {
	if err := tx.DebitWallet(ctx, wallet, amount); err != nil {
		switch {
		case errors.Is(err, store.ErrWalletNotFound):
			return fmt.Errorf("%w: %s", ErrWalletNotFound, wallet)
		case errors.Is(err, store.ErrInsufficientFunds):
			return fmt.Errorf("%w: wallet %s", ErrInsufficientFunds, wallet)
		default:
			return err
		}
	}
	return nil
}

// CreditWallet funds a wallet outside protocol accounting. It exists for the
// fiat on-ramp boundary and for tests; production deployments gate it behind
// the authority.
func (e *Engine) CreditWallet(ctx context.Context, caller, wallet solana.PublicKey, amount uint64) error {
	if amount == 0 || amount > maxLedgerAmount {
		return fmt.Errorf("%w: amount must be in (0, 2^63)", ErrInvalidInput)
	}
	return e.store.InTx(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := e.configFor(ctx, tx, caller); err != nil {
			return err
		}
		if err := tx.CreditWallet(ctx, wallet.String(), amount); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, "wallet_funded", nil, map[string]any{
			"wallet": wallet.String(),
			"amount": amount,
		}, e.clock.Now().UTC())
	})
}

// GetWalletBalance returns a wallet's current ledger balance.
func (e *Engine) GetWalletBalance(ctx context.Context, wallet solana.PublicKey) (uint64, error) {
	balance, err := e.store.Read().GetWalletBalance(ctx, wallet.String())
	if err != nil {
		if errors.Is(err, store.ErrWalletNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrWalletNotFound, wallet.String())
		}
		return 0, err
	}
	return balance, nil
}
