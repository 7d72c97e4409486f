package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GlobalConfig is the protocol singleton: the authority identity, the
// decision signer key and the four destination wallets. Wallet identities are
// base58-encoded Ed25519 public keys.
type GlobalConfig struct {
	Authority      string     `json:"authority"`
	DecisionSigner string     `json:"decision_signer"`
	PoolWallet     string     `json:"pool_wallet"`
	OpsWallet      string     `json:"ops_wallet"`
	BuybackWallet  string     `json:"buyback_wallet"`
	StakingWallet  string     `json:"staking_wallet"`
	PoolFloor      uint64     `json:"pool_floor"`
	IsActive       bool       `json:"is_active"`
	LastRecoveryAt *time.Time `json:"last_recovery_at,omitempty"`
}

// Bounty is the per-bounty ledger row.
type Bounty struct {
	BountyID        uint64    `json:"bounty_id"`
	BasePrice       uint64    `json:"base_price"`
	CurrentPool     uint64    `json:"current_pool"`
	TotalEntries    uint64    `json:"total_entries"`
	IsActive        bool      `json:"is_active"`
	LastParticipant *string   `json:"last_participant,omitempty"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// BuybackTracker records the cumulative buyback allocation vs. what an
// executor has confirmed swapped.
type BuybackTracker struct {
	TotalAllocated uint64 `json:"total_allocated"`
	TotalExecuted  uint64 `json:"total_executed"`
}

// Event is one row of the append-only audit journal.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	BountyID  *uint64         `json:"bounty_id,omitempty"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// --- Global config ---

func (t *Tx) InsertConfig(ctx context.Context, cfg GlobalConfig) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO global_config (id, authority, decision_signer, pool_wallet, ops_wallet, buyback_wallet, staking_wallet, pool_floor, is_active)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)`,
		cfg.Authority, cfg.DecisionSigner, cfg.PoolWallet, cfg.OpsWallet, cfg.BuybackWallet, cfg.StakingWallet, int64(cfg.PoolFloor), cfg.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyInitialized
		}
		return fmt.Errorf("failed to insert global config: %w", err)
	}
	return nil
}

func (t *Tx) GetConfig(ctx context.Context) (*GlobalConfig, error) {
	var cfg GlobalConfig
	var floor int64
	err := t.q.QueryRow(ctx, `
		SELECT authority, decision_signer, pool_wallet, ops_wallet, buyback_wallet, staking_wallet, pool_floor, is_active, last_recovery_at
		FROM global_config WHERE id = 1`).
		Scan(&cfg.Authority, &cfg.DecisionSigner, &cfg.PoolWallet, &cfg.OpsWallet, &cfg.BuybackWallet, &cfg.StakingWallet, &floor, &cfg.IsActive, &cfg.LastRecoveryAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotInitialized
		}
		return nil, fmt.Errorf("failed to get global config: %w", err)
	}
	cfg.PoolFloor = uint64(floor)
	return &cfg, nil
}

func (t *Tx) UpdateDecisionSigner(ctx context.Context, signer string) error {
	tag, err := t.q.Exec(ctx, `UPDATE global_config SET decision_signer = $1 WHERE id = 1`, signer)
	if err != nil {
		return fmt.Errorf("failed to update decision signer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotInitialized
	}
	return nil
}

func (t *Tx) SetLastRecoveryAt(ctx context.Context, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE global_config SET last_recovery_at = $1 WHERE id = 1`, at)
	if err != nil {
		return fmt.Errorf("failed to update last recovery time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotInitialized
	}
	return nil
}

// --- Bounties ---

func (t *Tx) InsertBounty(ctx context.Context, b Bounty) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bounties (bounty_id, base_price, current_pool, total_entries, is_active, last_participant, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(b.BountyID), int64(b.BasePrice), int64(b.CurrentPool), int64(b.TotalEntries), b.IsActive, b.LastParticipant, b.LastActivityAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrBountyExists
		}
		return fmt.Errorf("failed to insert bounty: %w", err)
	}
	return nil
}

// GetBountyForUpdate loads a bounty under a row lock; conflicting protocol
// calls on the same bounty serialize here.
func (t *Tx) GetBountyForUpdate(ctx context.Context, bountyID uint64) (*Bounty, error) {
	return t.getBounty(ctx, bountyID, true)
}

func (t *Tx) GetBounty(ctx context.Context, bountyID uint64) (*Bounty, error) {
	return t.getBounty(ctx, bountyID, false)
}

func (t *Tx) getBounty(ctx context.Context, bountyID uint64, forUpdate bool) (*Bounty, error) {
	query := `
		SELECT bounty_id, base_price, current_pool, total_entries, is_active, last_participant, last_activity_at
		FROM bounties WHERE bounty_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var b Bounty
	var id, base, pool, entries int64
	err := t.q.QueryRow(ctx, query, int64(bountyID)).
		Scan(&id, &base, &pool, &entries, &b.IsActive, &b.LastParticipant, &b.LastActivityAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBountyNotFound
		}
		return nil, fmt.Errorf("failed to get bounty: %w", err)
	}
	b.BountyID = uint64(id)
	b.BasePrice = uint64(base)
	b.CurrentPool = uint64(pool)
	b.TotalEntries = uint64(entries)
	return &b, nil
}

func (t *Tx) UpdateBounty(ctx context.Context, b Bounty) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE bounties
		SET current_pool = $2, total_entries = $3, is_active = $4, last_participant = $5, last_activity_at = $6
		WHERE bounty_id = $1`,
		int64(b.BountyID), int64(b.CurrentPool), int64(b.TotalEntries), b.IsActive, b.LastParticipant, b.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to update bounty: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBountyNotFound
	}
	return nil
}

// --- Wallets (value ledger) ---

// EnsureWallet creates a wallet row with zero balance if absent.
func (t *Tx) EnsureWallet(ctx context.Context, address string) error {
	_, err := t.q.Exec(ctx, `INSERT INTO wallets (address, balance) VALUES ($1, 0) ON CONFLICT (address) DO NOTHING`, address)
	if err != nil {
		return fmt.Errorf("failed to ensure wallet: %w", err)
	}
	return nil
}

func (t *Tx) GetWalletBalance(ctx context.Context, address string) (uint64, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `SELECT balance FROM wallets WHERE address = $1`, address).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return uint64(balance), nil
}

// CreditWallet adds amount to a wallet, creating the row if needed.
func (t *Tx) CreditWallet(ctx context.Context, address string, amount uint64) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO wallets (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		address, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to credit wallet %s: %w", address, err)
	}
	return nil
}

// DebitWallet subtracts amount from a wallet, failing if the wallet does not
// exist or holds less than amount.
func (t *Tx) DebitWallet(ctx context.Context, address string, amount uint64) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE wallets SET balance = balance - $2 WHERE address = $1 AND balance >= $2`,
		address, int64(amount))
	if err != nil {
		return fmt.Errorf("failed to debit wallet %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := t.GetWalletBalance(ctx, address); errors.Is(err, ErrWalletNotFound) {
			return ErrWalletNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// --- Buyback tracker ---

// GetBuybackTrackerForUpdate loads the tracker under a row lock, creating
// the singleton row lazily on first use.
func (t *Tx) GetBuybackTrackerForUpdate(ctx context.Context) (*BuybackTracker, error) {
	_, err := t.q.Exec(ctx, `INSERT INTO buyback_tracker (id) VALUES (1) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure buyback tracker: %w", err)
	}
	var allocated, executed int64
	err = t.q.QueryRow(ctx, `SELECT total_allocated, total_executed FROM buyback_tracker WHERE id = 1 FOR UPDATE`).
		Scan(&allocated, &executed)
	if err != nil {
		return nil, fmt.Errorf("failed to get buyback tracker: %w", err)
	}
	return &BuybackTracker{TotalAllocated: uint64(allocated), TotalExecuted: uint64(executed)}, nil
}

// GetBuybackTracker is the lock-free read used by the executor boundary and
// the read API. Absent row reads as all-zero.
func (t *Tx) GetBuybackTracker(ctx context.Context) (*BuybackTracker, error) {
	var allocated, executed int64
	err := t.q.QueryRow(ctx, `SELECT total_allocated, total_executed FROM buyback_tracker WHERE id = 1`).
		Scan(&allocated, &executed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &BuybackTracker{}, nil
		}
		return nil, fmt.Errorf("failed to get buyback tracker: %w", err)
	}
	return &BuybackTracker{TotalAllocated: uint64(allocated), TotalExecuted: uint64(executed)}, nil
}

func (t *Tx) UpdateBuybackTracker(ctx context.Context, tracker BuybackTracker) error {
	_, err := t.q.Exec(ctx, `UPDATE buyback_tracker SET total_allocated = $1, total_executed = $2 WHERE id = 1`,
		int64(tracker.TotalAllocated), int64(tracker.TotalExecuted))
	if err != nil {
		return fmt.Errorf("failed to update buyback tracker: %w", err)
	}
	return nil
}

// --- Decision nonces ---

// InsertDecisionNonce consumes a nonce. A unique violation means the nonce
// was already consumed; that creation failure is the replay check.
func (t *Tx) InsertDecisionNonce(ctx context.Context, nonce string, bountyID uint64, decisionHash, winner string, at time.Time) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO decision_nonces (nonce, bounty_id, decision_hash, winner, consumed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		nonce, int64(bountyID), decisionHash, winner, at)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNonceExists
		}
		return fmt.Errorf("failed to insert decision nonce: %w", err)
	}
	return nil
}

// --- Event journal ---

// AppendEvent journals one protocol event in the same transaction as the
// state change it describes.
func (t *Tx) AppendEvent(ctx context.Context, kind string, bountyID *uint64, payload any, at time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	var id *int64
	if bountyID != nil {
		v := int64(*bountyID)
		id = &v
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO protocol_events (id, bounty_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), id, kind, raw, at)
	if err != nil {
		return fmt.Errorf("failed to append protocol event: %w", err)
	}
	return nil
}

// EventFilter narrows ListEvents. Zero values mean no constraint.
type EventFilter struct {
	BountyID *uint64
	Kind     string
	After    time.Time
	Limit    int
}

func (t *Tx) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	query := `SELECT id, bounty_id, kind, payload, created_at FROM protocol_events WHERE TRUE`
	args := []any{}
	if filter.BountyID != nil {
		args = append(args, int64(*filter.BountyID))
		query += fmt.Sprintf(` AND bounty_id = $%d`, len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if !filter.After.IsZero() {
		args = append(args, filter.After)
		query += fmt.Sprintf(` AND created_at > $%d`, len(args))
	}
	query += ` ORDER BY created_at ASC`
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocol events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var id *int64
		if err := rows.Scan(&e.ID, &id, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan protocol event: %w", err)
		}
		if id != nil {
			v := uint64(*id)
			e.BountyID = &v
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate protocol events: %w", err)
	}
	return events, nil
}
