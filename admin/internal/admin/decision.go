package admin

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
)

// DecisionParams describes one winner decision to be signed offline by the
// decision signer key.
type DecisionParams struct {
	BountyID uint64
	Winner   string
	Nonce    string

	// Inputs to the decision hash.
	UserMessage string
	AIResponse  string
	IsWinning   bool
	UserID      uint64
	SessionID   string
	Timestamp   int64
}

// SignedDecision is the payload the daemon's decision endpoint accepts.
type SignedDecision struct {
	Winner       string `json:"winner"`
	DecisionHash string `json:"decision_hash"`
	Nonce        string `json:"nonce"`
	Signature    string `json:"signature"`
}

// SignDecision computes the decision hash, signs the canonical decision
// message with the decision signer key and prints the payload for
// submission.
func SignDecision(log *slog.Logger, key solana.PrivateKey, p DecisionParams) (*SignedDecision, error) {
	winner, err := authority.ParsePublicKey(p.Winner)
	if err != nil {
		return nil, fmt.Errorf("failed to parse winner: %w", err)
	}

	hash := authority.ComputeDecisionHash(p.UserMessage, p.AIResponse, p.IsWinning, p.UserID, p.SessionID, p.Timestamp)
	sig, err := authority.Sign(key, authority.DecisionMessage(p.BountyID, winner, hash, p.Nonce))
	if err != nil {
		return nil, fmt.Errorf("failed to sign decision: %w", err)
	}

	signed := &SignedDecision{
		Winner:       winner.String(),
		DecisionHash: hex.EncodeToString(hash[:]),
		Nonce:        p.Nonce,
		Signature:    sig.String(),
	}

	log.Info("decision signed",
		"bounty_id", p.BountyID,
		"winner", signed.Winner,
		"nonce", signed.Nonce)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(signed); err != nil {
		return nil, fmt.Errorf("failed to print signed decision: %w", err)
	}
	return signed, nil
}
