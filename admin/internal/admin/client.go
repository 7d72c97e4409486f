package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
)

// Client talks to the protocol daemon, signing every state-changing request
// with the operator key.
type Client struct {
	log     *slog.Logger
	baseURL string
	key     solana.PrivateKey
	httpCli *http.Client
}

func NewClient(log *slog.Logger, baseURL string, key solana.PrivateKey) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		key:     key,
		httpCli: &http.Client{Timeout: 30 * time.Second},
	}
}

// post signs and sends a request, decoding the JSON response into out when
// out is non-nil.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	sig, err := authority.Sign(c.key, authority.RequestMessage(http.MethodPost, path, raw))
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signer", c.key.PublicKey().String())
	req.Header.Set("X-Signature", sig.String())

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", http.MethodPost, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// InitializeParams mirrors the daemon's bootstrap request.
type InitializeParams struct {
	DecisionSigner string `json:"decision_signer"`
	PoolWallet     string `json:"pool_wallet"`
	OpsWallet      string `json:"ops_wallet"`
	BuybackWallet  string `json:"buyback_wallet"`
	StakingWallet  string `json:"staking_wallet"`
	PoolFloor      uint64 `json:"pool_floor"`
}

// Initialize bootstraps the protocol with the client's key as authority.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) error {
	if err := c.post(ctx, "/api/v1/initialize", params, nil); err != nil {
		return err
	}
	c.log.Info("protocol initialized", "authority", c.key.PublicKey().String())
	return nil
}

// CreateBounty creates one bounty ledger.
func (c *Client) CreateBounty(ctx context.Context, bountyID, basePrice uint64) error {
	err := c.post(ctx, "/api/v1/bounties", map[string]any{
		"bounty_id":  bountyID,
		"base_price": basePrice,
	}, nil)
	if err != nil {
		return err
	}
	c.log.Info("bounty created", "bounty_id", bountyID, "base_price", basePrice)
	return nil
}

// SetDecisionSigner rotates the decision signer key.
func (c *Client) SetDecisionSigner(ctx context.Context, signer string) error {
	err := c.post(ctx, "/api/v1/config/decision-signer", map[string]any{
		"decision_signer": signer,
	}, nil)
	if err != nil {
		return err
	}
	c.log.Info("decision signer rotated", "decision_signer", signer)
	return nil
}

// CreditWallet funds a wallet through the authority-gated path.
func (c *Client) CreditWallet(ctx context.Context, wallet string, amount uint64) error {
	err := c.post(ctx, fmt.Sprintf("/api/v1/wallets/%s/credit", wallet), map[string]any{
		"amount": amount,
	}, nil)
	if err != nil {
		return err
	}
	c.log.Info("wallet credited", "wallet", wallet, "amount", amount)
	return nil
}
