package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	"github.com/moneymayx/billions-bounty/protocol/pkg/metrics"
	"github.com/moneymayx/billions-bounty/protocol/pkg/store"
)

func (s *Server) bountyIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "bountyID"), 10, 64)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "bounty id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_body", "failed to decode request body")
		return false
	}
	return true
}

// GET /api/v1/config
func (s *Server) getConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.GetConfig(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

// GET /api/v1/bounties/{bountyID}
func (s *Server) getBountyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}
	bounty, err := s.engine.GetBounty(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bounty)
}

// GET /api/v1/bounties/{bountyID}/price
func (s *Server) getPriceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}
	required, err := s.engine.RequiredPrice(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"bounty_id":      id,
		"required_price": required,
	})
}

// GET /api/v1/buyback
func (s *Server) getBuybackHandler(w http.ResponseWriter, r *http.Request) {
	tracker, owed, err := s.engine.BuybackStatus(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.RecordBuybackState(tracker.TotalAllocated, tracker.TotalExecuted)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_allocated": tracker.TotalAllocated,
		"total_executed":  tracker.TotalExecuted,
		"owed":            owed,
	})
}

// GET /api/v1/wallets/{address}
func (s *Server) getWalletHandler(w http.ResponseWriter, r *http.Request) {
	key, err := authority.ParsePublicKey(chi.URLParam(r, "address"))
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "address is not a valid public key")
		return
	}
	balance, err := s.engine.GetWalletBalance(r.Context(), key)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"address": key.String(),
		"balance": balance,
	})
}

// GET /api/v1/events?kind=&bounty_id=&after=&limit=
func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	var filter store.EventFilter
	q := r.URL.Query()
	if kind := q.Get("kind"); kind != "" {
		filter.Kind = kind
	}
	if raw := q.Get("bounty_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "bounty_id must be an unsigned integer")
			return
		}
		filter.BountyID = &id
	}
	if raw := q.Get("after"); raw != "" {
		after, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "after must be RFC3339")
			return
		}
		filter.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	events, err := s.engine.ListEvents(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// POST /api/v1/initialize
func (s *Server) initializeHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}

	var req struct {
		DecisionSigner string `json:"decision_signer"`
		PoolWallet     string `json:"pool_wallet"`
		OpsWallet      string `json:"ops_wallet"`
		BuybackWallet  string `json:"buyback_wallet"`
		StakingWallet  string `json:"staking_wallet"`
		PoolFloor      uint64 `json:"pool_floor"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	params := engine.InitializeParams{
		Authority: signer,
		PoolFloor: req.PoolFloor,
	}
	for _, field := range []struct {
		name string
		raw  string
		dst  *solana.PublicKey
	}{
		{"decision_signer", req.DecisionSigner, &params.DecisionSigner},
		{"pool_wallet", req.PoolWallet, &params.PoolWallet},
		{"ops_wallet", req.OpsWallet, &params.OpsWallet},
		{"buyback_wallet", req.BuybackWallet, &params.BuybackWallet},
		{"staking_wallet", req.StakingWallet, &params.StakingWallet},
	} {
		key, err := authority.ParsePublicKey(field.raw)
		if err != nil {
			s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", field.name+" is not a valid public key")
			return
		}
		*field.dst = key
	}

	if err := s.engine.Initialize(r.Context(), params); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"authority": signer.String()})
}

// POST /api/v1/bounties
func (s *Server) createBountyHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}

	var req struct {
		BountyID  uint64 `json:"bounty_id"`
		BasePrice uint64 `json:"base_price"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.engine.InitializeBounty(r.Context(), signer, req.BountyID, req.BasePrice); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"bounty_id": req.BountyID})
}

// POST /api/v1/bounties/{bountyID}/entries
func (s *Server) entryHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	receipt, err := s.engine.ProcessEntry(r.Context(), signer, id, req.Amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.RecordEntry(id, receipt.Amount, receipt.CurrentPool)
	s.writeJSON(w, http.StatusOK, receipt)
}

// POST /api/v1/bounties/{bountyID}/escape
func (s *Server) escapeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}

	result, err := s.engine.TriggerEscape(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if b, err := s.engine.GetBounty(r.Context(), id); err == nil {
		metrics.RecordEscape(id, b.CurrentPool)
	}
	s.writeJSON(w, http.StatusOK, result)
}

// POST /api/v1/bounties/{bountyID}/decision
func (s *Server) decisionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Winner       string `json:"winner"`
		DecisionHash string `json:"decision_hash"` // hex, 32 bytes
		Nonce        string `json:"nonce"`
		Signature    string `json:"signature"` // base58
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	winner, err := authority.ParsePublicKey(req.Winner)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "winner is not a valid public key")
		return
	}
	sig, err := authority.ParseSignature(req.Signature)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "signature is not a valid Ed25519 signature")
		return
	}
	hashBytes, err := hex.DecodeString(req.DecisionHash)
	if err != nil || len(hashBytes) != 32 {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "decision_hash must be 32 bytes of hex")
		return
	}
	var hash [32]byte
	copy(hash[:], hashBytes)

	result, err := s.engine.ProcessDecision(r.Context(), engine.DecisionParams{
		BountyID:     id,
		Winner:       winner,
		DecisionHash: hash,
		Nonce:        req.Nonce,
		Signature:    sig,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if b, err := s.engine.GetBounty(r.Context(), id); err == nil {
		metrics.RecordWinnerPayout(id, b.CurrentPool)
	}
	s.writeJSON(w, http.StatusOK, result)
}

// POST /api/v1/bounties/{bountyID}/deactivate
func (s *Server) deactivateHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeactivateBounty(r.Context(), signer, id); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bounty_id": id, "is_active": false})
}

// POST /api/v1/bounties/{bountyID}/recover
func (s *Server) recoverHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}
	id, ok := s.bountyIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.engine.EmergencyRecover(r.Context(), signer, id, req.Amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bounty_id": id, "amount": req.Amount})
}

// POST /api/v1/buyback/executions
func (s *Server) recordBuybackHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	tracker, err := s.engine.RecordBuybackExecution(r.Context(), signer, req.Amount)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.RecordBuybackState(tracker.TotalAllocated, tracker.TotalExecuted)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_allocated": tracker.TotalAllocated,
		"total_executed":  tracker.TotalExecuted,
	})
}

// POST /api/v1/config/decision-signer
func (s *Server) setDecisionSignerHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}

	var req struct {
		DecisionSigner string `json:"decision_signer"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	newSigner, err := authority.ParsePublicKey(req.DecisionSigner)
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "decision_signer is not a valid public key")
		return
	}

	if err := s.engine.SetDecisionSigner(r.Context(), signer, newSigner); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decision_signer": newSigner.String()})
}

// POST /api/v1/wallets/{address}/credit
func (s *Server) creditWalletHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := signerFrom(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "signed request required")
		return
	}

	wallet, err := authority.ParsePublicKey(chi.URLParam(r, "address"))
	if err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_input", "address is not a valid public key")
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.engine.CreditWallet(r.Context(), signer, wallet, req.Amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"address": wallet.String(), "amount": req.Amount})
}
