package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	"github.com/moneymayx/billions-bounty/protocol/pkg/metrics"
)

// ErrorResponse is the JSON body for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// Set for insufficient_payment so the payer can correct and resubmit.
	RequiredAmount uint64 `json:"required_amount,omitempty"`

	// Set for escape_not_ready.
	ReadyAt string `json:"ready_at,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var ipe *engine.InsufficientPaymentError
	if errors.As(err, &ipe) {
		s.writeJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error:          "insufficient_payment",
			Message:        err.Error(),
			RequiredAmount: ipe.Required,
		})
		return
	}
	var ene *engine.EscapeNotExpiredError
	if errors.As(err, &ene) {
		s.writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "escape_not_ready",
			Message: err.Error(),
			ReadyAt: ene.ReadyAt.UTC().Format(time.RFC3339),
		})
		return
	}

	var status int
	var code string
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, engine.ErrArithmeticOverflow):
		status, code = http.StatusBadRequest, "amount_out_of_range"
	case errors.Is(err, engine.ErrInvalidSignature):
		status, code = http.StatusUnauthorized, "invalid_signature"
		metrics.RecordDecisionRejection("invalid_signature")
	case errors.Is(err, engine.ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	case errors.Is(err, engine.ErrInsufficientFunds):
		status, code = http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, engine.ErrBountyNotFound), errors.Is(err, engine.ErrWalletNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrBountyExists):
		status, code = http.StatusConflict, "bounty_exists"
	case errors.Is(err, engine.ErrAlreadyInitialized):
		status, code = http.StatusConflict, "already_initialized"
	case errors.Is(err, engine.ErrNonceAlreadyUsed):
		status, code = http.StatusConflict, "nonce_already_used"
		metrics.RecordDecisionRejection("nonce_replayed")
	case errors.Is(err, engine.ErrNoParticipants):
		status, code = http.StatusConflict, "no_participants"
	case errors.Is(err, engine.ErrOverExecution):
		status, code = http.StatusConflict, "over_execution"
	case errors.Is(err, engine.ErrRecoveryCooldown):
		status, code = http.StatusConflict, "recovery_cooldown"
	case errors.Is(err, engine.ErrRecoveryLimit):
		status, code = http.StatusConflict, "recovery_limit"
	case errors.Is(err, engine.ErrProtocolInactive), errors.Is(err, engine.ErrBountyInactive):
		status, code = http.StatusConflict, "inactive"
	case errors.Is(err, engine.ErrNotInitialized):
		status, code = http.StatusServiceUnavailable, "not_initialized"
	default:
		s.log.Error("request failed", "error", err)
		s.writeErrorCode(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	s.writeErrorCode(w, status, code, err.Error())
}
