package engine

import (
	"errors"
	"fmt"
	"time"
)

// Protocol error taxonomy. Every error aborts the whole call with no partial
// state change; nothing here is retried internally.
var (
	ErrProtocolInactive    = errors.New("protocol is not active")
	ErrBountyInactive      = errors.New("bounty is not active")
	ErrBountyNotFound      = errors.New("bounty not found")
	ErrBountyExists        = errors.New("bounty already exists")
	ErrInsufficientPayment = errors.New("insufficient payment amount")
	ErrArithmeticOverflow  = errors.New("amount exceeds ledger bounds")
	ErrEscapeNotYetExpired = errors.New("escape window has not expired")
	ErrNoParticipants      = errors.New("no participants this cycle")
	ErrInvalidSignature    = errors.New("invalid decision signature")
	ErrNonceAlreadyUsed    = errors.New("decision nonce already used")
	ErrOverExecution       = errors.New("execution exceeds allocated buyback")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyInitialized  = errors.New("protocol already initialized")
	ErrNotInitialized      = errors.New("protocol not initialized")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrRecoveryCooldown    = errors.New("recovery cooldown active")
	ErrRecoveryLimit       = errors.New("recovery amount exceeds limit")
	ErrInvalidInput        = errors.New("invalid input")
)

// InsufficientPaymentError carries the currently required price so the payer
// can correct and resubmit.
type InsufficientPaymentError struct {
	Required uint64
	Got      uint64
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: got %d, required %d", e.Got, e.Required)
}

func (e *InsufficientPaymentError) Is(target error) bool {
	return target == ErrInsufficientPayment
}

// EscapeNotExpiredError carries the time at which the escape becomes
// triggerable.
type EscapeNotExpiredError struct {
	ReadyAt time.Time
}

func (e *EscapeNotExpiredError) Error() string {
	return fmt.Sprintf("escape window has not expired: ready at %s", e.ReadyAt.UTC().Format(time.RFC3339))
}

func (e *EscapeNotExpiredError) Is(target error) bool {
	return target == ErrEscapeNotYetExpired
}
