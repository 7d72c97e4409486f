// Package authority implements the cryptographic boundary of the protocol:
// canonical decision messages and their Ed25519 verification, the sha256
// decision hash shared with the off-chain decision signer, and the derived
// vault address the protocol controls without holding a private key.
package authority

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Domain tags keep decision and request signatures from being replayed for
// one another.
const (
	decisionDomainTag = "billions-bounty:decision:v1"
	requestDomainTag  = "billions-bounty:request:v1"
)

// DecisionMessage is the canonical byte string the decision signer signs. It
// binds the bounty, the declared winner, the decision hash and the one-time
// nonce together so no component can be swapped under an existing signature.
func DecisionMessage(bountyID uint64, winner solana.PublicKey, decisionHash [32]byte, nonce string) []byte {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], bountyID)

	msg := make([]byte, 0, len(decisionDomainTag)+8+32+32+len(nonce))
	msg = append(msg, decisionDomainTag...)
	msg = append(msg, id[:]...)
	msg = append(msg, winner[:]...)
	msg = append(msg, decisionHash[:]...)
	msg = append(msg, nonce...)
	return msg
}

// RequestMessage is the canonical byte string an authority-signed HTTP
// request is signed over: the method, path and a hash of the body.
func RequestMessage(method, path string, body []byte) []byte {
	bodyHash := sha256.Sum256(body)
	msg := make([]byte, 0, len(requestDomainTag)+len(method)+len(path)+32)
	msg = append(msg, requestDomainTag...)
	msg = append(msg, method...)
	msg = append(msg, path...)
	msg = append(msg, bodyHash[:]...)
	return msg
}

// ComputeDecisionHash derives the sha256 decision hash from the decision
// event fields. The chat system and the protocol must agree on this layout
// byte for byte; field order and little-endian integer encoding are fixed.
func ComputeDecisionHash(userMessage, aiResponse string, isWinningDecision bool, userID uint64, sessionID string, timestamp int64) [32]byte {
	h := sha256.New()
	h.Write([]byte(userMessage))
	h.Write([]byte(aiResponse))
	if isWinningDecision {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], userID)
	h.Write(buf[:])
	h.Write([]byte(sessionID))
	binary.LittleEndian.PutUint64(buf[:], uint64(timestamp))
	h.Write(buf[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify reports whether sig is a valid Ed25519 signature over msg by the
// given key.
func Verify(key solana.PublicKey, msg []byte, sig solana.Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(key[:]), msg, sig[:])
}

// Sign signs msg with the given private key. Used by the admin signing
// helper and by tests; the service itself never holds the decision key.
func Sign(key solana.PrivateKey, msg []byte) (solana.Signature, error) {
	sig, err := key.Sign(msg)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}

// ParsePublicKey decodes a base58-encoded Ed25519 public key.
func ParsePublicKey(s string) (solana.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return solana.PublicKey{}, fmt.Errorf("invalid public key size: expected %d, got %d", ed25519.PublicKeySize, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// ParseSignature decodes a base58-encoded Ed25519 signature.
func ParseSignature(s string) (solana.Signature, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return solana.Signature{}, fmt.Errorf("invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(raw))
	}
	return solana.SignatureFromBytes(raw), nil
}

// DeriveVault computes the program-owned pool vault address for a bounty
// from a fixed seed, the bounty id and the program identity. The protocol
// can authorize transfers out of this address without any private key
// existing for it.
func DeriveVault(programID solana.PublicKey, bountyID uint64) (solana.PublicKey, uint8, error) {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], bountyID)
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte("bounty_vault"), id[:]}, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive vault address: %w", err)
	}
	return addr, bump, nil
}
