package server

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
)

// Signed requests carry the caller's public key and an Ed25519 signature
// over the canonical request message in headers. The verified key becomes
// the caller identity for authority checks.
const (
	headerSigner    = "X-Signer"
	headerSignature = "X-Signature"

	maxBodyBytes = 1 << 20 // 1MB
)

type ctxKey int

const signerCtxKey ctxKey = iota

// signedRequest verifies the request signature and stores the signer
// identity in the request context.
func (s *Server) signedRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signerStr := r.Header.Get(headerSigner)
		sigStr := r.Header.Get(headerSignature)
		if signerStr == "" || sigStr == "" {
			s.writeErrorCode(w, http.StatusUnauthorized, "missing_signature", "X-Signer and X-Signature headers are required")
			return
		}

		signer, err := authority.ParsePublicKey(signerStr)
		if err != nil {
			s.writeErrorCode(w, http.StatusUnauthorized, "invalid_signer", "X-Signer is not a valid public key")
			return
		}
		sig, err := authority.ParseSignature(sigStr)
		if err != nil {
			s.writeErrorCode(w, http.StatusUnauthorized, "invalid_signature", "X-Signature is not a valid signature")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			s.writeErrorCode(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
			return
		}
		if len(body) > maxBodyBytes {
			s.writeErrorCode(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds 1MB")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		msg := authority.RequestMessage(r.Method, r.URL.Path, body)
		if !authority.Verify(signer, msg, sig) {
			s.writeErrorCode(w, http.StatusUnauthorized, "invalid_signature", "signature does not match request")
			return
		}

		ctx := context.WithValue(r.Context(), signerCtxKey, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// signerFrom returns the verified signer identity stored by signedRequest.
func signerFrom(ctx context.Context) (solana.PublicKey, bool) {
	signer, ok := ctx.Value(signerCtxKey).(solana.PublicKey)
	return signer, ok
}
