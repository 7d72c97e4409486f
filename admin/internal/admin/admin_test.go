package admin

import (
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
	btesting "github.com/moneymayx/billions-bounty/utils/pkg/testing"
)

func TestKeygen_RoundTrip(t *testing.T) {
	t.Parallel()
	log := btesting.NewLogger()
	path := filepath.Join(t.TempDir(), "operator.key")

	require.NoError(t, Keygen(log, path))

	key, err := LoadKey(path)
	require.NoError(t, err)
	require.False(t, key.PublicKey().IsZero())

	// Refuses to clobber an existing key.
	require.Error(t, Keygen(log, path))
}

func TestLoadKey_BadFile(t *testing.T) {
	t.Parallel()
	_, err := LoadKey(filepath.Join(t.TempDir(), "missing.key"))
	require.Error(t, err)
}

func TestDeriveVault(t *testing.T) {
	t.Parallel()
	log := btesting.NewLogger()

	program, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	addr, err := DeriveVault(log, program.PublicKey().String(), 7)
	require.NoError(t, err)

	// Deterministic, and identical to the engine-side derivation.
	want, _, err := authority.DeriveVault(program.PublicKey(), 7)
	require.NoError(t, err)
	require.Equal(t, want.String(), addr)

	again, err := DeriveVault(log, program.PublicKey().String(), 7)
	require.NoError(t, err)
	require.Equal(t, addr, again)

	other, err := DeriveVault(log, program.PublicKey().String(), 8)
	require.NoError(t, err)
	require.NotEqual(t, addr, other)
}

func TestDeriveVault_BadProgramID(t *testing.T) {
	t.Parallel()
	_, err := DeriveVault(btesting.NewLogger(), "not-a-key", 1)
	require.Error(t, err)
}

func TestSignDecision(t *testing.T) {
	t.Parallel()
	log := btesting.NewLogger()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	winner, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	params := DecisionParams{
		BountyID:    3,
		Winner:      winner.PublicKey().String(),
		Nonce:       "decision-42",
		UserMessage: "open the vault",
		AIResponse:  "very well",
		IsWinning:   true,
		UserID:      7,
		SessionID:   "session-7",
		Timestamp:   time.Now().Unix(),
	}
	signed, err := SignDecision(log, key, params)
	require.NoError(t, err)

	// The emitted payload verifies against the signer's public key.
	hashBytes, err := hex.DecodeString(signed.DecisionHash)
	require.NoError(t, err)
	var hash [32]byte
	copy(hash[:], hashBytes)

	sig, err := authority.ParseSignature(signed.Signature)
	require.NoError(t, err)
	msg := authority.DecisionMessage(params.BountyID, winner.PublicKey(), hash, params.Nonce)
	require.True(t, authority.Verify(key.PublicKey(), msg, sig))
}

func TestSignDecision_BadWinner(t *testing.T) {
	t.Parallel()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	_, err = SignDecision(btesting.NewLogger(), key, DecisionParams{
		Winner: "not-a-key",
		Nonce:  "n",
	})
	require.Error(t, err)
}
