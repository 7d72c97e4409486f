package authority

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestProtocol_Authority_SignVerify(t *testing.T) {
	t.Parallel()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	winner, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	hash := ComputeDecisionHash("msg", "resp", true, 7, "session-1", 1700000000)
	msg := DecisionMessage(42, winner.PublicKey(), hash, "nonce-1")

	sig, err := Sign(key, msg)
	require.NoError(t, err)
	require.True(t, Verify(key.PublicKey(), msg, sig))

	t.Run("rejects wrong key", func(t *testing.T) {
		t.Parallel()

		other, err := solana.NewRandomPrivateKey()
		require.NoError(t, err)
		require.False(t, Verify(other.PublicKey(), msg, sig))
	})

	t.Run("rejects tampered components", func(t *testing.T) {
		t.Parallel()

		require.False(t, Verify(key.PublicKey(), DecisionMessage(43, winner.PublicKey(), hash, "nonce-1"), sig))
		require.False(t, Verify(key.PublicKey(), DecisionMessage(42, key.PublicKey(), hash, "nonce-1"), sig))
		require.False(t, Verify(key.PublicKey(), DecisionMessage(42, winner.PublicKey(), hash, "nonce-2"), sig))

		otherHash := ComputeDecisionHash("msg", "resp", false, 7, "session-1", 1700000000)
		require.NotEqual(t, hash, otherHash)
		require.False(t, Verify(key.PublicKey(), DecisionMessage(42, winner.PublicKey(), otherHash, "nonce-1"), sig))
	})
}

func TestProtocol_Authority_ComputeDecisionHash(t *testing.T) {
	t.Parallel()

	a := ComputeDecisionHash("hello", "world", true, 1, "s", 100)
	b := ComputeDecisionHash("hello", "world", true, 1, "s", 100)
	require.Equal(t, a, b, "hash must be deterministic")

	// Every field participates in the hash.
	require.NotEqual(t, a, ComputeDecisionHash("hello!", "world", true, 1, "s", 100))
	require.NotEqual(t, a, ComputeDecisionHash("hello", "world!", true, 1, "s", 100))
	require.NotEqual(t, a, ComputeDecisionHash("hello", "world", false, 1, "s", 100))
	require.NotEqual(t, a, ComputeDecisionHash("hello", "world", true, 2, "s", 100))
	require.NotEqual(t, a, ComputeDecisionHash("hello", "world", true, 1, "x", 100))
	require.NotEqual(t, a, ComputeDecisionHash("hello", "world", true, 1, "s", 101))
}

func TestProtocol_Authority_ParseKeys(t *testing.T) {
	t.Parallel()

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	parsed, err := ParsePublicKey(key.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), parsed)

	_, err = ParsePublicKey("not-base58-!!!")
	require.Error(t, err)

	_, err = ParsePublicKey("abc")
	require.Error(t, err, "short keys must be rejected")

	sig, err := Sign(key, []byte("payload"))
	require.NoError(t, err)

	parsedSig, err := ParseSignature(sig.String())
	require.NoError(t, err)
	require.Equal(t, sig, parsedSig)

	_, err = ParseSignature("abc")
	require.Error(t, err)
}

func TestProtocol_Authority_DeriveVault(t *testing.T) {
	t.Parallel()

	programID, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	addr1, bump1, err := DeriveVault(programID.PublicKey(), 1)
	require.NoError(t, err)

	addr1Again, bump1Again, err := DeriveVault(programID.PublicKey(), 1)
	require.NoError(t, err)
	require.Equal(t, addr1, addr1Again, "derivation must be deterministic")
	require.Equal(t, bump1, bump1Again)

	addr2, _, err := DeriveVault(programID.PublicKey(), 2)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addr2, "distinct bounties get distinct vaults")

	otherProgram, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	addrOther, _, err := DeriveVault(otherProgram.PublicKey(), 1)
	require.NoError(t, err)
	require.NotEqual(t, addr1, addrOther, "vaults are scoped to the program identity")
}
