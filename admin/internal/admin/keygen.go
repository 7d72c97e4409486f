// Package admin implements the operator tooling: key management, database
// migrations, protocol bootstrap and decision signing.
package admin

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
)

// Keygen generates an Ed25519 keypair and writes the private key to path in
// the standard base58 format. The public key is printed for wiring into the
// protocol config.
func Keygen(log *slog.Logger, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing key file %s", path)
	}

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	if err := os.WriteFile(path, []byte(key.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	log.Info("keypair generated", "path", path, "public_key", key.PublicKey().String())
	fmt.Println(key.PublicKey().String())
	return nil
}

// DeriveVault prints the program-owned vault address for a bounty. No
// private key exists for the address; operators provision it as the bounty's
// pool wallet before bootstrap.
func DeriveVault(log *slog.Logger, programID string, bountyID uint64) (string, error) {
	program, err := authority.ParsePublicKey(programID)
	if err != nil {
		return "", fmt.Errorf("failed to parse program id: %w", err)
	}

	addr, bump, err := authority.DeriveVault(program, bountyID)
	if err != nil {
		return "", err
	}

	log.Info("vault derived", "program_id", program.String(), "bounty_id", bountyID, "address", addr.String(), "bump", bump)
	fmt.Println(addr.String())
	return addr.String(), nil
}

// LoadKey reads a base58 private key written by Keygen.
func LoadKey(path string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}
	return key, nil
}
