package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/moneymayx/billions-bounty/admin/internal/admin"
	"github.com/moneymayx/billions-bounty/protocol/pkg/store"
	"github.com/moneymayx/billions-bounty/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Connection configuration
	postgresURLFlag := flag.String("postgres-url", "", "PostgreSQL connection string (or set POSTGRES_URL env var)")
	daemonURLFlag := flag.String("daemon-url", "http://127.0.0.1:8080", "Protocol daemon base URL (or set DAEMON_URL env var)")
	keyFileFlag := flag.String("key-file", "", "Path to the base58 operator private key")

	// Migration commands
	migrateFlag := flag.Bool("migrate", false, "Run pending database migrations")
	migrateDownFlag := flag.Bool("migrate-down", false, "Roll back the last database migration")
	migrateStatusFlag := flag.Bool("migrate-status", false, "Show database migration status")

	// Key management
	keygenFlag := flag.String("keygen", "", "Generate a keypair and write the private key to the given path")
	deriveVaultFlag := flag.Bool("derive-vault", false, "Print the program-owned vault address for --bounty-id")
	programIDFlag := flag.String("program-id", "", "Program identity public key for --derive-vault")

	// Bootstrap commands
	initializeFlag := flag.Bool("initialize", false, "Bootstrap the protocol config (authority = key-file identity)")
	decisionSignerFlag := flag.String("decision-signer", "", "Decision signer public key for --initialize or --set-decision-signer")
	poolWalletFlag := flag.String("pool-wallet", "", "Pool wallet public key for --initialize")
	opsWalletFlag := flag.String("ops-wallet", "", "Operations wallet public key for --initialize")
	buybackWalletFlag := flag.String("buyback-wallet", "", "Buyback wallet public key for --initialize")
	stakingWalletFlag := flag.String("staking-wallet", "", "Staking wallet public key for --initialize")
	poolFloorFlag := flag.Uint64("pool-floor", 0, "Pool floor amount for --initialize")

	createBountyFlag := flag.Bool("create-bounty", false, "Create a bounty ledger")
	bountyIDFlag := flag.Uint64("bounty-id", 0, "Bounty id for --create-bounty, --sign-decision or --derive-vault")
	basePriceFlag := flag.Uint64("base-price", 0, "Base entry price for --create-bounty")

	setDecisionSignerFlag := flag.Bool("set-decision-signer", false, "Rotate the decision signer key")

	creditWalletFlag := flag.String("credit-wallet", "", "Credit the given wallet (requires --amount)")
	amountFlag := flag.Uint64("amount", 0, "Amount for --credit-wallet")

	// Decision signing
	signDecisionFlag := flag.Bool("sign-decision", false, "Sign a winner decision with the key-file (decision signer) key")
	winnerFlag := flag.String("winner", "", "Winner public key for --sign-decision")
	nonceFlag := flag.String("nonce", "", "Decision nonce for --sign-decision")
	userMessageFlag := flag.String("user-message", "", "User message for the decision hash")
	aiResponseFlag := flag.String("ai-response", "", "AI response for the decision hash")
	isWinningFlag := flag.Bool("is-winning", true, "Whether the decision declares a win")
	userIDFlag := flag.Uint64("user-id", 0, "User id for the decision hash")
	sessionIDFlag := flag.String("session-id", "", "Session id for the decision hash")
	timestampFlag := flag.Int64("timestamp", 0, "Unix timestamp for the decision hash (0 = now)")

	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if envPostgresURL := os.Getenv("POSTGRES_URL"); envPostgresURL != "" {
		*postgresURLFlag = envPostgresURL
	}
	if envDaemonURL := os.Getenv("DAEMON_URL"); envDaemonURL != "" {
		*daemonURLFlag = envDaemonURL
	}

	// Migration commands run directly against the database.
	if *migrateFlag || *migrateDownFlag || *migrateStatusFlag {
		if *postgresURLFlag == "" {
			return fmt.Errorf("--postgres-url is required for migration commands")
		}
		switch {
		case *migrateFlag:
			return store.Migrate(log, *postgresURLFlag)
		case *migrateDownFlag:
			return store.MigrateDown(log, *postgresURLFlag)
		default:
			return store.MigrateStatus(log, *postgresURLFlag)
		}
	}

	if *keygenFlag != "" {
		return admin.Keygen(log, *keygenFlag)
	}

	if *deriveVaultFlag {
		if *programIDFlag == "" {
			return fmt.Errorf("--program-id is required for --derive-vault")
		}
		_, err := admin.DeriveVault(log, *programIDFlag, *bountyIDFlag)
		return err
	}

	// Everything below needs the operator key.
	if *keyFileFlag == "" {
		return fmt.Errorf("--key-file is required")
	}
	key, err := admin.LoadKey(*keyFileFlag)
	if err != nil {
		return err
	}

	if *signDecisionFlag {
		if *winnerFlag == "" || *nonceFlag == "" {
			return fmt.Errorf("--winner and --nonce are required for --sign-decision")
		}
		ts := *timestampFlag
		if ts == 0 {
			ts = time.Now().Unix()
		}
		_, err := admin.SignDecision(log, key, admin.DecisionParams{
			BountyID:    *bountyIDFlag,
			Winner:      *winnerFlag,
			Nonce:       *nonceFlag,
			UserMessage: *userMessageFlag,
			AIResponse:  *aiResponseFlag,
			IsWinning:   *isWinningFlag,
			UserID:      *userIDFlag,
			SessionID:   *sessionIDFlag,
			Timestamp:   ts,
		})
		return err
	}

	ctx := context.Background()
	client := admin.NewClient(log, *daemonURLFlag, key)

	switch {
	case *initializeFlag:
		for name, val := range map[string]string{
			"--decision-signer": *decisionSignerFlag,
			"--pool-wallet":     *poolWalletFlag,
			"--ops-wallet":      *opsWalletFlag,
			"--buyback-wallet":  *buybackWalletFlag,
			"--staking-wallet":  *stakingWalletFlag,
		} {
			if val == "" {
				return fmt.Errorf("%s is required for --initialize", name)
			}
		}
		return client.Initialize(ctx, admin.InitializeParams{
			DecisionSigner: *decisionSignerFlag,
			PoolWallet:     *poolWalletFlag,
			OpsWallet:      *opsWalletFlag,
			BuybackWallet:  *buybackWalletFlag,
			StakingWallet:  *stakingWalletFlag,
			PoolFloor:      *poolFloorFlag,
		})

	case *createBountyFlag:
		if *basePriceFlag == 0 {
			return fmt.Errorf("--base-price is required for --create-bounty")
		}
		return client.CreateBounty(ctx, *bountyIDFlag, *basePriceFlag)

	case *setDecisionSignerFlag:
		if *decisionSignerFlag == "" {
			return fmt.Errorf("--decision-signer is required for --set-decision-signer")
		}
		return client.SetDecisionSigner(ctx, *decisionSignerFlag)

	case *creditWalletFlag != "":
		if *amountFlag == 0 {
			return fmt.Errorf("--amount is required for --credit-wallet")
		}
		return client.CreditWallet(ctx, *creditWalletFlag, *amountFlag)
	}

	flag.Usage()
	return fmt.Errorf("no command specified")
}
