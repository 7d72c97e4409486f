package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/moneymayx/billions-bounty/protocol/pkg/authority"
	"github.com/moneymayx/billions-bounty/protocol/pkg/buyback"
	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	"github.com/moneymayx/billions-bounty/protocol/pkg/metrics"
	"github.com/moneymayx/billions-bounty/protocol/pkg/server"
	"github.com/moneymayx/billions-bounty/protocol/pkg/store"
	"github.com/moneymayx/billions-bounty/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for HTTP (or set LISTEN_ADDR env var)")
	postgresURLFlag := flag.String("postgres-url", "", "PostgreSQL connection string (or set POSTGRES_URL env var)")
	migrateFlag := flag.Bool("migrate", false, "Run pending database migrations before starting")
	escapeWindowFlag := flag.Duration("escape-window", engine.DefaultEscapeWindow, "Inactivity window before the escape fallback becomes triggerable")
	allowedOriginsFlag := flag.String("allowed-origins", "", "Comma-separated CORS origins (or set ALLOWED_ORIGINS env var)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 10*time.Second, "Maximum time to wait for graceful shutdown")

	buybackAuthorityFlag := flag.String("buyback-authority", "", "Authority public key for buyback execution; empty disables the executor (or set BUYBACK_AUTHORITY env var)")
	buybackIntervalFlag := flag.Duration("buyback-interval", time.Hour, "Interval between buyback executor runs")
	buybackMinFlag := flag.Uint64("buyback-min", 0, "Minimum owed amount before the executor runs a settlement")

	flag.Parse()

	// Local development convenience only; missing file is fine.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	if envListenAddr := os.Getenv("LISTEN_ADDR"); envListenAddr != "" {
		*listenAddrFlag = envListenAddr
	}
	if envPostgresURL := os.Getenv("POSTGRES_URL"); envPostgresURL != "" {
		*postgresURLFlag = envPostgresURL
	}
	if envOrigins := os.Getenv("ALLOWED_ORIGINS"); envOrigins != "" {
		*allowedOriginsFlag = envOrigins
	}
	if envAuthority := os.Getenv("BUYBACK_AUTHORITY"); envAuthority != "" {
		*buybackAuthorityFlag = envAuthority
	}

	if *postgresURLFlag == "" {
		return fmt.Errorf("--postgres-url is required")
	}

	if *migrateFlag {
		if err := store.Migrate(log, *postgresURLFlag); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.New(ctx, store.Config{
		Logger:  log,
		ConnStr: *postgresURLFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer st.Close()

	eng, err := engine.New(engine.Config{
		Logger:       log,
		Store:        st,
		EscapeWindow: *escapeWindowFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	var allowedOrigins []string
	if *allowedOriginsFlag != "" {
		allowedOrigins = strings.Split(*allowedOriginsFlag, ",")
	}

	srv, err := server.New(server.Config{
		Logger:          log,
		Engine:          eng,
		Store:           st,
		ListenAddr:      *listenAddrFlag,
		ShutdownTimeout: *shutdownTimeoutFlag,
		AllowedOrigins:  allowedOrigins,
		VersionInfo: server.VersionInfo{
			Version: version,
			Commit:  commit,
			Date:    date,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if *buybackAuthorityFlag != "" {
		authorityKey, err := authority.ParsePublicKey(*buybackAuthorityFlag)
		if err != nil {
			return fmt.Errorf("failed to parse buyback authority: %w", err)
		}
		exec, err := buyback.New(buyback.Config{
			Logger:       log,
			Engine:       eng,
			Authority:    authorityKey,
			Interval:     *buybackIntervalFlag,
			MinExecution: *buybackMinFlag,
		})
		if err != nil {
			return fmt.Errorf("failed to create buyback executor: %w", err)
		}
		exec.Start(ctx)
	}

	return g.Wait()
}
