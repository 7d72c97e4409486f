package server

import (
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	"github.com/moneymayx/billions-bounty/protocol/pkg/store"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger *slog.Logger
	Engine *engine.Engine
	Store  *store.Store

	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       VersionInfo

	// AllowedOrigins configures CORS for browser clients; empty disables
	// cross-origin access.
	AllowedOrigins []string

	// EntryRate limits entry submissions per client IP.
	EntryRate  rate.Limit
	EntryBurst int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Engine == nil {
		return errors.New("engine is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.EntryRate == 0 {
		// 120 entries per minute per IP with room for short bursts.
		cfg.EntryRate = rate.Every(time.Minute / 120)
	}
	if cfg.EntryBurst == 0 {
		cfg.EntryBurst = 20
	}
	return nil
}
