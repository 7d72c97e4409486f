// Package server exposes the protocol engine over HTTP. Reads are open;
// state-changing calls are signed by the caller, and the engine enforces
// who may do what.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moneymayx/billions-bounty/protocol/pkg/engine"
	"github.com/moneymayx/billions-bounty/protocol/pkg/metrics"
	"github.com/moneymayx/billions-bounty/protocol/pkg/store"
)

type Server struct {
	log          *slog.Logger
	cfg          Config
	engine       *engine.Engine
	store        *store.Store
	httpSrv      *http.Server
	entryLimiter *RateLimiter
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:    cfg.Logger,
		cfg:    cfg,
		engine: cfg.Engine,
		store:  cfg.Store,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", headerSigner, headerSignature},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/healthz", s.healthzHandler)
	router.Get("/readyz", s.readyzHandler)
	router.Get("/version", s.versionHandler)
	router.Handle("/metrics", promhttp.Handler())

	entryLimiter := NewRateLimiter(cfg.EntryRate, cfg.EntryBurst)
	s.entryLimiter = entryLimiter

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", s.getConfigHandler)
		r.Get("/bounties/{bountyID}", s.getBountyHandler)
		r.Get("/bounties/{bountyID}/price", s.getPriceHandler)
		r.Get("/buyback", s.getBuybackHandler)
		r.Get("/wallets/{address}", s.getWalletHandler)
		r.Get("/events", s.listEventsHandler)

		// Permissionless: anyone may trigger the escape once it is due, and
		// the decision payload carries its own authorization.
		r.Post("/bounties/{bountyID}/escape", s.escapeHandler)
		r.Post("/bounties/{bountyID}/decision", s.decisionHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.signedRequest)
			r.With(RateLimitMiddleware(entryLimiter)).
				Post("/bounties/{bountyID}/entries", s.entryHandler)

			r.Post("/initialize", s.initializeHandler)
			r.Post("/bounties", s.createBountyHandler)
			r.Post("/bounties/{bountyID}/deactivate", s.deactivateHandler)
			r.Post("/bounties/{bountyID}/recover", s.recoverHandler)
			r.Post("/buyback/executions", s.recordBuybackHandler)
			r.Post("/config/decision-signer", s.setDecisionSignerHandler)
			r.Post("/wallets/{address}/credit", s.creditWalletHandler)
		})
	})

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	return s, nil
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Close releases resources held outside the HTTP server itself. Run calls it
// on shutdown; tests that only use Handler call it directly.
func (s *Server) Close() {
	s.entryLimiter.Stop()
}

func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("server: http server error", "error", err)
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err(), "address", s.cfg.ListenAddr)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("server: http server shutdown complete")
		return nil
	case err := <-serveErrCh:
		s.log.Error("server: http server error causing shutdown", "error", err, "address", s.cfg.ListenAddr)
		return err
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Debug("readyz: database not ready", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("database not ready\n")); err != nil {
			s.log.Error("failed to write readyz response", "error", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write readyz response", "error", err)
	}
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.cfg.VersionInfo); err != nil {
		s.log.Error("failed to write version response", "error", err)
	}
}
