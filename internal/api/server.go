// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Baguette/internal/commitment"
	"Baguette/internal/engine"
	"Baguette/internal/identity"
	"Baguette/internal/logger"
	"Baguette/internal/metrics"
	"Baguette/internal/storage"
)

const (
	// maxTxSize is the maximum transaction size in bytes.
	maxTxSize = 64 << 10 // 64 KB

	// maxEventsPage caps one /events response.
	maxEventsPage = 1000
)

// Registry is the engine surface used by the API.
type Registry interface {
	Operator() identity.Address
	Distributor() identity.Address

	SubmitFlag(caller identity.Address, contestID uint64, slot uint32, flag string) (engine.Solve, error)
	StartContest(commitments []commitment.Hash) (uint64, error)
	DepositPrizePool(value *uint256.Int) (engine.Event, error)
	Transfer(from, to identity.Address, value *uint256.Int) error

	Contest(contestID uint64) (engine.ContestInfo, error)
	ContestCount() (uint64, error)
	WinnerAt(contestID uint64, rank uint32) (identity.Address, error)
	Winners(contestID uint64) ([]identity.Address, error)
	HasClaimed(contestID uint64, who identity.Address) (bool, error)

	RewardSchedule() []*uint256.Int
	Capacity() uint32
	PrizePerContest() *uint256.Int
	PrizePoolRemaining() (*uint256.Int, error)
	TokenBalanceOf(who identity.Address) (*uint256.Int, error)
	TotalSupply() (*uint256.Int, error)
	Events(from uint64, limit int) ([]engine.Event, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Addr         string           // Addr is the HTTP listen address
	Store        *storage.Storage // Store persists accepted transaction hashes
	ReplayWindow time.Duration    // ReplayWindow bounds nonce drift and dedup memory
	Clock        clockwork.Clock  // Clock defaults to the real clock
}

// Server is the HTTP API server.
type Server struct {
	addr     string         // addr is the HTTP listen address
	registry Registry       // registry executes commands and answers queries
	dedup    *Dedup         // dedup rejects replayed transactions
	router   *chi.Mux       // router dispatches requests
	server   *http.Server   // server is the underlying HTTP server
	started  time.Time      // started is when the server was created
	clock    clockwork.Clock
}

// New creates a new HTTP API server.
func New(cfg Config, registry Registry) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		addr:     cfg.Addr,
		registry: registry,
		dedup:    NewDedup(cfg.Store, clock, cfg.ReplayWindow),
		router:   chi.NewRouter(),
		started:  clock.Now(),
		clock:    clock,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)

	s.router.Post("/tx", s.handleSubmitTx)

	s.router.Route("/contests", func(r chi.Router) {
		r.Get("/", s.handleContestCount)
		r.Get("/{id}", s.handleContest)
		r.Get("/{id}/winners", s.handleWinners)
		r.Get("/{id}/winners/{rank}", s.handleWinnerAt)
		r.Get("/{id}/claims/{address}", s.handleHasClaimed)
	})

	s.router.Get("/schedule", s.handleSchedule)
	s.router.Get("/pool", s.handlePool)
	s.router.Get("/supply", s.handleSupply)
	s.router.Get("/balances/{address}", s.handleBalance)
	s.router.Get("/events", s.handleEvents)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and the replay tracker.
func (s *Server) Stop() error {
	defer s.dedup.Close()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.registry.ContestCount()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	pool, err := s.registry.PrizePoolRemaining()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	supply, err := s.registry.TotalSupply()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contests":    count,
		"pool":        newAmount(pool),
		"supply":      newAmount(supply),
		"operator":    s.registry.Operator().String(),
		"distributor": s.registry.Distributor().String(),
		"uptime":      s.clock.Since(s.started).Round(time.Second).String(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"kind":  kind,
	})
}

// hexHash formats a transaction hash for responses.
func hexHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
