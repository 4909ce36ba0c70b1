package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"Baguette/internal/amount"
	"Baguette/internal/api"
	"Baguette/internal/engine"
	"Baguette/internal/identity"
	"Baguette/internal/logger"
	"Baguette/internal/reward"
	"Baguette/internal/snapshot"
	"Baguette/internal/storage"
)

// Node is a running Baguette process.
type Node struct {
	cfg     *Config
	storage *storage.Storage
	engine  *engine.Engine
	api     *api.Server
}

// NewNode opens storage, imports a snapshot if asked and creates the engine.
func NewNode(cfg *Config) (*Node, error) {
	n := &Node{cfg: cfg}

	if err := n.initStorage(); err != nil {
		return nil, err
	}

	if cfg.ImportSnapshot != "" {
		if err := n.importSnapshot(cfg.ImportSnapshot); err != nil {
			n.Close()
			return nil, err
		}
	}

	if err := n.initEngine(cfg.ExportSnapshot == ""); err != nil {
		n.Close()
		return nil, err
	}

	return n, nil
}

// initStorage initializes the Pebble storage.
func (n *Node) initStorage() error {
	if err := os.MkdirAll(n.cfg.DataPath, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(filepath.Join(n.cfg.DataPath, "db"))
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}

	n.storage = db

	return nil
}

// initEngine creates the engine. With bootstrap set, contest 0 is created and
// the pool funded on a fresh store; export-only runs leave the store untouched.
func (n *Node) initEngine(bootstrap bool) error {
	operator, err := identity.FromPublicKey(n.cfg.PrivateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return fmt.Errorf("operator identity:\n%w", err)
	}

	eng, err := engine.New(n.storage, engine.Config{
		Operator: operator,
		Schedule: reward.DefaultSchedule(),
	})
	if err != nil {
		return fmt.Errorf("create engine:\n%w", err)
	}

	n.engine = eng

	if !bootstrap {
		return nil
	}

	pool := n.cfg.InitialPool
	if pool == nil {
		pool = eng.PrizePerContest()
	}

	started, err := eng.Bootstrap(n.cfg.FlagHashes, pool)
	if err != nil {
		return fmt.Errorf("bootstrap:\n%w", err)
	}

	if !started {
		count, err := eng.ContestCount()
		if err != nil {
			return fmt.Errorf("read contest count:\n%w", err)
		}
		logger.Info("resuming existing store", "contests", count)
	}

	return nil
}

// importSnapshot loads a compressed snapshot file into the empty store.
func (n *Node) importSnapshot(path string) error {
	start := time.Now()

	compressed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot:\n%w", err)
	}

	data, err := snapshot.Decompress(compressed)
	if err != nil {
		return fmt.Errorf("decompress snapshot:\n%w", err)
	}

	count, err := snapshot.Apply(n.storage, data)
	if err != nil {
		return fmt.Errorf("apply snapshot:\n%w", err)
	}

	logger.Info("snapshot imported", "path", path, "entries", count, logger.Timed(start))

	return nil
}

// ExportSnapshot writes a compressed snapshot of the store to path.
func (n *Node) ExportSnapshot(path string) error {
	start := time.Now()

	data, err := snapshot.Create(n.storage)
	if err != nil {
		return fmt.Errorf("create snapshot:\n%w", err)
	}

	compressed, err := snapshot.Compress(data)
	if err != nil {
		return fmt.Errorf("compress snapshot:\n%w", err)
	}

	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return fmt.Errorf("write snapshot:\n%w", err)
	}

	logger.Info("snapshot exported",
		"path", path,
		"raw", len(data),
		"compressed", len(compressed),
		logger.Timed(start),
	)

	return nil
}

// Run starts the HTTP API and blocks until SIGINT or SIGTERM.
func (n *Node) Run() error {
	n.api = api.New(api.Config{
		Addr:         n.cfg.HTTPAddress,
		Store:        n.storage,
		ReplayWindow: n.cfg.ReplayWindow,
	}, n.engine)

	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	pool, err := n.engine.PrizePoolRemaining()
	if err != nil {
		return fmt.Errorf("read prize pool:\n%w", err)
	}

	logger.Info("node ready",
		"operator", n.engine.Operator(),
		"distributor", n.engine.Distributor(),
		"pool", amount.Format(pool),
	)

	return n.waitForShutdown()
}

// waitForShutdown blocks until a termination signal and then closes the node.
func (n *Node) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return n.Close()
}

// Close shuts down all node components gracefully.
func (n *Node) Close() error {
	if n.api != nil {
		if err := n.api.Stop(); err != nil {
			logger.Warn("stop api", "error", err)
		}
	}

	if n.storage != nil {
		return n.storage.Close()
	}

	return nil
}
