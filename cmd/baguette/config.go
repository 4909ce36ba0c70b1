package main

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"Baguette/internal/amount"
	"Baguette/internal/commitment"
)

// defaultFlagHashes is the single commitment contest 0 starts with when none is configured.
const defaultFlagHashes = "0xefa7e22eae59a11934d758865481e3dc94cbc853048036e4a3d61075d7f8f3a7"

// Config holds the node configuration.
type Config struct {
	// DataPath is the directory for persistent storage.
	DataPath string

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string

	// KeyPath is the path to the operator Ed25519 private key file.
	KeyPath string

	// PrivateKey is the operator signing key.
	PrivateKey ed25519.PrivateKey

	// FlagHashes are the commitments of contest 0, used on a fresh store only.
	FlagHashes []commitment.Hash

	// InitialPool is the prize pool deposited on a fresh store.
	// Nil means one full leaderboard worth of rewards.
	InitialPool *uint256.Int

	// ReplayWindow bounds nonce drift and how long tx hashes are remembered.
	ReplayWindow time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// ExportSnapshot, when set, writes a compressed snapshot to this path and exits.
	ExportSnapshot string

	// ImportSnapshot, when set, loads a compressed snapshot into an empty store before starting.
	ImportSnapshot string
}

// rawConfig holds flag values before validation.
type rawConfig struct {
	flagHashes  string
	initialPool string
}

// envOverrides maps flag names to the environment variables that override them.
var envOverrides = map[string]string{
	"data":          "BAGUETTE_DATA",
	"http":          "BAGUETTE_HTTP",
	"key":           "BAGUETTE_KEY",
	"flag-hashes":   "BAGUETTE_FLAG_HASHES",
	"initial-pool":  "BAGUETTE_INITIAL_POOL",
	"replay-window": "BAGUETTE_REPLAY_WINDOW",
	"verbose":       "BAGUETTE_VERBOSE",
}

// loadConfig parses args, then fills every flag not given on the command line
// from the environment. A .env file in the working directory is read first.
func loadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env:\n%w", err)
	}

	cfg := &Config{}
	raw := &rawConfig{}

	flags := flag.NewFlagSet("baguette", flag.ContinueOnError)
	flags.StringVar(&cfg.DataPath, "data", "./data", "Data directory path")
	flags.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flags.StringVar(&cfg.KeyPath, "key", "", "Operator Ed25519 private key path (generates new if missing)")
	flags.StringVar(&raw.flagHashes, "flag-hashes", defaultFlagHashes, "Comma separated 0x-prefixed 32-byte flag hashes for contest 0")
	flags.StringVar(&raw.initialPool, "initial-pool", "", "Initial prize pool in tokens (default: one full leaderboard)")
	flags.DurationVar(&cfg.ReplayWindow, "replay-window", 10*time.Minute, "Transaction replay window")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&cfg.ExportSnapshot, "export-snapshot", "", "Write a compressed snapshot to this path and exit")
	flags.StringVar(&cfg.ImportSnapshot, "import-snapshot", "", "Load a compressed snapshot into an empty store before starting")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := applyEnv(flags); err != nil {
		return nil, err
	}

	hashes, err := commitment.ParseList(raw.flagHashes)
	if err != nil {
		return nil, fmt.Errorf("parse flag hashes:\n%w", err)
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("at least one flag hash is required")
	}
	cfg.FlagHashes = hashes

	if raw.initialPool != "" {
		pool, err := amount.Parse(raw.initialPool)
		if err != nil {
			return nil, fmt.Errorf("parse initial pool:\n%w", err)
		}
		cfg.InitialPool = pool
	}

	if cfg.ReplayWindow <= 0 {
		return nil, fmt.Errorf("replay window must be positive")
	}

	return cfg, nil
}

// applyEnv sets each flag that was not passed explicitly from its environment variable.
func applyEnv(flags *flag.FlagSet) error {
	for name, env := range envOverrides {
		if flags.Changed(name) {
			continue
		}

		value, ok := os.LookupEnv(env)
		if !ok || value == "" {
			continue
		}

		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("invalid %s:\n%w", env, err)
		}
	}

	return nil
}
