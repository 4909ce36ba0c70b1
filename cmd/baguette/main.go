package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"Baguette/internal/identity"
	"Baguette/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run(args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger.Init(cfg.Verbose)

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		return fmt.Errorf("create node:\n%w", err)
	}

	if cfg.ExportSnapshot != "" {
		defer node.Close()
		return node.ExportSnapshot(cfg.ExportSnapshot)
	}

	printStartupInfo(cfg)

	return node.Run()
}

// printStartupInfo displays node configuration at startup.
func printStartupInfo(cfg *Config) {
	operator, _ := identity.FromPublicKey(cfg.PrivateKey.Public().(ed25519.PublicKey))

	logger.Info("starting Baguette node",
		"operator", operator,
		"http", cfg.HTTPAddress,
		"data", cfg.DataPath,
		"commitments", len(cfg.FlagHashes),
		"replay_window", cfg.ReplayWindow,
	)
}
