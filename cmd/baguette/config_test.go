package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"Baguette/internal/amount"
	"Baguette/internal/commitment"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	require.Equal(t, "./data", cfg.DataPath)
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, 10*time.Minute, cfg.ReplayWindow)
	require.Nil(t, cfg.InitialPool)
	require.False(t, cfg.Verbose)

	want, err := commitment.ParseHex(defaultFlagHashes)
	require.NoError(t, err)
	require.Equal(t, []commitment.Hash{want}, cfg.FlagHashes)
}

func TestLoadConfig_Flags(t *testing.T) {
	a := commitment.Of("baguette{a}")
	b := commitment.Of("baguette{b}")

	cfg, err := loadConfig([]string{
		"--data", "/tmp/bg",
		"--http", ":9000",
		"--flag-hashes", a.String() + "," + b.String(),
		"--initial-pool", "2.5",
		"--replay-window", "30s",
		"-v",
	})
	require.NoError(t, err)

	require.Equal(t, "/tmp/bg", cfg.DataPath)
	require.Equal(t, ":9000", cfg.HTTPAddress)
	require.Equal(t, []commitment.Hash{a, b}, cfg.FlagHashes)
	require.Equal(t, "2.5", amount.Format(cfg.InitialPool))
	require.Equal(t, 30*time.Second, cfg.ReplayWindow)
	require.True(t, cfg.Verbose)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("BAGUETTE_HTTP", ":7000")
	t.Setenv("BAGUETTE_INITIAL_POOL", "1")
	t.Setenv("BAGUETTE_VERBOSE", "true")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.HTTPAddress)
	require.Equal(t, "1", amount.Format(cfg.InitialPool))
	require.True(t, cfg.Verbose)

	// Explicit flags win over the environment.
	cfg, err = loadConfig([]string{"--http", ":9000"})
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.HTTPAddress)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad hash", []string{"--flag-hashes", "0x1234"}},
		{"empty hashes", []string{"--flag-hashes", ""}},
		{"bad pool", []string{"--initial-pool", "abc"}},
		{"zero window", []string{"--replay-window", "0s"}},
		{"unknown flag", []string{"--nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args)
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("BAGUETTE_REPLAY_WINDOW", "soon")

	_, err := loadConfig(nil)
	require.ErrorContains(t, err, "BAGUETTE_REPLAY_WINDOW")
}

func TestLoadOrGenerateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "operator.key")

	first, err := loadOrGenerateKey(path)
	require.NoError(t, err)

	second, err := loadOrGenerateKey(path)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))
	_, err = loadOrGenerateKey(path)
	require.Error(t, err)
}

func TestNode_ExportImport(t *testing.T) {
	key, err := generateNewKey()
	require.NoError(t, err)

	dir := t.TempDir()
	snapPath := filepath.Join(dir, "state.snap")

	src := &Config{
		DataPath:     filepath.Join(dir, "src"),
		PrivateKey:   key,
		FlagHashes:   []commitment.Hash{commitment.Of("baguette{x}")},
		ReplayWindow: time.Minute,
	}

	n, err := NewNode(src)
	require.NoError(t, err)
	_, err = n.engine.SubmitFlag(n.engine.Operator(), 0, 0, "baguette{x}")
	require.NoError(t, err)
	require.NoError(t, n.ExportSnapshot(snapPath))
	require.NoError(t, n.Close())

	dst := *src
	dst.DataPath = filepath.Join(dir, "dst")
	dst.ImportSnapshot = snapPath

	m, err := NewNode(&dst)
	require.NoError(t, err)
	defer m.Close()

	count, err := m.engine.ContestCount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	pool, err := m.engine.PrizePoolRemaining()
	require.NoError(t, err)
	require.Equal(t, "0.18", amount.Format(pool))

	claimed, err := m.engine.HasClaimed(0, m.engine.Operator())
	require.NoError(t, err)
	require.True(t, claimed)
}

func TestNode_ExportOnlySkipsBootstrap(t *testing.T) {
	key, err := generateNewKey()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := &Config{
		DataPath:       filepath.Join(dir, "data"),
		PrivateKey:     key,
		FlagHashes:     []commitment.Hash{commitment.Of("baguette{x}")},
		ReplayWindow:   time.Minute,
		ExportSnapshot: filepath.Join(dir, "empty.snap"),
	}

	n, err := NewNode(cfg)
	require.NoError(t, err)
	defer n.Close()

	require.NoError(t, n.ExportSnapshot(cfg.ExportSnapshot))

	count, err := n.engine.ContestCount()
	require.NoError(t, err)
	require.Zero(t, count)

	pool, err := n.engine.PrizePoolRemaining()
	require.NoError(t, err)
	require.True(t, pool.IsZero())
}
