package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"Baguette/internal/amount"
	"Baguette/internal/commitment"
	"Baguette/internal/engine"
	"Baguette/internal/identity"
	"Baguette/internal/reward"
	"Baguette/internal/storage"
	"Baguette/internal/types"
)

var operator = identity.Address{0x0F}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func newEngine(t *testing.T, db *storage.Storage) *engine.Engine {
	t.Helper()

	e, err := engine.New(db, engine.Config{Operator: operator, Schedule: reward.DefaultSchedule()})
	require.NoError(t, err)

	return e
}

// populate bootstraps an engine on db and records one solve.
func populate(t *testing.T, db *storage.Storage) identity.Address {
	t.Helper()

	e := newEngine(t, db)

	pool, err := amount.Parse("2")
	require.NoError(t, err)

	_, err = e.Bootstrap([]commitment.Hash{commitment.Of("baguette{one}")}, pool)
	require.NoError(t, err)

	solver := identity.Address{0xA1}
	_, err = e.SubmitFlag(solver, 0, 0, "baguette{one}")
	require.NoError(t, err)

	return solver
}

func TestCreate_EmptyStorage(t *testing.T) {
	db := newTestStorage(t)

	data, err := Create(db)
	require.NoError(t, err)

	snap := types.GetRootAsSnapshot(data, 0)
	require.Equal(t, uint32(snapshotVersion), snap.Version())
	require.Zero(t, snap.EntriesLength())
	require.Len(t, snap.ChecksumBytes(), 32)
}

func TestCreate_SortedEntries(t *testing.T) {
	db := newTestStorage(t)
	require.NoError(t, db.Set([]byte("b"), []byte("2")))
	require.NoError(t, db.Set([]byte("a"), []byte("1")))

	data, err := Create(db)
	require.NoError(t, err)

	snap := types.GetRootAsSnapshot(data, 0)
	require.Equal(t, 2, snap.EntriesLength())

	var e types.SnapshotEntry
	require.True(t, snap.Entries(&e, 0))
	require.Equal(t, []byte("a"), e.KeyBytes())
	require.Equal(t, []byte("1"), e.ValueBytes())
}

func TestCompressDecompress_Roundtrip(t *testing.T) {
	data := bytes.Repeat([]byte("baguette"), 1000)

	compressed, err := Compress(data)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(data))

	out, err := Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestApply_RestoresEngineState(t *testing.T) {
	src := newTestStorage(t)
	solver := populate(t, src)

	data, err := Create(src)
	require.NoError(t, err)

	compressed, err := Compress(data)
	require.NoError(t, err)

	raw, err := Decompress(compressed)
	require.NoError(t, err)

	dst := newTestStorage(t)
	n, err := Apply(dst, raw)
	require.NoError(t, err)
	require.Positive(t, n)

	restored := newEngine(t, dst)

	winner, err := restored.WinnerAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, solver, winner)

	balance, err := restored.TokenBalanceOf(solver)
	require.NoError(t, err)
	require.Equal(t, "0.05", amount.Format(balance))

	pool, err := restored.PrizePoolRemaining()
	require.NoError(t, err)
	require.Equal(t, "1.95", amount.Format(pool))

	events, err := restored.Events(0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// The next contest id continues after the restored one.
	id, err := restored.StartContest([]commitment.Hash{commitment.Of("x")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestApply_RejectsNonEmptyStore(t *testing.T) {
	src := newTestStorage(t)
	populate(t, src)

	data, err := Create(src)
	require.NoError(t, err)

	_, err = Apply(src, data)
	require.ErrorContains(t, err, "not empty")
}

func TestApply_RejectsTampered(t *testing.T) {
	src := newTestStorage(t)
	require.NoError(t, src.Set([]byte("k"), []byte("value-one")))

	data, err := Create(src)
	require.NoError(t, err)

	tampered := bytes.Replace(data, []byte("value-one"), []byte("value-two"), 1)
	require.NotEqual(t, data, tampered)

	_, err = Apply(newTestStorage(t), tampered)
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestApply_RejectsGarbage(t *testing.T) {
	_, err := Apply(newTestStorage(t), []byte{1, 2, 3})
	require.Error(t, err)

	_, err = Apply(newTestStorage(t), []byte{0xFF, 0xFF, 0xFF, 0x7F, 0, 0, 0, 0, 0, 0})
	require.Error(t, err)
}
