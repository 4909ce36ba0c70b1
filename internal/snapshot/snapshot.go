// Package snapshot exports and imports the full engine store.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"Baguette/internal/storage"
	"Baguette/internal/types"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

// entry holds one key-value pair.
type entry struct {
	key   []byte
	value []byte
}

// Create serializes every stored pair from a consistent view of db.
func Create(db *storage.Storage) ([]byte, error) {
	entries, err := collectEntries(db)
	if err != nil {
		return nil, fmt.Errorf("collect entries:\n%w", err)
	}

	return buildSnapshot(entries), nil
}

// collectEntries reads all pairs from a point-in-time view.
func collectEntries(db *storage.Storage) ([]entry, error) {
	var entries []entry

	err := db.View(func(r storage.Reader) error {
		return r.IteratePrefix(nil, func(key, value []byte) error {
			// Copy key and value to avoid iterator invalidation
			entries = append(entries, entry{
				key:   bytes.Clone(key),
				value: bytes.Clone(value),
			})

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// buildSnapshot creates the FlatBuffers snapshot with checksum.
func buildSnapshot(entries []entry) []byte {
	// Sort entries by key for deterministic checksum
	sortEntries(entries)

	checksum := computeChecksum(snapshotVersion, entries)

	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		keyOffset := builder.CreateByteVector(e.key)
		valueOffset := builder.CreateByteVector(e.value)

		types.SnapshotEntryStart(builder)
		types.SnapshotEntryAddKey(builder, keyOffset)
		types.SnapshotEntryAddValue(builder, valueOffset)
		offsets[i] = types.SnapshotEntryEnd(builder)
	}

	types.SnapshotStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesVector := builder.EndVector(len(offsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, snapshotVersion)
	types.SnapshotAddChecksum(builder, checksumOffset)
	types.SnapshotAddEntries(builder, entriesVector)
	offset := types.SnapshotEnd(builder)
	builder.Finish(offset)

	return builder.FinishedBytes()
}

// sortEntries sorts entries by key.
func sortEntries(entries []entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})
}

// computeChecksum computes a blake3 checksum over canonical snapshot data.
// Format: version (4 bytes) + for each entry: u32 key len + key + u32 value len + value
func computeChecksum(version uint32, entries []entry) [32]byte {
	hasher := blake3.New()

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], version)
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:], uint32(len(e.key)))
		hasher.Write(buf[:])
		hasher.Write(e.key)

		binary.BigEndian.PutUint32(buf[:], uint32(len(e.value)))
		hasher.Write(buf[:])
		hasher.Write(e.value)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// Compress compresses snapshot data using zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// Apply verifies a snapshot and writes all of its pairs to db in one batch.
// The store must be empty. Returns the number of pairs written.
func Apply(db *storage.Storage, data []byte) (n int, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("malformed snapshot data")
		}
	}()

	if len(data) < 8 {
		return 0, fmt.Errorf("snapshot data too short")
	}

	empty, err := isEmpty(db)
	if err != nil {
		return 0, fmt.Errorf("check store:\n%w", err)
	}
	if !empty {
		return 0, fmt.Errorf("store is not empty")
	}

	snap := types.GetRootAsSnapshot(data, 0)

	if snap.Version() != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", snap.Version())
	}

	entries, err := readEntries(snap)
	if err != nil {
		return 0, err
	}

	if err := verifyChecksum(snap, entries); err != nil {
		return 0, fmt.Errorf("verify checksum:\n%w", err)
	}

	pairs := make([]storage.KeyValue, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KeyValue{Key: e.key, Value: e.value}
	}

	// Write all pairs atomically
	if err := db.SetBatch(pairs); err != nil {
		return 0, fmt.Errorf("write entries:\n%w", err)
	}

	return len(pairs), nil
}

// readEntries copies every entry out of the snapshot buffer.
func readEntries(snap *types.Snapshot) ([]entry, error) {
	entries := make([]entry, snap.EntriesLength())
	var e types.SnapshotEntry

	for i := range entries {
		if !snap.Entries(&e, i) {
			return nil, fmt.Errorf("read entry %d", i)
		}

		entries[i] = entry{
			key:   bytes.Clone(e.KeyBytes()),
			value: bytes.Clone(e.ValueBytes()),
		}
	}

	return entries, nil
}

// verifyChecksum recomputes the checksum and compares it to the stored one.
func verifyChecksum(snap *types.Snapshot, entries []entry) error {
	stored := snap.ChecksumBytes()
	if len(stored) != 32 {
		return fmt.Errorf("invalid checksum length: %d", len(stored))
	}

	sorted := make([]entry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	computed := computeChecksum(snap.Version(), sorted)
	if !bytes.Equal(stored, computed[:]) {
		return fmt.Errorf("checksum mismatch")
	}

	return nil
}

// isEmpty reports whether db holds no keys.
func isEmpty(db *storage.Storage) (bool, error) {
	empty := true

	err := db.Iterate(func(_, _ []byte) error {
		empty = false
		return storage.ErrStop
	})

	return empty, err
}
