package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond
)

// KeyValue represents a key-value pair for batch operations.
type KeyValue struct {
	Key   []byte // Key is the key to store
	Value []byte // Value is the value to store
}

// Reader is the read side shared by the store, transactions and views.
type Reader interface {
	// Get returns the value for key, or nil if the key does not exist.
	Get(key []byte) ([]byte, error)
	// IteratePrefix visits every pair whose key starts with prefix, in key order.
	IteratePrefix(prefix []byte, fn func(key, value []byte) error) error
	// IteratePrefixFrom is IteratePrefix starting at the first key >= start.
	IteratePrefixFrom(prefix, start []byte, fn func(key, value []byte) error) error
}

// ErrStop can be returned by an iteration callback to end the scan early
// without reporting an error.
var ErrStop = errors.New("stop iteration")

// ReadWriter is a Reader that can also stage writes.
type ReadWriter interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Storage is a key-value store backed by Pebble.
//
// Plain Set/Delete calls skip the WAL fsync (NoSync) and a background goroutine
// periodically syncs it. Update runs read-modify-write transactions committed
// with a synchronous WAL write. All writes share one mutex, so no write is ever
// observed half way through an Update.
type Storage struct {
	db       *pebble.DB    // db is the underlying Pebble database
	writeMu  sync.Mutex    // writeMu serializes every write path
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
}

// New creates a new Storage instance at the given path.
func New(path string) (*Storage, error) {
	return open(path, nil)
}

// NewMemory creates a Storage on an in-memory filesystem.
// Nothing survives Close; used by tests and dry runs.
func NewMemory() (*Storage, error) {
	return open("", vfs.NewMem())
}

// open opens the Pebble database and starts the WAL sync loop.
func open(path string, fs vfs.FS) (*Storage, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(32 << 20), // 32 MB cache
		MemTableSize:                16 << 20,                  // 16 MB memtable
		MemTableStopWritesThreshold: 2,
		FS:                          fs,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// Get retrieves the value for the given key.
// Returns nil if the key does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	return get(s.db, key)
}

// Set stores a single key-value pair.
// It waits for any running Update so single writes never land inside one.
func (s *Storage) Set(key, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Set(key, value, pebble.NoSync)
}

// Delete removes a single key, serialized with Update like Set.
func (s *Storage) Delete(key []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Delete(key, pebble.NoSync)
}

// SetBatch atomically stores multiple key-value pairs.
// Either all pairs are written or none.
func (s *Storage) SetBatch(pairs []KeyValue) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, kv := range pairs {
		if err := batch.Set(kv.Key, kv.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// Iterate calls fn for each key-value pair in the database, in key order.
func (s *Storage) Iterate(fn func(key, value []byte) error) error {
	return iterate(s.db, nil, fn)
}

// IteratePrefix calls fn for each key-value pair with the given prefix.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	return iterate(s.db, prefix, fn)
}

// IteratePrefixFrom calls fn for each pair under prefix whose key is >= start.
func (s *Storage) IteratePrefixFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	return iterateRange(s.db, start, prefixUpperBound(prefix), fn)
}

// Update runs fn inside a read-write transaction.
//
// Reads made through txn observe the writes staged earlier in the same
// transaction. If fn returns an error nothing is written; otherwise every
// staged write is committed in a single atomic batch. Transactions never
// interleave: a second Update waits until the first has committed or aborted.
func (s *Storage) Update(fn func(txn *Txn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	txn := &Txn{batch: batch}
	if err := fn(txn); err != nil {
		return err
	}

	if batch.Empty() {
		return nil
	}

	return batch.Commit(pebble.Sync)
}

// View runs fn against a consistent point-in-time snapshot of the store.
func (s *Storage) View(fn func(r Reader) error) error {
	snap := s.db.NewSnapshot()
	defer snap.Close()

	return fn(&view{snap: snap})
}

// Close stops the sync goroutine and closes the database.
// It performs a final sync before closing to ensure durability.
func (s *Storage) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (s *Storage) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Storage) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}

// Txn is a read-write transaction handed to Update callbacks.
// It is only valid for the duration of the callback.
type Txn struct {
	batch *pebble.Batch
}

// Get reads key, seeing writes staged earlier in this transaction.
func (t *Txn) Get(key []byte) ([]byte, error) {
	return get(t.batch, key)
}

// Set stages a write.
func (t *Txn) Set(key, value []byte) error {
	return t.batch.Set(key, value, nil)
}

// Delete stages a deletion.
func (t *Txn) Delete(key []byte) error {
	return t.batch.Delete(key, nil)
}

// IteratePrefix visits committed and staged pairs under prefix.
func (t *Txn) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	return iterate(t.batch, prefix, fn)
}

// IteratePrefixFrom visits committed and staged pairs under prefix from start.
func (t *Txn) IteratePrefixFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	return iterateRange(t.batch, start, prefixUpperBound(prefix), fn)
}

// view is a read-only Reader over a Pebble snapshot.
type view struct {
	snap *pebble.Snapshot
}

func (v *view) Get(key []byte) ([]byte, error) {
	return get(v.snap, key)
}

func (v *view) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	return iterate(v.snap, prefix, fn)
}

func (v *view) IteratePrefixFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	return iterateRange(v.snap, start, prefixUpperBound(prefix), fn)
}

// get reads key from any Pebble reader and returns a copy of the value.
func get(r pebble.Reader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// The value is only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// iterate scans r in key order, restricted to prefix when it is non-empty.
func iterate(r pebble.Reader, prefix []byte, fn func(key, value []byte) error) error {
	if len(prefix) == 0 {
		return iterateRange(r, nil, nil, fn)
	}

	return iterateRange(r, prefix, prefixUpperBound(prefix), fn)
}

// iterateRange scans keys in [lower, upper). A nil bound is unbounded.
// A callback returning ErrStop ends the scan cleanly.
func iterateRange(r pebble.Reader, lower, upper []byte, fn func(key, value []byte) error) error {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}
