package api

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"Baguette/internal/logger"
	"Baguette/internal/storage"
)

const (
	// defaultReplayWindow is how long a transaction hash is remembered and how
	// far a nonce timestamp may drift from the server clock.
	defaultReplayWindow = 10 * time.Minute

	// cleanupInterval is the interval between cleanup runs.
	cleanupInterval = 30 * time.Second
)

// prefixSeen keys accepted transaction hashes: t:<hash> -> first-seen unix nano.
var prefixSeen = []byte("t:")

// Dedup tracks recently accepted transaction hashes to reject replays.
// Hashes are kept in storage so a restart inside the window does not reopen
// it. Entries expire after the window; older replays are caught by the nonce check.
type Dedup struct {
	db     *storage.Storage
	window int64 // window in nanoseconds
	clock  clockwork.Clock
	stop   chan struct{} // stop signals the cleanup goroutine to stop
	wg     sync.WaitGroup
}

// NewDedup creates a replay tracker over db with the given window.
func NewDedup(db *storage.Storage, clock clockwork.Clock, window time.Duration) *Dedup {
	if window <= 0 {
		window = defaultReplayWindow
	}

	d := &Dedup{
		db:     db,
		window: int64(window),
		clock:  clock,
		stop:   make(chan struct{}),
	}

	d.startCleanup()

	return d
}

// Check returns true if hash has not been seen within the window.
// If new, the hash is recorded before returning.
func (d *Dedup) Check(hash [32]byte) (bool, error) {
	now := d.clock.Now().UnixNano()
	key := makeSeenKey(hash)
	fresh := false

	err := d.db.Update(func(txn *storage.Txn) error {
		data, err := txn.Get(key)
		if err != nil {
			return err
		}

		if data != nil {
			ts, err := decodeStamp(data)
			if err != nil {
				return err
			}
			if now-ts < d.window {
				return nil
			}
		}

		fresh = true

		return txn.Set(key, encodeStamp(now))
	})
	if err != nil {
		return false, fmt.Errorf("record tx hash:\n%w", err)
	}

	return fresh, nil
}

// Fresh reports whether a nonce, read as a unix millisecond timestamp, lies
// within the window around the current time.
func (d *Dedup) Fresh(nonce uint64) bool {
	now := d.clock.Now().UnixMilli()
	window := d.window / int64(time.Millisecond)

	if nonce > uint64(now+window) {
		return false
	}

	return int64(nonce) >= now-window
}

// Len returns the number of remembered hashes.
func (d *Dedup) Len() (int, error) {
	n := 0

	err := d.db.View(func(r storage.Reader) error {
		return r.IteratePrefix(prefixSeen, func(_, _ []byte) error {
			n++
			return nil
		})
	})

	return n, err
}

// Close stops the cleanup goroutine.
func (d *Dedup) Close() {
	close(d.stop)
	d.wg.Wait()
}

// startCleanup starts the background cleanup goroutine.
func (d *Dedup) startCleanup() {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := d.clock.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				if err := d.cleanup(); err != nil {
					logger.Warn("replay cleanup failed", "error", err)
				}
			case <-d.stop:
				return
			}
		}
	}()
}

// cleanup removes expired hashes in one transaction.
func (d *Dedup) cleanup() error {
	now := d.clock.Now().UnixNano()

	return d.db.Update(func(txn *storage.Txn) error {
		var expired [][]byte

		err := txn.IteratePrefix(prefixSeen, func(key, value []byte) error {
			ts, err := decodeStamp(value)
			if err != nil || now-ts >= d.window {
				expired = append(expired, append([]byte(nil), key...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range expired {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		return nil
	})
}

func makeSeenKey(hash [32]byte) []byte {
	key := make([]byte, 0, len(prefixSeen)+len(hash))
	key = append(key, prefixSeen...)

	return append(key, hash[:]...)
}

func encodeStamp(ts int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(ts))
}

func decodeStamp(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid seen stamp length %d", len(data))
	}

	return int64(binary.BigEndian.Uint64(data)), nil
}
