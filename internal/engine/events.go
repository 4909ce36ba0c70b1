package engine

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"Baguette/internal/amount"
	"Baguette/internal/identity"
	"Baguette/internal/storage"
)

// Key prefixes for storage.
var (
	prefixEvent = []byte("e:")        // e:<seq> -> encoded event
	eventSeqKey = []byte("m:eventSeq") // next event sequence number
)

// EventKind identifies what an event records.
type EventKind uint8

const (
	// ContestStarted records a new contest and its commitment count.
	ContestStarted EventKind = iota + 1
	// FlagSolved records a paid solve: solver, contest, slot, rank and reward.
	FlagSolved
	// PrizePoolDeposited records funds added to the prize pool.
	PrizePoolDeposited
)

func (k EventKind) String() string {
	switch k {
	case ContestStarted:
		return "ContestStarted"
	case FlagSolved:
		return "FlagSolved"
	case PrizePoolDeposited:
		return "PrizePoolDeposited"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one entry of the append-only event log.
// Fields that do not apply to Kind are zero.
type Event struct {
	Seq             uint64           // Seq is the position in the log, starting at 0
	Kind            EventKind        // Kind selects which fields are meaningful
	At              time.Time        // At is when the event was recorded
	ContestID       uint64           // ContestID is set for ContestStarted and FlagSolved
	CommitmentCount uint32           // CommitmentCount is set for ContestStarted
	Solver          identity.Address // Solver is set for FlagSolved
	Slot            uint32           // Slot is set for FlagSolved
	Rank            uint32           // Rank is set for FlagSolved
	Amount          *uint256.Int     // Amount is the reward (FlagSolved) or deposit (PrizePoolDeposited)
}

// eventSize is the encoded size of an event record.
// Format: kind u8 + at i64 + contest u64 + count u32 + solver [32] + slot u32 + rank u32 + amount [32]
const eventSize = 1 + 8 + 8 + 4 + identity.Size + 4 + 4 + amount.Size

// appendEvent assigns the next sequence number to ev and stages it.
func appendEvent(rw storage.ReadWriter, ev Event) (Event, error) {
	seq, err := readUint64(rw, eventSeqKey)
	if err != nil {
		return Event{}, fmt.Errorf("read event sequence:\n%w", err)
	}

	ev.Seq = seq
	if ev.Amount == nil {
		ev.Amount = amount.Zero()
	}

	if err := rw.Set(makeEventKey(seq), encodeEvent(ev)); err != nil {
		return Event{}, fmt.Errorf("write event %d:\n%w", seq, err)
	}

	if err := rw.Set(eventSeqKey, binary.BigEndian.AppendUint64(nil, seq+1)); err != nil {
		return Event{}, fmt.Errorf("write event sequence:\n%w", err)
	}

	return ev, nil
}

// listEvents returns up to limit events starting at sequence from.
// A limit of 0 means no limit.
func listEvents(r storage.Reader, from uint64, limit int) ([]Event, error) {
	var events []Event

	err := r.IteratePrefixFrom(prefixEvent, makeEventKey(from), func(key, value []byte) error {
		seq := binary.BigEndian.Uint64(key[len(prefixEvent):])

		ev, err := decodeEvent(seq, value)
		if err != nil {
			return err
		}

		events = append(events, ev)
		if limit > 0 && len(events) >= limit {
			return storage.ErrStop
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan events:\n%w", err)
	}

	return events, nil
}

// encodeEvent serializes an event; Seq is carried by the key.
func encodeEvent(ev Event) []byte {
	buf := make([]byte, 0, eventSize)

	buf = append(buf, byte(ev.Kind))
	buf = binary.BigEndian.AppendUint64(buf, uint64(ev.At.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, ev.ContestID)
	buf = binary.BigEndian.AppendUint32(buf, ev.CommitmentCount)
	buf = append(buf, ev.Solver[:]...)
	buf = binary.BigEndian.AppendUint32(buf, ev.Slot)
	buf = binary.BigEndian.AppendUint32(buf, ev.Rank)
	buf = append(buf, amount.Encode(ev.Amount)...)

	return buf
}

// decodeEvent is the inverse of encodeEvent.
func decodeEvent(seq uint64, data []byte) (Event, error) {
	if len(data) != eventSize {
		return Event{}, fmt.Errorf("event %d: invalid length %d", seq, len(data))
	}

	ev := Event{Seq: seq, Kind: EventKind(data[0])}
	off := 1

	ev.At = time.Unix(0, int64(binary.BigEndian.Uint64(data[off:]))).UTC()
	off += 8

	ev.ContestID = binary.BigEndian.Uint64(data[off:])
	off += 8

	ev.CommitmentCount = binary.BigEndian.Uint32(data[off:])
	off += 4

	copy(ev.Solver[:], data[off:off+identity.Size])
	off += identity.Size

	ev.Slot = binary.BigEndian.Uint32(data[off:])
	off += 4

	ev.Rank = binary.BigEndian.Uint32(data[off:])
	off += 4

	value, err := amount.Decode(data[off : off+amount.Size])
	if err != nil {
		return Event{}, fmt.Errorf("event %d:\n%w", seq, err)
	}
	ev.Amount = value

	return ev, nil
}

// makeEventKey creates the storage key for event seq.
func makeEventKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), prefixEvent...), seq)
}

// readUint64 reads a big-endian counter; a missing key reads as zero.
func readUint64(r storage.Reader, key []byte) (uint64, error) {
	data, err := r.Get(key)
	if err != nil {
		return 0, err
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("invalid counter length: %d", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}
