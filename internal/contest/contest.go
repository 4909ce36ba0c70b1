// Package contest implements one leaderboard: its flag commitments, the
// winners in admission order and the set of identities already paid.
//
// Contest state lives in storage. Mutations take a storage.ReadWriter so the
// caller decides the transaction they belong to; queries accept any Reader.
package contest

import (
	"encoding/binary"
	"fmt"

	"Baguette/internal/commitment"
	"Baguette/internal/fault"
	"Baguette/internal/identity"
	"Baguette/internal/storage"
)

// Key prefixes for storage.
var (
	prefixContest = []byte("c:") // c:<id> -> capacity u32 || commitments
	prefixCount   = []byte("n:") // n:<id> -> winners length u32
	prefixWinner  = []byte("w:") // w:<id><rank> -> address
	prefixClaim   = []byte("k:") // k:<id><address> -> rank u32
)

// State is the lifecycle state of a contest.
type State uint8

const (
	// Open contests accept new winners.
	Open State = iota
	// Full contests have admitted capacity winners. Queries remain available.
	Full
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Contest is a handle on one stored leaderboard.
// Commitments and capacity are immutable, so the handle can be cached.
type Contest struct {
	id          uint64
	capacity    uint32
	commitments []commitment.Hash
}

// Create stores a new contest with the given commitments and capacity.
func Create(rw storage.ReadWriter, id uint64, commitments []commitment.Hash, capacity uint32) (*Contest, error) {
	if len(commitments) == 0 {
		return nil, fault.ErrEmptyCommitments
	}

	if capacity == 0 {
		return nil, fmt.Errorf("contest capacity must be positive")
	}

	key := makeContestKey(id)

	existing, err := rw.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read contest %d:\n%w", id, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("contest %d already exists", id)
	}

	c := &Contest{
		id:          id,
		capacity:    capacity,
		commitments: append([]commitment.Hash(nil), commitments...),
	}

	if err := rw.Set(key, c.encode()); err != nil {
		return nil, fmt.Errorf("write contest %d:\n%w", id, err)
	}

	return c, nil
}

// Load reads a stored contest.
// Fails with fault.UnknownContestError if the id was never created.
func Load(r storage.Reader, id uint64) (*Contest, error) {
	data, err := r.Get(makeContestKey(id))
	if err != nil {
		return nil, fmt.Errorf("read contest %d:\n%w", id, err)
	}
	if data == nil {
		return nil, &fault.UnknownContestError{ContestID: id}
	}

	return decode(id, data)
}

// ID returns the contest identifier.
func (c *Contest) ID() uint64 {
	return c.id
}

// Capacity returns the maximum number of winners.
func (c *Contest) Capacity() uint32 {
	return c.capacity
}

// CommitmentCount returns the number of flag slots.
func (c *Contest) CommitmentCount() int {
	return len(c.commitments)
}

// Commitments returns a copy of the flag commitments in slot order.
func (c *Contest) Commitments() []commitment.Hash {
	return append([]commitment.Hash(nil), c.commitments...)
}

// Verify reports whether flag matches the commitment at slot.
// An out-of-range slot never matches. Verify has no side effects.
func (c *Contest) Verify(slot uint32, flag string) bool {
	if int64(slot) >= int64(len(c.commitments)) {
		return false
	}

	return c.commitments[slot].Matches(flag)
}

// Admit appends who to the leaderboard and returns the assigned rank.
//
// Fails with LeaderboardFullError once capacity winners exist and with
// AlreadyClaimedError if who already won this contest, whichever slot it solved.
func (c *Contest) Admit(rw storage.ReadWriter, who identity.Address) (uint32, error) {
	length, err := c.WinnersLength(rw)
	if err != nil {
		return 0, err
	}

	if length >= c.capacity {
		return 0, &fault.LeaderboardFullError{ContestID: c.id}
	}

	claimed, err := c.HasClaimed(rw, who)
	if err != nil {
		return 0, err
	}
	if claimed {
		return 0, &fault.AlreadyClaimedError{ContestID: c.id, Identity: who}
	}

	rank := length

	if err := rw.Set(makeWinnerKey(c.id, rank), who[:]); err != nil {
		return 0, fmt.Errorf("write winner:\n%w", err)
	}

	if err := rw.Set(makeClaimKey(c.id, who), encodeUint32(rank)); err != nil {
		return 0, fmt.Errorf("write claim:\n%w", err)
	}

	if err := rw.Set(makeCountKey(c.id), encodeUint32(rank+1)); err != nil {
		return 0, fmt.Errorf("write winners length:\n%w", err)
	}

	return rank, nil
}

// WinnerAt returns the identity admitted at rank.
func (c *Contest) WinnerAt(r storage.Reader, rank uint32) (identity.Address, error) {
	length, err := c.WinnersLength(r)
	if err != nil {
		return identity.Address{}, err
	}

	if rank >= length {
		return identity.Address{}, &fault.RankOutOfRangeError{Rank: rank, Length: length}
	}

	data, err := r.Get(makeWinnerKey(c.id, rank))
	if err != nil {
		return identity.Address{}, fmt.Errorf("read winner %d:\n%w", rank, err)
	}

	return identity.FromBytes(data)
}

// WinnersLength returns the number of admitted winners.
func (c *Contest) WinnersLength(r storage.Reader) (uint32, error) {
	data, err := r.Get(makeCountKey(c.id))
	if err != nil {
		return 0, fmt.Errorf("read winners length:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	return decodeUint32(data)
}

// HasClaimed reports whether who has already been paid in this contest.
func (c *Contest) HasClaimed(r storage.Reader, who identity.Address) (bool, error) {
	data, err := r.Get(makeClaimKey(c.id, who))
	if err != nil {
		return false, fmt.Errorf("read claim:\n%w", err)
	}

	return data != nil, nil
}

// Winners returns every winner in rank order.
func (c *Contest) Winners(r storage.Reader) ([]identity.Address, error) {
	var winners []identity.Address

	err := r.IteratePrefix(makeWinnerPrefix(c.id), func(_, value []byte) error {
		who, err := identity.FromBytes(value)
		if err != nil {
			return err
		}

		winners = append(winners, who)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan winners:\n%w", err)
	}

	return winners, nil
}

// State returns Full once the leaderboard holds capacity winners.
func (c *Contest) State(r storage.Reader) (State, error) {
	length, err := c.WinnersLength(r)
	if err != nil {
		return Open, err
	}

	if length >= c.capacity {
		return Full, nil
	}

	return Open, nil
}

// encode serializes the immutable part of the contest.
// Format: u32 capacity (big-endian) + 32-byte commitments back to back.
func (c *Contest) encode() []byte {
	return append(encodeUint32(c.capacity), commitment.Concat(c.commitments)...)
}

// decode is the inverse of encode.
func decode(id uint64, data []byte) (*Contest, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("contest %d record too short: %d bytes", id, len(data))
	}

	capacity := binary.BigEndian.Uint32(data[:4])

	commitments, err := commitment.Split(data[4:])
	if err != nil {
		return nil, fmt.Errorf("decode contest %d:\n%w", id, err)
	}

	return &Contest{id: id, capacity: capacity, commitments: commitments}, nil
}

// makeContestKey creates the storage key for a contest record.
func makeContestKey(id uint64) []byte {
	return appendUint64(append([]byte(nil), prefixContest...), id)
}

// makeCountKey creates the storage key for a winners length.
func makeCountKey(id uint64) []byte {
	return appendUint64(append([]byte(nil), prefixCount...), id)
}

// makeWinnerPrefix creates the prefix shared by all winners of a contest.
func makeWinnerPrefix(id uint64) []byte {
	return appendUint64(append([]byte(nil), prefixWinner...), id)
}

// makeWinnerKey creates the storage key for the winner at rank.
// Ranks are big-endian so a prefix scan returns winners in rank order.
func makeWinnerKey(id uint64, rank uint32) []byte {
	return binary.BigEndian.AppendUint32(makeWinnerPrefix(id), rank)
}

// makeClaimKey creates the storage key for a claim marker.
func makeClaimKey(id uint64, who identity.Address) []byte {
	key := appendUint64(append([]byte(nil), prefixClaim...), id)
	return append(key, who[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(b, v)
}

func encodeUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func decodeUint32(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("invalid u32 length: %d", len(data))
	}

	return binary.BigEndian.Uint32(data), nil
}
