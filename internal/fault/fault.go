// Package fault defines the error kinds reported by the reward engine.
//
// Every failure is scoped to the call that produced it. Kinds that carry an
// offending id or identity are struct types matched with errors.As; the rest
// are sentinels matched with errors.Is.
package fault

import (
	"errors"
	"fmt"

	"Baguette/internal/identity"
)

var (
	// ErrInvalidFlag means the candidate flag does not match the commitment
	// at the requested slot, or the slot does not exist.
	ErrInvalidFlag = errors.New("invalid flag")

	// ErrInsufficientPrizePool means the shared prize pool cannot cover a reward.
	ErrInsufficientPrizePool = errors.New("insufficient prize pool")

	// ErrEmptyCommitments means a contest was created without any flag commitment.
	ErrEmptyCommitments = errors.New("contest requires at least one flag commitment")
)

// UnknownContestError reports a contest id that was never allocated.
type UnknownContestError struct {
	ContestID uint64
}

func (e *UnknownContestError) Error() string {
	return fmt.Sprintf("unknown contest %d", e.ContestID)
}

// LeaderboardFullError reports a contest that already admitted every winner it can hold.
type LeaderboardFullError struct {
	ContestID uint64
}

func (e *LeaderboardFullError) Error() string {
	return fmt.Sprintf("leaderboard full for contest %d", e.ContestID)
}

// AlreadyClaimedError reports an identity that already won the contest.
type AlreadyClaimedError struct {
	ContestID uint64
	Identity  identity.Address
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("%s already claimed in contest %d", e.Identity, e.ContestID)
}

// RankOutOfRangeError reports a rank at or beyond the length of the indexed sequence.
type RankOutOfRangeError struct {
	Rank   uint32
	Length uint32
}

func (e *RankOutOfRangeError) Error() string {
	return fmt.Sprintf("rank %d out of range (length %d)", e.Rank, e.Length)
}

// UnauthorizedSenderError reports an identity other than the authorized payer
// trying to move ledger funds.
type UnauthorizedSenderError struct {
	Identity identity.Address
}

func (e *UnauthorizedSenderError) Error() string {
	return fmt.Sprintf("unauthorized sender %s", e.Identity)
}

// InsufficientBalanceError reports an authorized transfer larger than the sender's balance.
type InsufficientBalanceError struct {
	Identity identity.Address
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s", e.Identity)
}

// Kind returns a stable short name for err, used in API responses and metrics.
// Returns "internal" for errors that are not engine error kinds.
func Kind(err error) string {
	var (
		unknown      *UnknownContestError
		full         *LeaderboardFullError
		claimed      *AlreadyClaimedError
		rank         *RankOutOfRangeError
		unauthorized *UnauthorizedSenderError
		balance      *InsufficientBalanceError
	)

	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidFlag):
		return "invalid_flag"
	case errors.Is(err, ErrInsufficientPrizePool):
		return "insufficient_prize_pool"
	case errors.Is(err, ErrEmptyCommitments):
		return "empty_commitments"
	case errors.As(err, &unknown):
		return "unknown_contest"
	case errors.As(err, &full):
		return "leaderboard_full"
	case errors.As(err, &claimed):
		return "already_claimed"
	case errors.As(err, &rank):
		return "rank_out_of_range"
	case errors.As(err, &unauthorized):
		return "unauthorized_sender"
	case errors.As(err, &balance):
		return "insufficient_balance"
	default:
		return "internal"
	}
}
