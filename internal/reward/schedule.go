package reward

import (
	"fmt"

	"github.com/holiman/uint256"

	"Baguette/internal/amount"
	"Baguette/internal/fault"
)

// Capacity is the leaderboard capacity C of every contest under the default schedule.
const Capacity = 14

// defaultPlaces holds the default payout per rank, in whole-token decimal form.
// Non-increasing by convention; nothing enforces it.
var defaultPlaces = [Capacity]string{
	"0.05", "0.04", "0.03", "0.025", "0.02", "0.015", "0.01",
	"0.01", "0.005", "0.005", "0.005", "0.005", "0.005", "0.005",
}

// Schedule maps a leaderboard rank to its reward.
// It is immutable once built; every accessor returns copies.
type Schedule struct {
	amounts []*uint256.Int
}

// NewSchedule builds a schedule from per-rank amounts.
// Its length is the leaderboard capacity of every contest.
func NewSchedule(amounts []*uint256.Int) (Schedule, error) {
	if len(amounts) == 0 {
		return Schedule{}, fmt.Errorf("reward schedule must have at least one rank")
	}

	s := Schedule{amounts: make([]*uint256.Int, len(amounts))}
	for i, a := range amounts {
		if a == nil {
			return Schedule{}, fmt.Errorf("reward for rank %d is nil", i)
		}
		s.amounts[i] = a.Clone()
	}

	return s, nil
}

// DefaultSchedule returns the 14-rank production schedule (0.05 token for first place).
func DefaultSchedule() Schedule {
	amounts := make([]*uint256.Int, Capacity)
	for i, place := range defaultPlaces {
		v, err := amount.Parse(place)
		if err != nil {
			panic(fmt.Sprintf("default reward schedule: %v", err))
		}
		amounts[i] = v
	}

	return Schedule{amounts: amounts}
}

// Capacity returns the number of ranks, i.e. the leaderboard capacity.
func (s Schedule) Capacity() uint32 {
	return uint32(len(s.amounts))
}

// RewardFor returns the reward for a 0-based rank.
func (s Schedule) RewardFor(rank uint32) (*uint256.Int, error) {
	if rank >= s.Capacity() {
		return nil, &fault.RankOutOfRangeError{Rank: rank, Length: s.Capacity()}
	}

	return s.amounts[rank].Clone(), nil
}

// Amounts returns a copy of the full schedule in rank order.
func (s Schedule) Amounts() []*uint256.Int {
	out := make([]*uint256.Int, len(s.amounts))
	for i, a := range s.amounts {
		out[i] = a.Clone()
	}

	return out
}

// Total returns the sum paid when a contest fills up: the prize budget per contest.
func (s Schedule) Total() *uint256.Int {
	total := amount.Zero()
	for _, a := range s.amounts {
		total.Add(total, a)
	}

	return total
}
