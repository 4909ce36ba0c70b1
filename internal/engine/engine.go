// Package engine is the contest registry and payout orchestrator.
//
// The engine owns every contest, allocates contest ids, verifies flag
// submissions, admits winners and pays them from the shared prize pool through
// the restricted ledger. Each command runs as one storage transaction: it
// either applies all of its effects or none of them.
package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"

	"Baguette/internal/amount"
	"Baguette/internal/commitment"
	"Baguette/internal/contest"
	"Baguette/internal/fault"
	"Baguette/internal/identity"
	"Baguette/internal/ledger"
	"Baguette/internal/logger"
	"Baguette/internal/metrics"
	"Baguette/internal/reward"
	"Baguette/internal/storage"
)

// nextContestKey holds the next contest id to allocate.
var nextContestKey = []byte("m:nextContest")

// distributorLabel derives the engine's payer address from the operator.
const distributorLabel = "baguette/distributor"

// Config holds the process-wide engine parameters.
type Config struct {
	// Operator is the identity allowed to start contests and fund the pool
	// through the API. The distributor address is derived from it.
	Operator identity.Address

	// Schedule is the reward per rank. Its length is the leaderboard capacity.
	Schedule reward.Schedule

	// Clock stamps events. Defaults to the real clock.
	Clock clockwork.Clock
}

// Engine routes submissions to contests and drives payouts.
// It is safe for concurrent use; commands are serialized by storage.
type Engine struct {
	db       *storage.Storage
	schedule reward.Schedule
	ledger   *ledger.Ledger // ledger pays out as the distributor
	operator identity.Address
	clock    clockwork.Clock
}

// Solve is the outcome of an accepted flag submission.
type Solve struct {
	Rank   uint32       // Rank is the 0-based leaderboard position
	Reward *uint256.Int // Reward is the amount credited to the solver
	Event  Event        // Event is the FlagSolved entry appended to the log
}

// ContestInfo summarizes one contest.
type ContestInfo struct {
	ID              uint64
	CommitmentCount int
	WinnersLength   uint32
	Capacity        uint32
	State           contest.State
}

// New creates an engine over db.
func New(db *storage.Storage, cfg Config) (*Engine, error) {
	if cfg.Schedule.Capacity() == 0 {
		return nil, fmt.Errorf("reward schedule is empty")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := &Engine{
		db:       db,
		schedule: cfg.Schedule,
		ledger:   ledger.New(identity.Derive(cfg.Operator, distributorLabel)),
		operator: cfg.Operator,
		clock:    clock,
	}

	if remaining, err := e.PrizePoolRemaining(); err == nil {
		metrics.PrizePoolRemaining.Set(amount.Float(remaining))
	}

	return e, nil
}

// Operator returns the operator identity.
func (e *Engine) Operator() identity.Address {
	return e.operator
}

// Distributor returns the authorized payer identity of the ledger.
func (e *Engine) Distributor() identity.Address {
	return e.ledger.Payer()
}

// Bootstrap funds the prize pool and creates contest 0 on a fresh store.
// It returns false without changing anything if a contest already exists.
func (e *Engine) Bootstrap(commitments []commitment.Hash, initialPool *uint256.Int) (bool, error) {
	var started bool

	err := e.db.Update(func(txn *storage.Txn) error {
		next, err := readUint64(txn, nextContestKey)
		if err != nil {
			return fmt.Errorf("read contest counter:\n%w", err)
		}
		if next > 0 {
			return nil
		}

		if initialPool != nil && !initialPool.IsZero() {
			if _, err := e.deposit(txn, initialPool); err != nil {
				return err
			}
		}

		if _, _, err := e.startContest(txn, commitments); err != nil {
			return err
		}

		started = true

		return nil
	})
	if err != nil {
		return false, err
	}

	if started {
		metrics.ContestsStartedTotal.Inc()
		e.refreshPoolGauge()
		logger.Info("engine bootstrapped",
			"commitments", len(commitments),
			"pool", amount.Format(initialPoolOrZero(initialPool)),
			"distributor", e.ledger.Payer(),
		)
	}

	return started, nil
}

// StartContest creates a contest and returns its id.
// Ids are allocated sequentially from 0 and never reused.
func (e *Engine) StartContest(commitments []commitment.Hash) (uint64, error) {
	var id uint64

	err := e.db.Update(func(txn *storage.Txn) error {
		var err error
		id, _, err = e.startContest(txn, commitments)
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.ContestsStartedTotal.Inc()
	logger.Info("contest started", "contest", id, "commitments", len(commitments))

	return id, nil
}

// startContest allocates an id, stores the contest and logs ContestStarted.
func (e *Engine) startContest(txn *storage.Txn, commitments []commitment.Hash) (uint64, Event, error) {
	id, err := readUint64(txn, nextContestKey)
	if err != nil {
		return 0, Event{}, fmt.Errorf("read contest counter:\n%w", err)
	}

	if _, err := contest.Create(txn, id, commitments, e.schedule.Capacity()); err != nil {
		return 0, Event{}, err
	}

	if err := txn.Set(nextContestKey, binary.BigEndian.AppendUint64(nil, id+1)); err != nil {
		return 0, Event{}, fmt.Errorf("write contest counter:\n%w", err)
	}

	ev, err := appendEvent(txn, Event{
		Kind:            ContestStarted,
		At:              e.clock.Now(),
		ContestID:       id,
		CommitmentCount: uint32(len(commitments)),
	})
	if err != nil {
		return 0, Event{}, err
	}

	return id, ev, nil
}

// SubmitFlag checks flag against the commitment at slot of contest contestID
// and, if it matches, admits caller at the next rank and pays the reward.
//
// Failures: UnknownContestError, fault.ErrInvalidFlag (wrong flag or slot),
// LeaderboardFullError, AlreadyClaimedError, fault.ErrInsufficientPrizePool.
// On any failure no state changes.
func (e *Engine) SubmitFlag(caller identity.Address, contestID uint64, slot uint32, flag string) (Solve, error) {
	var solve Solve

	err := e.db.Update(func(txn *storage.Txn) error {
		c, err := contest.Load(txn, contestID)
		if err != nil {
			return err
		}

		if !c.Verify(slot, flag) {
			return fault.ErrInvalidFlag
		}

		rank, err := c.Admit(txn, caller)
		if err != nil {
			return err
		}

		prize, err := e.schedule.RewardFor(rank)
		if err != nil {
			return err
		}

		if err := reward.Debit(txn, prize); err != nil {
			return err
		}

		if err := e.ledger.CreditPayout(txn, e.ledger.Payer(), caller, prize); err != nil {
			return fmt.Errorf("credit payout:\n%w", err)
		}

		ev, err := appendEvent(txn, Event{
			Kind:      FlagSolved,
			At:        e.clock.Now(),
			ContestID: contestID,
			Solver:    caller,
			Slot:      slot,
			Rank:      rank,
			Amount:    prize,
		})
		if err != nil {
			return err
		}

		solve = Solve{Rank: rank, Reward: prize.Clone(), Event: ev}

		return nil
	})

	metrics.SubmissionsTotal.WithLabelValues(fault.Kind(err)).Inc()

	if err != nil {
		logger.Debug("submission rejected",
			"contest", contestID,
			"slot", slot,
			"solver", caller,
			"reason", fault.Kind(err),
		)
		return Solve{}, err
	}

	metrics.RewardsPaidTotal.Add(amount.Float(solve.Reward))
	e.refreshPoolGauge()

	logger.Info("flag solved",
		"contest", contestID,
		"slot", slot,
		"rank", solve.Rank,
		"solver", caller,
		"reward", amount.Format(solve.Reward),
	)

	return solve, nil
}

// DepositPrizePool adds value to the shared prize pool.
func (e *Engine) DepositPrizePool(value *uint256.Int) (Event, error) {
	var ev Event

	err := e.db.Update(func(txn *storage.Txn) error {
		var err error
		ev, err = e.deposit(txn, value)
		return err
	})
	if err != nil {
		return Event{}, err
	}

	e.refreshPoolGauge()
	logger.Info("prize pool funded", "amount", amount.Format(value))

	return ev, nil
}

// deposit stages a pool deposit and its event.
func (e *Engine) deposit(txn *storage.Txn, value *uint256.Int) (Event, error) {
	if err := reward.Deposit(txn, value); err != nil {
		return Event{}, err
	}

	return appendEvent(txn, Event{
		Kind:   PrizePoolDeposited,
		At:     e.clock.Now(),
		Amount: value,
	})
}

// Transfer moves reward tokens on behalf of from.
// Only the distributor may send; every other sender gets UnauthorizedSenderError.
func (e *Engine) Transfer(from, to identity.Address, value *uint256.Int) error {
	return e.db.Update(func(txn *storage.Txn) error {
		return e.ledger.Transfer(txn, from, to, value)
	})
}

// WinnerAt returns the identity admitted at rank in contest contestID.
func (e *Engine) WinnerAt(contestID uint64, rank uint32) (identity.Address, error) {
	var who identity.Address

	err := e.db.View(func(r storage.Reader) error {
		c, err := contest.Load(r, contestID)
		if err != nil {
			return err
		}

		who, err = c.WinnerAt(r, rank)
		return err
	})

	return who, err
}

// HasClaimed reports whether who already won contest contestID.
func (e *Engine) HasClaimed(contestID uint64, who identity.Address) (bool, error) {
	var claimed bool

	err := e.db.View(func(r storage.Reader) error {
		c, err := contest.Load(r, contestID)
		if err != nil {
			return err
		}

		claimed, err = c.HasClaimed(r, who)
		return err
	})

	return claimed, err
}

// WinnersLength returns the number of winners of contest contestID.
func (e *Engine) WinnersLength(contestID uint64) (uint32, error) {
	var length uint32

	err := e.db.View(func(r storage.Reader) error {
		c, err := contest.Load(r, contestID)
		if err != nil {
			return err
		}

		length, err = c.WinnersLength(r)
		return err
	})

	return length, err
}

// Winners returns all winners of contest contestID in rank order.
func (e *Engine) Winners(contestID uint64) ([]identity.Address, error) {
	var winners []identity.Address

	err := e.db.View(func(r storage.Reader) error {
		c, err := contest.Load(r, contestID)
		if err != nil {
			return err
		}

		winners, err = c.Winners(r)
		return err
	})

	return winners, err
}

// Contest returns a summary of contest contestID.
func (e *Engine) Contest(contestID uint64) (ContestInfo, error) {
	var info ContestInfo

	err := e.db.View(func(r storage.Reader) error {
		c, err := contest.Load(r, contestID)
		if err != nil {
			return err
		}

		length, err := c.WinnersLength(r)
		if err != nil {
			return err
		}

		state, err := c.State(r)
		if err != nil {
			return err
		}

		info = ContestInfo{
			ID:              c.ID(),
			CommitmentCount: c.CommitmentCount(),
			WinnersLength:   length,
			Capacity:        c.Capacity(),
			State:           state,
		}

		return nil
	})

	return info, err
}

// ContestCount returns how many contests have been started.
func (e *Engine) ContestCount() (uint64, error) {
	return readUint64(e.db, nextContestKey)
}

// RewardSchedule returns the reward per rank.
func (e *Engine) RewardSchedule() []*uint256.Int {
	return e.schedule.Amounts()
}

// Capacity returns the leaderboard capacity of new contests.
func (e *Engine) Capacity() uint32 {
	return e.schedule.Capacity()
}

// PrizePerContest returns what one full leaderboard pays out.
func (e *Engine) PrizePerContest() *uint256.Int {
	return e.schedule.Total()
}

// PrizePoolRemaining returns the funds left in the shared prize pool.
func (e *Engine) PrizePoolRemaining() (*uint256.Int, error) {
	return reward.Remaining(e.db)
}

// TokenBalanceOf returns the reward token balance of who.
func (e *Engine) TokenBalanceOf(who identity.Address) (*uint256.Int, error) {
	return ledger.BalanceOf(e.db, who)
}

// TotalSupply returns the total reward tokens issued.
func (e *Engine) TotalSupply() (*uint256.Int, error) {
	return ledger.TotalSupply(e.db)
}

// Events returns up to limit events starting at sequence from, in order.
// A limit of 0 returns everything from that point.
func (e *Engine) Events(from uint64, limit int) ([]Event, error) {
	var events []Event

	err := e.db.View(func(r storage.Reader) error {
		var err error
		events, err = listEvents(r, from, limit)
		return err
	})

	return events, err
}

// refreshPoolGauge publishes the current pool to metrics.
func (e *Engine) refreshPoolGauge() {
	remaining, err := e.PrizePoolRemaining()
	if err != nil {
		logger.Warn("read prize pool for metrics", "error", err)
		return
	}

	metrics.PrizePoolRemaining.Set(amount.Float(remaining))
}

// IsRejection reports whether err is an engine error kind rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return err != nil && fault.Kind(err) != "internal"
}

func initialPoolOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return amount.Zero()
	}

	return v
}
