package client

import (
	"crypto/ed25519"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"Baguette/internal/amount"
	"Baguette/internal/api"
	"Baguette/internal/commitment"
	"Baguette/internal/engine"
	"Baguette/internal/identity"
	"Baguette/internal/reward"
	"Baguette/internal/storage"
)

// node is an in-process API server for client tests.
type node struct {
	client   *Client
	operator *Wallet
	engine   *engine.Engine
	clock    *clockwork.FakeClock
}

func newNode(t *testing.T, pool string, flags ...string) *node {
	t.Helper()

	db, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	_, operatorKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	operator := WalletFromKey(operatorKey).WithClock(clock)

	eng, err := engine.New(db, engine.Config{
		Operator: operator.Address(),
		Schedule: reward.DefaultSchedule(),
		Clock:    clock,
	})
	require.NoError(t, err)

	hashes := make([]commitment.Hash, len(flags))
	for i, f := range flags {
		hashes[i] = commitment.Of(f)
	}

	initial, err := amount.Parse(pool)
	require.NoError(t, err)

	_, err = eng.Bootstrap(hashes, initial)
	require.NoError(t, err)

	s := api.New(api.Config{Store: db, Clock: clock}, eng)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Stop()
	})

	return &node{client: NewClient(srv.URL), operator: operator, engine: eng, clock: clock}
}

func (n *node) wallet() *Wallet {
	return NewWallet().WithClock(n.clock)
}

func TestNewClient_Address(t *testing.T) {
	require.Equal(t, "http://127.0.0.1:8080", NewClient("127.0.0.1:8080").baseURL)
	require.Equal(t, "https://node.example", NewClient("https://node.example/").baseURL)
}

func TestWallet_NonceIncreases(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWallet().WithClock(clock)

	a := w.nextNonce()
	b := w.nextNonce()
	require.Equal(t, a+1, b)

	clock.Advance(time.Second)
	require.Equal(t, uint64(clock.Now().UnixMilli()), w.nextNonce())
}

func TestSubmitFlag(t *testing.T) {
	n := newNode(t, "1", "baguette{one}")
	w := n.wallet()

	res, err := w.SubmitFlag(n.client, 0, 0, "baguette{one}")
	require.NoError(t, err)
	require.Equal(t, uint32(0), res.Rank)
	require.Equal(t, "0.05", amount.Format(res.Reward))

	winner, err := n.client.WinnerAt(0, 0)
	require.NoError(t, err)
	require.Equal(t, w.Address(), winner)

	winners, err := n.client.Winners(0)
	require.NoError(t, err)
	require.Equal(t, []identity.Address{w.Address()}, winners)

	claimed, err := n.client.HasClaimed(0, w.Address())
	require.NoError(t, err)
	require.True(t, claimed)

	balance, err := n.client.Balance(w.Address())
	require.NoError(t, err)
	require.Equal(t, "0.05", amount.Format(balance))

	_, err = w.SubmitFlag(n.client, 0, 0, "baguette{one}")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "already_claimed", apiErr.Kind)
}

func TestSubmitFlag_Wrong(t *testing.T) {
	n := newNode(t, "1", "baguette{one}")

	_, err := n.wallet().SubmitFlag(n.client, 0, 0, "baguette{two}")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "invalid_flag", apiErr.Kind)
}

func TestOperatorCommands(t *testing.T) {
	n := newNode(t, "1", "baguette{one}")

	id, err := n.operator.StartContest(n.client, []commitment.Hash{commitment.Of("baguette{new}")})
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	count, err := n.client.ContestCount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), count)

	info, err := n.client.Contest(1)
	require.NoError(t, err)
	require.Equal(t, "open", info.State)
	require.Equal(t, 1, info.CommitmentCount)

	require.NoError(t, n.operator.DepositPool(n.client, uint256.NewInt(5)))

	pool, err := n.client.Pool()
	require.NoError(t, err)
	require.Equal(t, "1000000000000000005", pool.Dec())

	_, err = n.wallet().StartContest(n.client, []commitment.Hash{commitment.Of("x")})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "unauthorized_sender", apiErr.Kind)
}

func TestTransfer_Rejected(t *testing.T) {
	n := newNode(t, "1", "baguette{one}")
	w := n.wallet()

	_, err := w.SubmitFlag(n.client, 0, 0, "baguette{one}")
	require.NoError(t, err)

	err = w.Transfer(n.client, n.operator.Address(), uint256.NewInt(1))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "unauthorized_sender", apiErr.Kind)
}

func TestScheduleSupplyEvents(t *testing.T) {
	n := newNode(t, "1", "baguette{one}")
	w := n.wallet()

	schedule, err := n.client.Schedule()
	require.NoError(t, err)
	require.Equal(t, uint32(reward.Capacity), schedule.Capacity)
	require.Len(t, schedule.Rewards, reward.Capacity)
	require.Equal(t, "0.23", amount.Format(schedule.PrizePerContest))

	_, err = w.SubmitFlag(n.client, 0, 0, "baguette{one}")
	require.NoError(t, err)

	supply, err := n.client.Supply()
	require.NoError(t, err)
	require.Equal(t, "0.05", amount.Format(supply))

	events, err := n.client.Events(0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "PrizePoolDeposited", events[0].Kind)
	require.Equal(t, "ContestStarted", events[1].Kind)

	solved := events[2]
	require.Equal(t, "FlagSolved", solved.Kind)
	require.Equal(t, w.Address(), solved.Solver)
	require.Equal(t, "0.05", amount.Format(solved.Amount))
	require.True(t, solved.At.Equal(n.clock.Now()))

	tail, err := n.client.Events(2, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, uint64(2), tail[0].Seq)
}

func TestUnknownContest(t *testing.T) {
	n := newNode(t, "1", "baguette{one}")

	_, err := n.client.Contest(9)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 404, apiErr.Status)
	require.Equal(t, "unknown_contest", apiErr.Kind)
}
