package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"Baguette/internal/amount"
	"Baguette/internal/commitment"
	"Baguette/internal/engine"
	"Baguette/internal/identity"
	"Baguette/internal/request"
	"Baguette/internal/reward"
	"Baguette/internal/storage"
)

// fixture is a running API over an in-memory engine.
type fixture struct {
	srv      *httptest.Server
	db       *storage.Storage
	engine   *engine.Engine
	clock    *clockwork.FakeClock
	operator ed25519.PrivateKey
}

func newFixture(t *testing.T, flags ...string) *fixture {
	t.Helper()

	db, err := storage.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, operatorKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	operatorAddr, err := identity.FromPublicKey(operatorKey.Public().(ed25519.PublicKey))
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	eng, err := engine.New(db, engine.Config{
		Operator: operatorAddr,
		Schedule: reward.DefaultSchedule(),
		Clock:    clock,
	})
	require.NoError(t, err)

	hashes := make([]commitment.Hash, len(flags))
	for i, f := range flags {
		hashes[i] = commitment.Of(f)
	}

	pool, err := amount.Parse("1")
	require.NoError(t, err)

	_, err = eng.Bootstrap(hashes, pool)
	require.NoError(t, err)

	s := New(Config{Store: db, Clock: clock, ReplayWindow: time.Minute}, eng)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = s.Stop()
	})

	return &fixture{srv: srv, db: db, engine: eng, clock: clock, operator: operatorKey}
}

func newPlayer(t *testing.T) (ed25519.PrivateKey, identity.Address) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	addr, err := identity.FromPublicKey(pub)
	require.NoError(t, err)

	return priv, addr
}

// post signs and submits a transaction stamped with the fixture clock.
func (f *fixture) post(t *testing.T, key ed25519.PrivateKey, fn string, args []byte) (int, map[string]any) {
	t.Helper()

	data, _ := request.BuildSigned(key, fn, args, uint64(f.clock.Now().UnixMilli()))

	return f.postRaw(t, data)
}

func (f *fixture) postRaw(t *testing.T, data []byte) (int, map[string]any) {
	t.Helper()

	resp, err := http.Post(f.srv.URL+"/tx", "application/octet-stream", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	return resp.StatusCode, body
}

func submitArgs(contest uint64, slot uint32, flag string) []byte {
	return request.EncodeSubmitFlagArgs(request.SubmitFlagArgs{ContestID: contest, Slot: slot, Flag: flag})
}

func TestSubmitFlag_Success(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, addr := newPlayer(t)

	status, body := f.post(t, key, request.FnSubmitFlag, submitArgs(0, 0, "baguette{one}"))
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, float64(0), body["rank"])
	require.Equal(t, "0.05", body["reward"].(map[string]any)["tokens"])
	require.Len(t, body["hash"], 64)

	status, body = f.get(t, "/contests/0/winners/0")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, addr.String(), body["winner"])

	status, body = f.get(t, "/contests/0/claims/"+addr.String())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["claimed"])

	status, body = f.get(t, "/balances/"+addr.String())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "50000000000000000", body["wei"])
}

func TestSubmitFlag_ErrorKinds(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, _ := newPlayer(t)

	status, body := f.post(t, key, request.FnSubmitFlag, submitArgs(0, 0, "wrong"))
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "invalid_flag", body["kind"])

	status, body = f.post(t, key, request.FnSubmitFlag, submitArgs(5, 0, "baguette{one}"))
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "unknown_contest", body["kind"])

	status, _ = f.post(t, key, request.FnSubmitFlag, submitArgs(0, 0, "baguette{one}"))
	require.Equal(t, http.StatusOK, status)

	f.clock.Advance(time.Millisecond)
	status, body = f.post(t, key, request.FnSubmitFlag, submitArgs(0, 0, "baguette{one}"))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "already_claimed", body["kind"])
}

func TestSubmitTx_Replay(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, _ := newPlayer(t)

	data, _ := request.BuildSigned(key, request.FnSubmitFlag, submitArgs(0, 0, "nope"), uint64(f.clock.Now().UnixMilli()))

	status, body := f.postRaw(t, data)
	require.Equal(t, http.StatusUnprocessableEntity, status, body)

	status, body = f.postRaw(t, data)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, kindReplay, body["kind"])
}

func TestSubmitTx_ReplayAfterRestart(t *testing.T) {
	f := newFixture(t, "baguette{one}")

	deposit := request.EncodeDepositPoolArgs(uint256.NewInt(5))
	data, _ := request.BuildSigned(f.operator, request.FnDepositPool, deposit, uint64(f.clock.Now().UnixMilli()))

	status, body := f.postRaw(t, data)
	require.Equal(t, http.StatusOK, status, body)

	// A new server over the same store, as after a process restart.
	f.clock.Advance(10 * time.Second)
	restarted := New(Config{Store: f.db, Clock: f.clock, ReplayWindow: time.Minute}, f.engine)
	srv := httptest.NewServer(restarted.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = restarted.Stop()
	})
	f.srv = srv

	status, body = f.postRaw(t, data)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, kindReplay, body["kind"])

	pool, err := f.engine.PrizePoolRemaining()
	require.NoError(t, err)
	require.Equal(t, "1000000000000000005", pool.Dec())
}

func TestSubmitTx_StaleNonce(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, _ := newPlayer(t)

	stale := uint64(f.clock.Now().Add(-2 * time.Minute).UnixMilli())
	data, _ := request.BuildSigned(key, request.FnSubmitFlag, submitArgs(0, 0, "baguette{one}"), stale)

	status, body := f.postRaw(t, data)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, kindStale, body["kind"])
}

func TestSubmitTx_Malformed(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, _ := newPlayer(t)

	status, body := f.postRaw(t, []byte("not a transaction"))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, kindMalformed, body["kind"])

	status, body = f.post(t, key, request.FnSubmitFlag, []byte{1})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, kindMalformed, body["kind"])

	status, body = f.post(t, key, "mint", nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, kindUnknownFn, body["kind"])
}

func TestStartContest_OperatorOnly(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, _ := newPlayer(t)
	args := request.EncodeStartContestArgs([]commitment.Hash{commitment.Of("baguette{two}")})

	status, body := f.post(t, key, request.FnStartContest, args)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "unauthorized_sender", body["kind"])

	status, body = f.post(t, f.operator, request.FnStartContest, args)
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, float64(1), body["contest"])

	f.clock.Advance(time.Millisecond)
	status, body = f.post(t, f.operator, request.FnStartContest, request.EncodeStartContestArgs(nil))
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "empty_commitments", body["kind"])

	status, body = f.get(t, "/contests/1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "open", body["state"])
	require.Equal(t, float64(1), body["commitmentCount"])
}

func TestDepositPool(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, _ := newPlayer(t)
	args := request.EncodeDepositPoolArgs(uint256.NewInt(1))

	status, _ := f.post(t, key, request.FnDepositPool, args)
	require.Equal(t, http.StatusForbidden, status)

	status, body := f.post(t, f.operator, request.FnDepositPool, args)
	require.Equal(t, http.StatusOK, status, body)

	status, body = f.get(t, "/pool")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1000000000000000001", body["wei"])
}

func TestTransfer_Unauthorized(t *testing.T) {
	f := newFixture(t, "baguette{one}")
	key, addr := newPlayer(t)

	status, _ := f.post(t, key, request.FnSubmitFlag, submitArgs(0, 0, "baguette{one}"))
	require.Equal(t, http.StatusOK, status)

	f.clock.Advance(time.Millisecond)
	args := request.EncodeTransferArgs(request.TransferArgs{To: identity.Address{1}, Amount: uint256.NewInt(1)})
	status, body := f.post(t, key, request.FnTransfer, args)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "unauthorized_sender", body["kind"])

	_, body = f.get(t, "/balances/"+addr.String())
	require.Equal(t, "0.05", body["tokens"])
}

func TestQueries(t *testing.T) {
	f := newFixture(t, "baguette{one}", "baguette{two}")

	status, body := f.get(t, "/schedule")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(reward.Capacity), body["capacity"])
	require.Equal(t, "0.23", body["prizePerContest"].(map[string]any)["tokens"])
	require.Len(t, body["rewards"], reward.Capacity)

	status, body = f.get(t, "/contests")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(1), body["count"])

	status, body = f.get(t, "/contests/0")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(2), body["commitmentCount"])
	require.Equal(t, float64(0), body["winnersLength"])

	status, body = f.get(t, "/contests/0/winners/0")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "rank_out_of_range", body["kind"])

	status, _ = f.get(t, "/contests/abc")
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = f.get(t, "/balances/0OIl")
	require.Equal(t, http.StatusBadRequest, status)

	status, body = f.get(t, "/supply")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "0", body["wei"])

	status, body = f.get(t, "/events?from=1")
	require.Equal(t, http.StatusOK, status)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	require.Equal(t, "ContestStarted", events[0].(map[string]any)["kind"])

	status, body = f.get(t, "/status")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, f.engine.Distributor().String(), body["distributor"])

	status, body = f.get(t, "/health")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "baguette{one}")

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}
