package api

import (
	"fmt"
	"io"
	"net/http"

	"Baguette/internal/fault"
	"Baguette/internal/identity"
	"Baguette/internal/logger"
	"Baguette/internal/metrics"
	"Baguette/internal/request"
	"Baguette/internal/types"
)

// txResult is the body returned for an executed transaction.
type txResult struct {
	Hash     string  `json:"hash"`
	Function string  `json:"function"`
	Contest  *uint64 `json:"contest,omitempty"`
	Slot     *uint32 `json:"slot,omitempty"`
	Rank     *uint32 `json:"rank,omitempty"`
	Reward   *Amount `json:"reward,omitempty"`
	Amount   *Amount `json:"amount,omitempty"`
	Event    *uint64 `json:"event,omitempty"`
}

// handleSubmitTx handles POST /tx requests.
// The transaction is authenticated, checked for replay and executed synchronously.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindMalformed, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, kindMalformed, "empty transaction")
		return
	}

	if len(body) > maxTxSize {
		writeError(w, http.StatusRequestEntityTooLarge, kindMalformed, "transaction too large")
		return
	}

	tx, err := request.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindMalformed, fmt.Sprintf("invalid transaction: %v", err))
		return
	}

	var hash [32]byte
	copy(hash[:], tx.HashBytes())

	if !s.dedup.Fresh(tx.Nonce()) {
		writeError(w, http.StatusBadRequest, kindStale, "nonce outside replay window")
		return
	}

	fresh, err := s.dedup.Check(hash)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if !fresh {
		metrics.ReplaysRejectedTotal.Inc()
		writeError(w, http.StatusConflict, kindReplay, "transaction already processed")
		return
	}

	sender, err := identity.FromBytes(tx.SenderBytes())
	if err != nil {
		writeError(w, http.StatusBadRequest, kindMalformed, err.Error())
		return
	}

	log := logger.With(
		"hash", hexHash(hash)[:16],
		"function", string(tx.FunctionName()),
		"sender", sender,
	)

	res, err := s.execute(sender, tx)
	if err != nil {
		log.Debug("tx rejected", "reason", fault.Kind(err))
		writeTxError(w, err)
		return
	}

	log.Debug("tx executed")

	res.Hash = hexHash(hash)
	res.Function = string(tx.FunctionName())

	writeJSON(w, http.StatusOK, res)
}

// execute decodes the arguments of tx and runs its function for sender.
func (s *Server) execute(sender identity.Address, tx *types.Transaction) (txResult, error) {
	args := tx.ArgsBytes()

	switch fn := string(tx.FunctionName()); fn {
	case request.FnSubmitFlag:
		a, err := request.DecodeSubmitFlagArgs(args)
		if err != nil {
			return txResult{}, argsError{err}
		}

		solve, err := s.registry.SubmitFlag(sender, a.ContestID, a.Slot, a.Flag)
		if err != nil {
			return txResult{}, err
		}

		reward := newAmount(solve.Reward)

		return txResult{
			Contest: &a.ContestID,
			Slot:    &a.Slot,
			Rank:    &solve.Rank,
			Reward:  &reward,
			Event:   &solve.Event.Seq,
		}, nil

	case request.FnStartContest:
		if sender != s.registry.Operator() {
			return txResult{}, &fault.UnauthorizedSenderError{Identity: sender}
		}

		commitments, err := request.DecodeStartContestArgs(args)
		if err != nil {
			return txResult{}, argsError{err}
		}

		id, err := s.registry.StartContest(commitments)
		if err != nil {
			return txResult{}, err
		}

		return txResult{Contest: &id}, nil

	case request.FnDepositPool:
		if sender != s.registry.Operator() {
			return txResult{}, &fault.UnauthorizedSenderError{Identity: sender}
		}

		value, err := request.DecodeDepositPoolArgs(args)
		if err != nil {
			return txResult{}, argsError{err}
		}

		ev, err := s.registry.DepositPrizePool(value)
		if err != nil {
			return txResult{}, err
		}

		deposited := newAmount(value)

		return txResult{Amount: &deposited, Event: &ev.Seq}, nil

	case request.FnTransfer:
		a, err := request.DecodeTransferArgs(args)
		if err != nil {
			return txResult{}, argsError{err}
		}

		if err := s.registry.Transfer(sender, a.To, a.Amount); err != nil {
			return txResult{}, err
		}

		return txResult{}, nil

	default:
		return txResult{}, unknownFunctionError(fn)
	}
}

// argsError wraps a failure to decode function arguments.
type argsError struct{ err error }

func (e argsError) Error() string { return "invalid arguments: " + e.err.Error() }
func (e argsError) Unwrap() error { return e.err }

// unknownFunctionError names a function the API does not serve.
type unknownFunctionError string

func (e unknownFunctionError) Error() string { return fmt.Sprintf("unknown function %q", string(e)) }

// writeTxError writes transport errors with their own kinds and defers the
// rest to writeEngineError.
func writeTxError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case argsError:
		writeError(w, http.StatusBadRequest, kindMalformed, e.Error())
	case unknownFunctionError:
		writeError(w, http.StatusBadRequest, kindUnknownFn, e.Error())
	default:
		writeEngineError(w, err)
	}
}
