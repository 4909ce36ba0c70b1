package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"Baguette/internal/amount"
	"Baguette/internal/engine"
	"Baguette/internal/identity"
)

// Amount is a token quantity as both whole tokens and base units.
type Amount struct {
	Tokens string `json:"tokens"` // Tokens is the decimal token value, e.g. "0.05"
	Wei    string `json:"wei"`    // Wei is the integer count of base units
}

func newAmount(v *uint256.Int) Amount {
	if v == nil {
		v = amount.Zero()
	}

	return Amount{Tokens: amount.Format(v), Wei: v.Dec()}
}

// ContestResponse describes one contest.
type ContestResponse struct {
	ID              uint64 `json:"id"`
	CommitmentCount int    `json:"commitmentCount"`
	WinnersLength   uint32 `json:"winnersLength"`
	Capacity        uint32 `json:"capacity"`
	State           string `json:"state"`
}

// EventResponse is the JSON form of an engine event.
type EventResponse struct {
	Seq             uint64  `json:"seq"`
	Kind            string  `json:"kind"`
	At              string  `json:"at"`
	ContestID       *uint64 `json:"contest,omitempty"`
	CommitmentCount *uint32 `json:"commitmentCount,omitempty"`
	Solver          string  `json:"solver,omitempty"`
	Slot            *uint32 `json:"slot,omitempty"`
	Rank            *uint32 `json:"rank,omitempty"`
	Amount          *Amount `json:"amount,omitempty"`
}

func newEventResponse(ev engine.Event) EventResponse {
	resp := EventResponse{
		Seq:  ev.Seq,
		Kind: ev.Kind.String(),
		At:   ev.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}

	switch ev.Kind {
	case engine.ContestStarted:
		resp.ContestID = &ev.ContestID
		resp.CommitmentCount = &ev.CommitmentCount
	case engine.FlagSolved:
		a := newAmount(ev.Amount)
		resp.ContestID = &ev.ContestID
		resp.Solver = ev.Solver.String()
		resp.Slot = &ev.Slot
		resp.Rank = &ev.Rank
		resp.Amount = &a
	case engine.PrizePoolDeposited:
		a := newAmount(ev.Amount)
		resp.Amount = &a
	}

	return resp
}

// handleContestCount handles GET /contests.
func (s *Server) handleContestCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.registry.ContestCount()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

// handleContest handles GET /contests/{id}.
func (s *Server) handleContest(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContestID(w, r)
	if !ok {
		return
	}

	info, err := s.registry.Contest(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ContestResponse{
		ID:              info.ID,
		CommitmentCount: info.CommitmentCount,
		WinnersLength:   info.WinnersLength,
		Capacity:        info.Capacity,
		State:           info.State.String(),
	})
}

// handleWinners handles GET /contests/{id}/winners.
func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContestID(w, r)
	if !ok {
		return
	}

	winners, err := s.registry.Winners(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	out := make([]string, len(winners))
	for i, who := range winners {
		out[i] = who.String()
	}

	writeJSON(w, http.StatusOK, map[string]any{"contest": id, "winners": out})
}

// handleWinnerAt handles GET /contests/{id}/winners/{rank}.
func (s *Server) handleWinnerAt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContestID(w, r)
	if !ok {
		return
	}

	rank, err := strconv.ParseUint(chi.URLParam(r, "rank"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindMalformed, "invalid rank")
		return
	}

	who, err := s.registry.WinnerAt(id, uint32(rank))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contest": id,
		"rank":    rank,
		"winner":  who.String(),
	})
}

// handleHasClaimed handles GET /contests/{id}/claims/{address}.
func (s *Server) handleHasClaimed(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContestID(w, r)
	if !ok {
		return
	}

	who, ok := parseAddress(w, r)
	if !ok {
		return
	}

	claimed, err := s.registry.HasClaimed(id, who)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contest": id,
		"address": who.String(),
		"claimed": claimed,
	})
}

// handleSchedule handles GET /schedule.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	schedule := s.registry.RewardSchedule()

	rewards := make([]Amount, len(schedule))
	for i, v := range schedule {
		rewards[i] = newAmount(v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"capacity":        s.registry.Capacity(),
		"prizePerContest": newAmount(s.registry.PrizePerContest()),
		"rewards":         rewards,
	})
}

// handlePool handles GET /pool.
func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.PrizePoolRemaining()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAmount(pool))
}

// handleSupply handles GET /supply.
func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.registry.TotalSupply()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAmount(supply))
}

// handleBalance handles GET /balances/{address}.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	who, ok := parseAddress(w, r)
	if !ok {
		return
	}

	balance, err := s.registry.TokenBalanceOf(who)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAmount(balance))
}

// handleEvents handles GET /events?from=N&limit=M.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var from uint64
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindMalformed, "invalid from")
			return
		}
		from = n
	}

	limit := maxEventsPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, kindMalformed, "invalid limit")
			return
		}
		limit = min(n, maxEventsPage)
	}

	events, err := s.registry.Events(from, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	out := make([]EventResponse, len(events))
	for i, ev := range events {
		out[i] = newEventResponse(ev)
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// parseContestID reads the {id} URL parameter, writing 400 on failure.
func parseContestID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindMalformed, "invalid contest id")
		return 0, false
	}

	return id, true
}

// parseAddress reads the {address} URL parameter, writing 400 on failure.
func parseAddress(w http.ResponseWriter, r *http.Request) (identity.Address, bool) {
	who, err := identity.Parse(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindMalformed, "invalid address")
		return identity.Address{}, false
	}

	return who, true
}
