package api

import (
	"net/http"

	"Baguette/internal/engine"
	"Baguette/internal/fault"
	"Baguette/internal/logger"
)

// Error kinds produced by the transport itself.
const (
	kindMalformed = "malformed"
	kindReplay    = "replay"
	kindStale     = "stale_nonce"
	kindUnknownFn = "unknown_function"
)

// statusFor maps an engine error kind to an HTTP status code.
func statusFor(kind string) int {
	switch kind {
	case "unknown_contest", "rank_out_of_range":
		return http.StatusNotFound
	case "invalid_flag", "empty_commitments":
		return http.StatusUnprocessableEntity
	case "leaderboard_full", "already_claimed", "insufficient_prize_pool", "insufficient_balance":
		return http.StatusConflict
	case "unauthorized_sender":
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with the status its kind maps to.
// Internal failures are logged and their detail withheld.
func writeEngineError(w http.ResponseWriter, err error) {
	if !engine.IsRejection(err) {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	kind := fault.Kind(err)
	writeError(w, statusFor(kind), kind, err.Error())
}
