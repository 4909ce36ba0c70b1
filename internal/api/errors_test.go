package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"Baguette/internal/fault"
)

func TestWriteEngineError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"rejection", fmt.Errorf("submit:\n%w", &fault.UnknownContestError{ContestID: 2}), http.StatusNotFound, "unknown_contest"},
		{"conflict", fault.ErrInsufficientPrizePool, http.StatusConflict, "insufficient_prize_pool"},
		{"internal", errors.New("pebble: closed"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeEngineError(rec, tt.err)

			require.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.Equal(t, tt.kind, body["kind"])

			if tt.kind == "internal" {
				require.NotContains(t, body["error"], "pebble")
			}
		})
	}
}
