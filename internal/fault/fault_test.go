package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"Baguette/internal/identity"
)

func TestKind(t *testing.T) {
	addr := identity.Address{0x01}

	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrInvalidFlag, "invalid_flag"},
		{fmt.Errorf("debit:\n%w", ErrInsufficientPrizePool), "insufficient_prize_pool"},
		{ErrEmptyCommitments, "empty_commitments"},
		{&UnknownContestError{ContestID: 3}, "unknown_contest"},
		{&LeaderboardFullError{ContestID: 0}, "leaderboard_full"},
		{&AlreadyClaimedError{ContestID: 0, Identity: addr}, "already_claimed"},
		{&RankOutOfRangeError{Rank: 14, Length: 14}, "rank_out_of_range"},
		{fmt.Errorf("transfer:\n%w", &UnauthorizedSenderError{Identity: addr}), "unauthorized_sender"},
		{&InsufficientBalanceError{Identity: addr}, "insufficient_balance"},
		{errors.New("disk on fire"), "internal"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Kind(tc.err), "error %v", tc.err)
	}
}

func TestErrorDetail(t *testing.T) {
	err := error(&LeaderboardFullError{ContestID: 7})

	var full *LeaderboardFullError
	require.ErrorAs(t, err, &full)
	require.Equal(t, uint64(7), full.ContestID)
	require.Contains(t, err.Error(), "7")
}
