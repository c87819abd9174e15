package loadgen

import (
	"errors"
	"fmt"
	"math"

	"github.com/okian/shobdo/internal/domain/scoring"
)

// ErrVerification wraps every leaderboard mismatch.
var ErrVerification = errors.New("leaderboard verification failed")

// userTimeTolerance absorbs float formatting of millisecond times.
const userTimeTolerance = 0.0005

// Verify checks that board is ordered by the scoring order with shared ranks
// for ties, that every generated player on it shows their best play, and
// that a board shorter than its limit lists every generated player.
func Verify(board []Entry, best map[string]Play, limit int) error {
	seen := make(map[string]bool, len(board))
	for i, e := range board {
		if seen[e.MSISDN] {
			return fmt.Errorf("%w: %s listed twice", ErrVerification, e.MSISDN)
		}
		seen[e.MSISDN] = true

		if err := checkRank(board, i); err != nil {
			return err
		}

		want, ok := best[e.MSISDN]
		if !ok {
			continue
		}
		if e.CorrectScore != want.CorrectScore || e.IncorrectScore != want.IncorrectScore ||
			math.Abs(e.UserTime-want.UserTime) > userTimeTolerance {
			return fmt.Errorf("%w: %s shows %d/%d/%.3f, best was %d/%d/%.3f", ErrVerification, e.MSISDN,
				e.CorrectScore, e.IncorrectScore, e.UserTime,
				want.CorrectScore, want.IncorrectScore, want.UserTime)
		}
	}

	if len(board) < limit {
		for player := range best {
			if !seen[player] {
				return fmt.Errorf("%w: %s missing from a board of %d", ErrVerification, player, len(board))
			}
		}
	}
	return nil
}

func checkRank(board []Entry, i int) error {
	e := board[i]
	if i == 0 {
		if e.Rank != 1 {
			return fmt.Errorf("%w: first row has rank %d", ErrVerification, e.Rank)
		}
		return nil
	}
	prev := board[i-1]
	switch c := scoring.Compare(prev.Performance(), e.Performance()); {
	case c > 0:
		return fmt.Errorf("%w: row %d (%s) beats row %d (%s)", ErrVerification, i+1, e.MSISDN, i, prev.MSISDN)
	case c == 0 && e.Rank != prev.Rank:
		return fmt.Errorf("%w: tied rows %d and %d have ranks %d and %d", ErrVerification, i, i+1, prev.Rank, e.Rank)
	case c < 0 && e.Rank != i+1:
		return fmt.Errorf("%w: row %d has rank %d", ErrVerification, i+1, e.Rank)
	}
	return nil
}
