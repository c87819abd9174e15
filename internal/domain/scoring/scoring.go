// Package scoring reconciles a player's reported daily performance against the
// stored daily best.
package scoring

import (
	"github.com/okian/shobdo/internal/domain/model"
)

// Outcome is the result of reconciling one submission.
type Outcome int

// Reconciliation outcomes.
const (
	Created Outcome = iota + 1 // first submission of the day was stored
	Updated                    // a strictly better submission replaced the record
	Kept                       // the stored record is at least as good
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Kept:
		return "kept"
	default:
		return "unknown"
	}
}

// Compare orders two performances. It returns -1 when a is better than b,
// +1 when b is better than a and 0 when they are equal.
//
// Priority: more correct answers, then fewer incorrect answers, then less
// elapsed time.
func Compare(a, b model.Performance) int {
	switch {
	case a.Correct != b.Correct:
		if a.Correct > b.Correct {
			return -1
		}
		return 1
	case a.Incorrect != b.Incorrect:
		if a.Incorrect < b.Incorrect {
			return -1
		}
		return 1
	case a.Elapsed != b.Elapsed:
		if a.Elapsed < b.Elapsed {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Better reports whether a is strictly better than b.
func Better(a, b model.Performance) bool {
	return Compare(a, b) < 0
}

// Decide returns the outcome of submitting p against the current record.
// A nil current means no record exists yet.
func Decide(current *model.Performance, p model.Performance) Outcome {
	if current == nil {
		return Created
	}
	if Better(p, *current) {
		return Updated
	}
	return Kept
}

// Validate checks the value ranges of a performance.
func Validate(p model.Performance) error {
	switch {
	case p.Correct < 0:
		return invalid("correct must not be negative")
	case p.Incorrect < 0:
		return invalid("incorrect must not be negative")
	case p.Elapsed < 0:
		return invalid("elapsed must not be negative")
	}
	return nil
}
