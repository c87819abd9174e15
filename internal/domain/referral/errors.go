package referral

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks blank identifiers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateEdge is reported by Records.InsertReferral when the referred
	// player already has an edge.
	ErrDuplicateEdge = errors.New("referred player already has a referrer")
	// ErrDuplicatePayment is reported by Records.InsertPayment when the
	// referrer already has a payment with the same request id.
	ErrDuplicatePayment = errors.New("payout request already recorded")
	// ErrLedgerCorrupt means payments exceed earnings for a referrer.
	ErrLedgerCorrupt = errors.New("referral ledger corrupt: pending balance is negative")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
