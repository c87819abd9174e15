// Package referral keeps the referral graph and the payout ledger consistent.
package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/shobdo/internal/domain/model"
)

// DefaultReward is the number of units earned per referred player.
const DefaultReward int64 = 10

// Records is the slice of the store the ledger needs, scoped to one transaction.
type Records interface {
	// ReferralOf returns the edge that brought referred in, or nil.
	ReferralOf(ctx context.Context, referred string) (*model.ReferralEdge, error)
	// InsertReferral must return an error wrapping ErrDuplicateEdge on a
	// uniqueness conflict.
	InsertReferral(ctx context.Context, edge *model.ReferralEdge) error
	CountReferrals(ctx context.Context, referrer string) (int64, error)
	SumPayments(ctx context.Context, referrer string) (int64, error)
	// PaymentByRequest returns the referrer's payment recorded under
	// requestID, or nil.
	PaymentByRequest(ctx context.Context, referrer, requestID string) (*model.ReferralPayment, error)
	// InsertPayment must return an error wrapping ErrDuplicatePayment when
	// the referrer already has a payment with the same request id.
	InsertPayment(ctx context.Context, p *model.ReferralPayment) error
}

// RegisterOutcome is the result of Register.
type RegisterOutcome int

// Register outcomes.
const (
	Registered RegisterOutcome = iota + 1
	AlreadyReferred
	SelfReferral
)

func (o RegisterOutcome) String() string {
	switch o {
	case Registered:
		return "registered"
	case AlreadyReferred:
		return "already_referred"
	case SelfReferral:
		return "self_referral"
	default:
		return "unknown"
	}
}

// PayOutcome is the result of Pay.
type PayOutcome int

// Pay outcomes.
const (
	Paid PayOutcome = iota + 1
	InvalidAmount
	InsufficientBalance
)

func (o PayOutcome) String() string {
	switch o {
	case Paid:
		return "paid"
	case InvalidAmount:
		return "invalid_amount"
	case InsufficientBalance:
		return "insufficient_balance"
	default:
		return "unknown"
	}
}

// Balance summarizes a referrer's account.
type Balance struct {
	Referrals int64
	Earned    int64
	Paid      int64
	Pending   int64
}

// PayResult carries the outcome, the balance after the decision and the
// recorded payment when the outcome is Paid. Replayed is set when the request
// id had already been paid and Payment is that earlier payment.
type PayResult struct {
	Outcome  PayOutcome
	Balance  Balance
	Payment  *model.ReferralPayment
	Replayed bool
}

// PayRequest describes one payout.
type PayRequest struct {
	Referrer  string
	Amount    int64
	RequestID string
}

// Key identifies the serialization boundary of a payout.
func (r PayRequest) Key() string { return ReferrerKey(r.Referrer) }

// ReferrerKey is the serialization key for a referrer's balance.
func ReferrerKey(referrer string) string { return "referral:" + referrer }

// ReferredKey is the serialization key for registering a referred player.
func ReferredKey(referred string) string { return "referred:" + referred }

// Ledger applies the referral rules.
type Ledger struct {
	reward int64
	now    func() time.Time
	newID  func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithReward sets the units earned per referral. Non-positive values are ignored.
func WithReward(units int64) Option {
	return func(l *Ledger) {
		if units > 0 {
			l.reward = units
		}
	}
}

// WithNow overrides the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides payment id generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// NewLedger creates a Ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		reward: DefaultReward,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reward returns the configured units per referral.
func (l *Ledger) Reward() int64 { return l.reward }

// Register records that referrer brought referred in. Attribution is
// first-write-wins.
func (l *Ledger) Register(ctx context.Context, recs Records, referrer, referred string) (RegisterOutcome, error) {
	referrer, referred = strings.TrimSpace(referrer), strings.TrimSpace(referred)
	if referrer == "" || referred == "" {
		return 0, invalid("referrer and referred are required")
	}
	if referrer == referred {
		return SelfReferral, nil
	}

	existing, err := recs.ReferralOf(ctx, referred)
	if err != nil {
		return 0, fmt.Errorf("referral.Register: read: %w", err)
	}
	if existing != nil {
		return AlreadyReferred, nil
	}

	edge := &model.ReferralEdge{Referrer: referrer, Referred: referred, CreatedAt: l.now().UTC()}
	if err := recs.InsertReferral(ctx, edge); err != nil {
		if errors.Is(err, ErrDuplicateEdge) {
			return AlreadyReferred, nil
		}
		return 0, fmt.Errorf("referral.Register: insert: %w", err)
	}
	return Registered, nil
}

// Balance computes earned, paid and pending for referrer. A negative pending
// is returned with ErrLedgerCorrupt and is never clamped.
func (l *Ledger) Balance(ctx context.Context, recs Records, referrer string) (Balance, error) {
	if strings.TrimSpace(referrer) == "" {
		return Balance{}, invalid("referrer is required")
	}
	n, err := recs.CountReferrals(ctx, referrer)
	if err != nil {
		return Balance{}, fmt.Errorf("referral.Balance: count: %w", err)
	}
	paid, err := recs.SumPayments(ctx, referrer)
	if err != nil {
		return Balance{}, fmt.Errorf("referral.Balance: sum: %w", err)
	}
	b := Balance{Referrals: n, Earned: n * l.reward, Paid: paid}
	b.Pending = b.Earned - b.Paid
	if b.Pending < 0 {
		return b, fmt.Errorf("referral.Balance %s: %w", referrer, ErrLedgerCorrupt)
	}
	return b, nil
}

// Pay appends a payment of exactly req.Amount when the pending balance covers it.
// A request id that was already paid returns the earlier payment and writes
// nothing.
func (l *Ledger) Pay(ctx context.Context, recs Records, req PayRequest) (PayResult, error) {
	if strings.TrimSpace(req.Referrer) == "" {
		return PayResult{}, invalid("referrer is required")
	}
	if req.RequestID != "" {
		prior, err := recs.PaymentByRequest(ctx, req.Referrer, req.RequestID)
		if err != nil {
			return PayResult{}, fmt.Errorf("referral.Pay: lookup: %w", err)
		}
		if prior != nil {
			b, err := l.Balance(ctx, recs, req.Referrer)
			if err != nil {
				return PayResult{Balance: b}, err
			}
			return PayResult{Outcome: Paid, Balance: b, Payment: prior, Replayed: true}, nil
		}
	}
	if req.Amount <= 0 {
		return PayResult{Outcome: InvalidAmount}, nil
	}

	b, err := l.Balance(ctx, recs, req.Referrer)
	if err != nil {
		return PayResult{Balance: b}, err
	}
	if req.Amount > b.Pending {
		return PayResult{Outcome: InsufficientBalance, Balance: b}, nil
	}

	p := &model.ReferralPayment{
		ID:        l.newID(),
		Referrer:  req.Referrer,
		Amount:    req.Amount,
		RequestID: req.RequestID,
		PaidAt:    l.now().UTC(),
	}
	if err := recs.InsertPayment(ctx, p); err != nil {
		return PayResult{Balance: b}, fmt.Errorf("referral.Pay: insert: %w", err)
	}
	b.Paid += req.Amount
	b.Pending -= req.Amount
	return PayResult{Outcome: Paid, Balance: b, Payment: p}, nil
}
