package scoring

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
)

// Records is the slice of the store the reconciler needs. Implementations are
// expected to be scoped to one transaction.
type Records interface {
	// DailyScore returns the record for (player, day), or nil when absent.
	DailyScore(ctx context.Context, player string, day calendar.Day) (*model.DailyScore, error)
	InsertDailyScore(ctx context.Context, rec *model.DailyScore) error
	// UpdateDailyScore overwrites correct, incorrect and elapsed together.
	UpdateDailyScore(ctx context.Context, rec *model.DailyScore) error
}

// Submission is one reported play.
type Submission struct {
	Player string
	Day    calendar.Day
	model.Performance
}

// Key identifies the serialization boundary of the submission.
func (s Submission) Key() string {
	return "score:" + s.Player + ":" + s.Day.String()
}

// Validate checks the submission before any store access.
func (s Submission) Validate() error {
	if strings.TrimSpace(s.Player) == "" {
		return invalid("player is required")
	}
	if s.Day.IsZero() {
		return invalid("day is required")
	}
	return Validate(s.Performance)
}

// Result carries the outcome and the record as stored after the call.
type Result struct {
	Outcome Outcome
	Record  model.DailyScore
}

// Reconciler applies the daily-best rule.
type Reconciler struct {
	now func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNow overrides the timestamp source for created/updated times.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit reads the current record for the submission's key and writes at most
// once. The caller owns the transaction and the per-key serialization.
func (r *Reconciler) Submit(ctx context.Context, recs Records, sub Submission) (Result, error) {
	if err := sub.Validate(); err != nil {
		return Result{}, err
	}

	current, err := recs.DailyScore(ctx, sub.Player, sub.Day)
	if err != nil {
		return Result{}, fmt.Errorf("scoring.Submit: read: %w", err)
	}

	var existing *model.Performance
	if current != nil {
		existing = &current.Performance
	}

	now := r.now().UTC()
	switch outcome := Decide(existing, sub.Performance); outcome {
	case Created:
		rec := &model.DailyScore{
			Player:      sub.Player,
			Day:         sub.Day,
			Performance: sub.Performance,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := recs.InsertDailyScore(ctx, rec); err != nil {
			return Result{}, fmt.Errorf("scoring.Submit: insert: %w", err)
		}
		return Result{Outcome: Created, Record: *rec}, nil
	case Updated:
		rec := *current
		rec.Performance = sub.Performance
		rec.UpdatedAt = now
		if err := recs.UpdateDailyScore(ctx, &rec); err != nil {
			return Result{}, fmt.Errorf("scoring.Submit: update: %w", err)
		}
		return Result{Outcome: Updated, Record: rec}, nil
	default:
		return Result{Outcome: Kept, Record: *current}, nil
	}
}
