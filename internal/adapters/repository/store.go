// Package repository persists daily scores and the referral ledger.
package repository

import (
	"context"

	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/internal/domain/scoring"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Tx is the transactional view handed to the reconcilers.
type Tx interface {
	scoring.Records
	referral.Records
}

// Store provides transactional writes and leaderboard reads.
type Store interface {
	// InTx runs fn in one transaction. key names the record being changed;
	// stores that can lock by key do so for the life of the transaction.
	// fn's own errors are returned unchanged and roll the transaction back.
	InTx(ctx context.Context, key string, fn func(ctx context.Context, tx Tx) error) error

	// TopDaily returns the best records of day ordered from best to worst.
	TopDaily(ctx context.Context, day calendar.Day, limit int) ([]model.DailyScore, error)

	// DailyScoresBetween returns records with from <= day <= to, newest day
	// first then best first. A zero bound is open.
	DailyScoresBetween(ctx context.Context, from, to calendar.Day, limit int) ([]model.DailyScore, error)

	// Rank returns 1 + the number of records on day strictly better than the
	// player's, and the player's record. Returns ErrNotFound if absent.
	Rank(ctx context.Context, player string, day calendar.Day) (int, model.DailyScore, error)

	// CountDaily returns the number of records on day.
	CountDaily(ctx context.Context, day calendar.Day) (int, error)

	// Referrals lists the edges of referrer, oldest first.
	Referrals(ctx context.Context, referrer string) ([]model.ReferralEdge, error)

	// Payments lists the payments of referrer, oldest first.
	Payments(ctx context.Context, referrer string) ([]model.ReferralPayment, error)

	Ping(ctx context.Context) error
	Close() error
}
