// Package service wires the score reconciler and the referral ledger to the
// store and the per-key serializer, and exposes the operations the HTTP API
// needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	workerpool "github.com/okian/shobdo/internal/adapters/mq/worker"
	"github.com/okian/shobdo/internal/adapters/repository"
	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/dedupe"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/internal/domain/scoring"
	"github.com/okian/shobdo/internal/domain/types"
	"github.com/okian/shobdo/pkg/logger"
	"github.com/okian/shobdo/pkg/metrics"
)

const (
	defaultQueueSize    = 1024
	defaultDedupeSize   = 50000
	defaultPublicLimit  = 100
	defaultWinnersLimit = 5
	defaultMaxLimit     = 1000
	stopTimeout         = 10 * time.Second
)

// Service implements the API dependencies for the game backend.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	pool       *workerpool.Pool
	deduper    dedupe.Deduper
	reconciler *scoring.Reconciler
	ledger     *referral.Ledger

	// Configuration
	shardCount   int
	queueSize    int
	dedupeSize   int
	reward       int64
	clock        calendar.Clock
	loc          *time.Location
	publicLimit  int
	winnersLimit int
	maxLimit     int

	// State
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// PayReceipt is the answer to a payout request.
type PayReceipt struct {
	referral.PayResult
	// Duplicate is set when the request id was already used for a payout.
	// PayResult then holds the original result when it is known.
	Duplicate bool
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		shardCount:   runtime.NumCPU(),
		queueSize:    defaultQueueSize,
		dedupeSize:   defaultDedupeSize,
		reward:       referral.DefaultReward,
		clock:        calendar.SystemClock{},
		loc:          time.UTC,
		publicLimit:  defaultPublicLimit,
		winnersLimit: defaultWinnersLimit,
		maxLimit:     defaultMaxLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting game service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory store")
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.reconciler = scoring.NewReconciler(scoring.WithNow(s.clock.Now))
	s.ledger = referral.NewLedger(
		referral.WithReward(s.reward),
		referral.WithNow(s.clock.Now),
	)
	s.pool = workerpool.NewPool(
		workerpool.WithShards(s.shardCount),
		workerpool.WithQueueSize(s.queueSize),
		workerpool.WithPoolLogger(s.logger.Named("pool")),
	)
	// the pool must outlive request contexts
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.startedAt = s.clock.Now()
	s.logger.Info(ctx, "game service started",
		logger.Int("shards", s.shardCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int64("referralReward", s.reward),
		logger.String("timezone", s.loc.String()),
	)

	return nil
}

// Stop drains the serializer and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping game service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "game service stopped")
}

// Today is the current calendar day in the service time zone.
func (s *Service) Today() calendar.Day {
	return calendar.Today(s.clock, s.loc)
}

func (s *Service) running() (repository.Store, *workerpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.pool, nil
}

// SubmitScore reconciles a play against the player's record for today.
func (s *Service) SubmitScore(ctx context.Context, player string, p model.Performance) (scoring.Result, error) {
	return s.SubmitScoreOn(ctx, scoring.Submission{Player: player, Day: s.Today(), Performance: p})
}

// SubmitScoreOn reconciles a play against the record for sub.Day.
func (s *Service) SubmitScoreOn(ctx context.Context, sub scoring.Submission) (scoring.Result, error) {
	store, pool, err := s.running()
	if err != nil {
		return scoring.Result{}, err
	}
	sub.Player = strings.TrimSpace(sub.Player)
	if err := sub.Validate(); err != nil {
		metrics.RecordScoreOutcome("invalid")
		return scoring.Result{}, err
	}
	// stored at millisecond precision; compare at the same precision
	sub.Elapsed = sub.Elapsed.Truncate(time.Millisecond)

	key := sub.Key()
	var res scoring.Result
	err = pool.Do(ctx, key, func(ctx context.Context) error {
		return store.InTx(ctx, key, func(ctx context.Context, tx repository.Tx) error {
			var err error
			res, err = s.reconciler.Submit(ctx, tx, sub)
			return err
		})
	})
	if err != nil {
		s.fault(ctx, "submit_score", err, logger.String("msisdn", sub.Player))
		return scoring.Result{}, err
	}

	metrics.RecordScoreOutcome(res.Outcome.String())
	return res, nil
}

// RegisterReferral records that referrer brought referred in.
func (s *Service) RegisterReferral(ctx context.Context, referrer, referred string) (referral.RegisterOutcome, error) {
	store, pool, err := s.running()
	if err != nil {
		return 0, err
	}
	referrer, referred = strings.TrimSpace(referrer), strings.TrimSpace(referred)

	key := referral.ReferredKey(referred)
	var out referral.RegisterOutcome
	err = pool.Do(ctx, key, func(ctx context.Context) error {
		return store.InTx(ctx, key, func(ctx context.Context, tx repository.Tx) error {
			var err error
			out, err = s.ledger.Register(ctx, tx, referrer, referred)
			return err
		})
	})
	if err != nil {
		s.fault(ctx, "register_referral", err,
			logger.String("referrer", referrer),
			logger.String("referred", referred),
		)
		return 0, err
	}

	metrics.RecordReferralRegistration(out.String())
	return out, nil
}

// Balance computes the referrer's earned, paid and pending units.
func (s *Service) Balance(ctx context.Context, referrer string) (referral.Balance, error) {
	store, _, err := s.running()
	if err != nil {
		return referral.Balance{}, err
	}
	referrer = strings.TrimSpace(referrer)

	var b referral.Balance
	err = store.InTx(ctx, referral.ReferrerKey(referrer), func(ctx context.Context, tx repository.Tx) error {
		var err error
		b, err = s.ledger.Balance(ctx, tx, referrer)
		return err
	})
	if err != nil {
		s.fault(ctx, "balance", err, logger.String("referrer", referrer))
	}
	return b, err
}

// Pay records a payout of amount to referrer when the pending balance covers
// it. A non-empty requestID makes the call idempotent for successful payouts.
func (s *Service) Pay(ctx context.Context, referrer string, amount int64, requestID string) (PayReceipt, error) {
	store, pool, err := s.running()
	if err != nil {
		return PayReceipt{}, err
	}
	req := referral.PayRequest{
		Referrer:  strings.TrimSpace(referrer),
		Amount:    amount,
		RequestID: strings.TrimSpace(requestID),
	}

	var dedupeKey string
	if req.RequestID != "" {
		dedupeKey = req.Referrer + "/" + req.RequestID
		if s.deduper.SeenAndRecord(ctx, dedupeKey) {
			metrics.RecordPayoutDuplicate()
			receipt := PayReceipt{Duplicate: true}
			if prior, ok := s.deduper.Result(ctx, dedupeKey); ok {
				if r, ok := prior.(referral.PayResult); ok {
					receipt.PayResult = r
				}
			}
			s.logger.Debug(ctx, "duplicate payout request",
				logger.String("referrer", req.Referrer),
				logger.String("request_id", req.RequestID),
			)
			return receipt, nil
		}
	}

	key := req.Key()
	var res referral.PayResult
	err = pool.Do(ctx, key, func(ctx context.Context) error {
		return store.InTx(ctx, key, func(ctx context.Context, tx repository.Tx) error {
			var err error
			res, err = s.ledger.Pay(ctx, tx, req)
			return err
		})
	})

	if dedupeKey != "" {
		if err == nil && res.Outcome == referral.Paid {
			s.deduper.Complete(ctx, dedupeKey, res)
		} else {
			s.deduper.Unrecord(ctx, dedupeKey)
		}
	}

	// the store already holds this request id, from before a restart or
	// from another instance
	if errors.Is(err, referral.ErrDuplicatePayment) || (err == nil && res.Replayed) {
		metrics.RecordPayoutDuplicate()
		s.logger.Debug(ctx, "duplicate payout request",
			logger.String("referrer", req.Referrer),
			logger.String("request_id", req.RequestID),
		)
		if err != nil {
			return PayReceipt{Duplicate: true}, nil
		}
		return PayReceipt{PayResult: res, Duplicate: true}, nil
	}

	if err != nil {
		s.fault(ctx, "pay", err,
			logger.String("referrer", req.Referrer),
			logger.Int64("amount", amount),
		)
		return PayReceipt{PayResult: res}, err
	}

	metrics.RecordPayout(res.Outcome.String())
	if res.Outcome == referral.Paid {
		metrics.AddPaidUnits(amount)
		s.logger.Info(ctx, "referral payout recorded",
			logger.String("referrer", req.Referrer),
			logger.Int64("amount", amount),
			logger.String("payment_id", res.Payment.ID),
		)
	}
	return PayReceipt{PayResult: res}, nil
}

// PublicLeaderboard returns today's best records.
func (s *Service) PublicLeaderboard(ctx context.Context) ([]types.ScoreEntry, error) {
	return s.topOf(ctx, s.Today(), s.publicLimit)
}

// Winners returns yesterday's best records.
func (s *Service) Winners(ctx context.Context) ([]types.ScoreEntry, error) {
	return s.topOf(ctx, s.Today().AddDays(-1), s.winnersLimit)
}

func (s *Service) topOf(ctx context.Context, day calendar.Day, limit int) ([]types.ScoreEntry, error) {
	store, _, err := s.running()
	if err != nil {
		return nil, err
	}
	recs, err := store.TopDaily(ctx, day, limit)
	if err != nil {
		s.fault(ctx, "top_daily", err, logger.String("day", day.String()))
		return nil, err
	}
	return toEntries(recs), nil
}

// Leaderboard returns records between from and to (inclusive, zero is open),
// newest day first. limit is capped by the configured maximum.
func (s *Service) Leaderboard(ctx context.Context, from, to calendar.Day, limit int) ([]types.ScoreEntry, error) {
	store, _, err := s.running()
	if err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, fmt.Errorf("%w: fromDate %s is after toDate %s", ErrInvalidInput, from, to)
	}
	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}

	recs, err := store.DailyScoresBetween(ctx, from, to, limit)
	if err != nil {
		s.fault(ctx, "leaderboard", err)
		return nil, err
	}
	return toEntries(recs), nil
}

// Rank returns the player's standing today.
func (s *Service) Rank(ctx context.Context, player string) (types.ScoreEntry, error) {
	store, _, err := s.running()
	if err != nil {
		return types.ScoreEntry{}, err
	}
	player = strings.TrimSpace(player)
	if player == "" {
		return types.ScoreEntry{}, fmt.Errorf("%w: msisdn is required", ErrInvalidInput)
	}

	rank, rec, err := store.Rank(ctx, player, s.Today())
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.fault(ctx, "rank", err, logger.String("msisdn", player))
		}
		return types.ScoreEntry{}, err
	}
	e := toEntry(rec)
	e.Rank = rank
	return e, nil
}

// ReferralHistory lists the players referrer brought in and the payouts made.
func (s *Service) ReferralHistory(ctx context.Context, referrer string) (types.ReferralHistory, error) {
	store, _, err := s.running()
	if err != nil {
		return types.ReferralHistory{}, err
	}
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return types.ReferralHistory{}, fmt.Errorf("%w: msisdn is required", ErrInvalidInput)
	}

	edges, err := store.Referrals(ctx, referrer)
	if err != nil {
		s.fault(ctx, "referrals", err, logger.String("referrer", referrer))
		return types.ReferralHistory{}, err
	}
	payments, err := store.Payments(ctx, referrer)
	if err != nil {
		s.fault(ctx, "payments", err, logger.String("referrer", referrer))
		return types.ReferralHistory{}, err
	}

	h := types.ReferralHistory{
		MSISDN:    referrer,
		Referrals: make([]types.Referral, 0, len(edges)),
		Payments:  make([]types.Payment, 0, len(payments)),
	}
	for _, e := range edges {
		h.Referrals = append(h.Referrals, types.Referral{
			ReferredMSISDN: e.Referred,
			CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		})
	}
	for i := range payments {
		h.Payments = append(h.Payments, ToPayment(&payments[i]))
	}
	return h, nil
}

// Ready reports whether the service can serve traffic.
func (s *Service) Ready(ctx context.Context) error {
	store, _, err := s.running()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := calendar.Today(s.clock, s.loc)
	stats := map[string]any{
		"started":        s.started,
		"shardCount":     s.shardCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"referralReward": s.reward,
		"timezone":       s.loc.String(),
		"today":          today.String(),
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if s.started {
		stats["uptimeSeconds"] = int64(s.clock.Now().Sub(s.startedAt).Seconds())
		stats["serializer"] = s.pool.Stats()
		stats["payoutRequestIds"] = s.deduper.Size()
		if n, err := s.store.CountDaily(ctx, today); err == nil {
			stats["playersToday"] = n
		}
	}

	return stats
}

// fault logs err once. Business rejections are not logged.
func (s *Service) fault(ctx context.Context, op string, err error, fields ...logger.Field) {
	fields = append(fields, logger.String("op", op), logger.Error(err))
	switch {
	case errors.Is(err, scoring.ErrInvalidInput),
		errors.Is(err, referral.ErrInvalidInput),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return
	case errors.Is(err, workerpool.ErrBackpressure):
		metrics.RecordErrorByComponent("service", "backpressure")
		s.logger.Warn(ctx, "serializer queue full", fields...)
	case errors.Is(err, referral.ErrLedgerCorrupt):
		metrics.RecordErrorByComponent("service", "ledger_corrupt")
		metrics.RecordErrorByType("ledger_corrupt", "critical")
		s.logger.Error(ctx, "referral ledger inconsistent", fields...)
	default:
		metrics.RecordErrorByComponent("service", "store")
		metrics.RecordErrorByType("store_unavailable", "high")
		s.logger.Error(ctx, "operation failed", fields...)
	}
}

func toEntry(rec model.DailyScore) types.ScoreEntry {
	return types.ScoreEntry{
		MSISDN:         rec.Player,
		Day:            rec.Day.String(),
		CorrectScore:   rec.Correct,
		IncorrectScore: rec.Incorrect,
		UserTime:       rec.Elapsed.Seconds(),
	}
}

// toEntries ranks records within each day; equal performances share a rank.
// recs must already be grouped by day and ordered best first.
func toEntries(recs []model.DailyScore) []types.ScoreEntry {
	out := make([]types.ScoreEntry, 0, len(recs))
	rank, pos := 0, 0
	for i, rec := range recs {
		switch {
		case i == 0 || rec.Day != recs[i-1].Day:
			rank, pos = 1, 1
		default:
			pos++
			if scoring.Compare(rec.Performance, recs[i-1].Performance) != 0 {
				rank = pos
			}
		}
		e := toEntry(rec)
		e.Rank = rank
		out = append(out, e)
	}
	return out
}

// ToPayment converts a stored payment to its API shape.
func ToPayment(p *model.ReferralPayment) types.Payment {
	return types.Payment{
		ID:        p.ID,
		Amount:    p.Amount,
		RequestID: p.RequestID,
		PaidAt:    p.PaidAt.Format(time.RFC3339),
	}
}
