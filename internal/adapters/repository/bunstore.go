package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/pkg/metrics"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

// best-first order shared by every leaderboard read
const rankOrder = "correct DESC, incorrect ASC, elapsed_ms ASC, player ASC"

// BunStore is a Store over PostgreSQL or SQLite.
type BunStore struct {
	db     *bun.DB
	driver string
}

// Open connects to driver ("postgres" or "sqlite") at dsn and pings it.
// Schema migrations are run separately, see the migrations package.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*BunStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("open %s store: dsn is required", driver)
	}

	var db *bun.DB
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		sqldb.SetMaxOpenConns(o.maxOpenConns)
		db = bun.NewDB(sqldb, pgdialect.New())
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		// one connection serializes every transaction
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w: %w", driver, ErrUnavailable, err)
	}

	return &BunStore{db: db, driver: driver}, nil
}

// DB exposes the bun handle for migrations.
func (s *BunStore) DB() *bun.DB { return s.db }

// Driver returns the driver name the store was opened with.
func (s *BunStore) Driver() string { return s.driver }

// Ping checks connectivity.
func (s *BunStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *BunStore) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction. On PostgreSQL it first takes a transaction
// scoped advisory lock on key.
func (s *BunStore) InTx(ctx context.Context, key string, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	defer observe("tx", start)

	var fnErr error
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if s.driver == DriverPostgres {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key); err != nil {
				return unavailable("lock", err)
			}
		}
		fnErr = fn(ctx, &bunTx{tx: tx})
		return fnErr
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil:
		return fnErr
	default:
		return unavailable("tx", err)
	}
}

// TopDaily returns the best records of day.
func (s *BunStore) TopDaily(ctx context.Context, day calendar.Day, limit int) ([]model.DailyScore, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	defer observe("top_daily", time.Now())

	var rows []DailyScoreRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("day = ?", day.String()).
		OrderExpr(rankOrder).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, unavailable("top_daily", err)
	}
	return dailyScoresFromRows(rows)
}

// DailyScoresBetween returns records within [from, to].
func (s *BunStore) DailyScoresBetween(ctx context.Context, from, to calendar.Day, limit int) ([]model.DailyScore, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	defer observe("between", time.Now())

	var rows []DailyScoreRow
	q := s.db.NewSelect().Model(&rows)
	if !from.IsZero() {
		q = q.Where("day >= ?", from.String())
	}
	if !to.IsZero() {
		q = q.Where("day <= ?", to.String())
	}
	if err := q.OrderExpr("day DESC, " + rankOrder).Limit(limit).Scan(ctx); err != nil {
		return nil, unavailable("between", err)
	}
	return dailyScoresFromRows(rows)
}

// Rank returns the player's standing on day.
func (s *BunStore) Rank(ctx context.Context, player string, day calendar.Day) (int, model.DailyScore, error) {
	defer observe("rank", time.Now())

	row := new(DailyScoreRow)
	err := s.db.NewSelect().
		Model(row).
		Where("player = ?", player).
		Where("day = ?", day.String()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.DailyScore{}, ErrNotFound
	}
	if err != nil {
		return 0, model.DailyScore{}, unavailable("rank", err)
	}

	better, err := s.db.NewSelect().
		Model((*DailyScoreRow)(nil)).
		Where("day = ?", row.Day).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("correct > ?", row.Correct).
				WhereOr("correct = ? AND incorrect < ?", row.Correct, row.Incorrect).
				WhereOr("correct = ? AND incorrect = ? AND elapsed_ms < ?", row.Correct, row.Incorrect, row.ElapsedMS)
		}).
		Count(ctx)
	if err != nil {
		return 0, model.DailyScore{}, unavailable("rank", err)
	}

	rec, err := row.toModel()
	if err != nil {
		return 0, model.DailyScore{}, unavailable("rank", err)
	}
	return better + 1, rec, nil
}

// CountDaily returns the number of records on day.
func (s *BunStore) CountDaily(ctx context.Context, day calendar.Day) (int, error) {
	n, err := s.db.NewSelect().Model((*DailyScoreRow)(nil)).Where("day = ?", day.String()).Count(ctx)
	if err != nil {
		return 0, unavailable("count_daily", err)
	}
	return n, nil
}

// Referrals lists the edges of referrer.
func (s *BunStore) Referrals(ctx context.Context, referrer string) ([]model.ReferralEdge, error) {
	var rows []ReferralEdgeRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("referrer = ?", referrer).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, unavailable("referrals", err)
	}
	out := make([]model.ReferralEdge, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// Payments lists the payments of referrer.
func (s *BunStore) Payments(ctx context.Context, referrer string) ([]model.ReferralPayment, error) {
	var rows []ReferralPaymentRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("referrer = ?", referrer).
		OrderExpr("paid_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, unavailable("payments", err)
	}
	out := make([]model.ReferralPayment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// bunTx implements Tx inside one bun transaction.
type bunTx struct {
	tx bun.Tx
}

func (t *bunTx) DailyScore(ctx context.Context, player string, day calendar.Day) (*model.DailyScore, error) {
	row := new(DailyScoreRow)
	err := t.tx.NewSelect().
		Model(row).
		Where("player = ?", player).
		Where("day = ?", day.String()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("daily_score", err)
	}
	rec, err := row.toModel()
	if err != nil {
		return nil, unavailable("daily_score", err)
	}
	return &rec, nil
}

func (t *bunTx) InsertDailyScore(ctx context.Context, rec *model.DailyScore) error {
	row := dailyScoreToRow(rec)
	if _, err := t.tx.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert daily score: %w: %w", ErrConflict, err)
		}
		return unavailable("insert_daily_score", err)
	}
	rec.ID = row.ID
	return nil
}

func (t *bunTx) UpdateDailyScore(ctx context.Context, rec *model.DailyScore) error {
	row := dailyScoreToRow(rec)
	res, err := t.tx.NewUpdate().
		Model(row).
		Column("correct", "incorrect", "elapsed_ms", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return unavailable("update_daily_score", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update daily score %d: %w", rec.ID, ErrNotFound)
	}
	return nil
}

func (t *bunTx) ReferralOf(ctx context.Context, referred string) (*model.ReferralEdge, error) {
	row := new(ReferralEdgeRow)
	err := t.tx.NewSelect().Model(row).Where("referred = ?", referred).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("referral_of", err)
	}
	edge := row.toModel()
	return &edge, nil
}

func (t *bunTx) InsertReferral(ctx context.Context, edge *model.ReferralEdge) error {
	row := &ReferralEdgeRow{Referrer: edge.Referrer, Referred: edge.Referred, CreatedAt: edge.CreatedAt.UTC()}
	if _, err := t.tx.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert referral: %w: %w", ErrConflict, referral.ErrDuplicateEdge)
		}
		return unavailable("insert_referral", err)
	}
	edge.ID = row.ID
	return nil
}

func (t *bunTx) CountReferrals(ctx context.Context, referrer string) (int64, error) {
	n, err := t.tx.NewSelect().Model((*ReferralEdgeRow)(nil)).Where("referrer = ?", referrer).Count(ctx)
	if err != nil {
		return 0, unavailable("count_referrals", err)
	}
	return int64(n), nil
}

func (t *bunTx) SumPayments(ctx context.Context, referrer string) (int64, error) {
	var sum int64
	err := t.tx.NewSelect().
		Model((*ReferralPaymentRow)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("referrer = ?", referrer).
		Scan(ctx, &sum)
	if err != nil {
		return 0, unavailable("sum_payments", err)
	}
	return sum, nil
}

func (t *bunTx) PaymentByRequest(ctx context.Context, referrer, requestID string) (*model.ReferralPayment, error) {
	row := new(ReferralPaymentRow)
	err := t.tx.NewSelect().
		Model(row).
		Where("referrer = ?", referrer).
		Where("request_id = ?", requestID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("payment_by_request", err)
	}
	p := row.toModel()
	return &p, nil
}

func (t *bunTx) InsertPayment(ctx context.Context, p *model.ReferralPayment) error {
	row := &ReferralPaymentRow{
		ID:        p.ID,
		Referrer:  p.Referrer,
		Amount:    p.Amount,
		RequestID: p.RequestID,
		PaidAt:    p.PaidAt.UTC(),
	}
	if _, err := t.tx.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert payment: %w: %w", ErrConflict, referral.ErrDuplicatePayment)
		}
		return unavailable("insert_payment", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == pgUniqueViolation
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

func unavailable(op string, err error) error {
	metrics.RecordStoreError(op)
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
