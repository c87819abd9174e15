package repository

import (
	"fmt"
	"time"

	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/uptrace/bun"
)

// DailyScoreRow is the daily_scores table. Days are stored as YYYY-MM-DD so
// lexical order is chronological on every dialect.
type DailyScoreRow struct {
	bun.BaseModel `bun:"table:daily_scores,alias:ds"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Player    string    `bun:"player,notnull,unique:daily_scores_player_day"`
	Day       string    `bun:"day,notnull,unique:daily_scores_player_day"`
	Correct   int64     `bun:"correct,notnull"`
	Incorrect int64     `bun:"incorrect,notnull"`
	ElapsedMS int64     `bun:"elapsed_ms,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// ReferralEdgeRow is the referral_edges table.
type ReferralEdgeRow struct {
	bun.BaseModel `bun:"table:referral_edges,alias:re"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Referrer  string    `bun:"referrer,notnull"`
	Referred  string    `bun:"referred,notnull,unique"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// ReferralPaymentRow is the append-only referral_payments table.
type ReferralPaymentRow struct {
	bun.BaseModel `bun:"table:referral_payments,alias:rp"`

	ID        string    `bun:"id,pk"`
	Referrer  string    `bun:"referrer,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	RequestID string    `bun:"request_id,nullzero"`
	PaidAt    time.Time `bun:"paid_at,notnull"`
}

func dailyScoreToRow(s *model.DailyScore) *DailyScoreRow {
	return &DailyScoreRow{
		ID:        s.ID,
		Player:    s.Player,
		Day:       s.Day.String(),
		Correct:   s.Correct,
		Incorrect: s.Incorrect,
		ElapsedMS: s.Elapsed.Milliseconds(),
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (r *DailyScoreRow) toModel() (model.DailyScore, error) {
	day, err := calendar.ParseDay(r.Day)
	if err != nil {
		return model.DailyScore{}, fmt.Errorf("daily_scores %d: %w", r.ID, err)
	}
	return model.DailyScore{
		ID:     r.ID,
		Player: r.Player,
		Day:    day,
		Performance: model.Performance{
			Correct:   r.Correct,
			Incorrect: r.Incorrect,
			Elapsed:   time.Duration(r.ElapsedMS) * time.Millisecond,
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}, nil
}

func dailyScoresFromRows(rows []DailyScoreRow) ([]model.DailyScore, error) {
	out := make([]model.DailyScore, 0, len(rows))
	for i := range rows {
		s, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *ReferralEdgeRow) toModel() model.ReferralEdge {
	return model.ReferralEdge{ID: r.ID, Referrer: r.Referrer, Referred: r.Referred, CreatedAt: r.CreatedAt.UTC()}
}

func (r *ReferralPaymentRow) toModel() model.ReferralPayment {
	return model.ReferralPayment{
		ID:        r.ID,
		Referrer:  r.Referrer,
		Amount:    r.Amount,
		RequestID: r.RequestID,
		PaidAt:    r.PaidAt.UTC(),
	}
}
