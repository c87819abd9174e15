package migrations

import (
	"context"

	"github.com/okian/shobdo/internal/adapters/repository"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			models := []any{
				(*repository.DailyScoreRow)(nil),
				(*repository.ReferralEdgeRow)(nil),
				(*repository.ReferralPaymentRow)(nil),
			}
			for _, m := range models {
				if _, err := tx.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
					return err
				}
			}

			if _, err := tx.NewCreateIndex().
				Model((*repository.DailyScoreRow)(nil)).
				Index("idx_daily_scores_day_rank").
				Column("day", "correct", "incorrect", "elapsed_ms").
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewCreateIndex().
				Model((*repository.ReferralEdgeRow)(nil)).
				Index("idx_referral_edges_referrer").
				Column("referrer").
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
			_, err := tx.NewCreateIndex().
				Model((*repository.ReferralPaymentRow)(nil)).
				Index("idx_referral_payments_referrer").
				Column("referrer").
				IfNotExists().
				Exec(ctx)
			return err
		})
	}, func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			models := []any{
				(*repository.ReferralPaymentRow)(nil),
				(*repository.ReferralEdgeRow)(nil),
				(*repository.DailyScoreRow)(nil),
			}
			for _, m := range models {
				if _, err := tx.NewDropTable().Model(m).IfExists().Exec(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	})
}
