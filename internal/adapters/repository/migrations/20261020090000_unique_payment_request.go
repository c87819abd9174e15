package migrations

import (
	"context"

	"github.com/okian/shobdo/internal/adapters/repository"
	"github.com/uptrace/bun"
)

// one payout per (referrer, request_id); rows without a request id are NULL
// and never collide
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateIndex().
			Model((*repository.ReferralPaymentRow)(nil)).
			Unique().
			Index("uq_referral_payments_request").
			Column("referrer", "request_id").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropIndex().
			Model((*repository.ReferralPaymentRow)(nil)).
			Index("uq_referral_payments_request").
			IfExists().
			Exec(ctx)
		return err
	})
}
