package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	service "github.com/okian/shobdo/internal/app"
	"github.com/okian/shobdo/internal/adapters/repository"
	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	"github.com/okian/shobdo/internal/domain/referral"
	"github.com/okian/shobdo/internal/domain/scoring"
	"github.com/okian/shobdo/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// noon UTC on 2026-10-15
var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func perf(correct, incorrect int64, ms int) model.Performance {
	return model.Performance{Correct: correct, Incorrect: incorrect, Elapsed: time.Duration(ms) * time.Millisecond}
}

func startService(opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithClock(calendar.FixedClock(now)),
		service.WithShardCount(4),
		service.WithQueueSize(64),
	}, opts...)
	svc := service.New(opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()

		Convey("When it has not been started", func() {
			ctx := context.Background()
			_, err := svc.SubmitScore(ctx, "P", perf(1, 0, 1000))

			Convey("Then operations are refused", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(errors.Is(svc.Ready(ctx), service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})

		Convey("When it is started and stopped", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Ready(ctx), ShouldBeNil)
			So(svc.GetStats(ctx)["started"], ShouldEqual, true)

			svc.Stop()
			svc.Stop()

			Convey("Then it reports itself stopped", func() {
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_SubmitScore(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService()
		defer svc.Stop()
		ctx := context.Background()

		Convey("When a player submits improving and worse plays", func() {
			a, errA := svc.SubmitScore(ctx, "P", perf(5, 2, 30000))
			b, errB := svc.SubmitScore(ctx, "P", perf(5, 1, 40000))
			c, errC := svc.SubmitScore(ctx, "P", perf(5, 1, 50000))

			Convey("Then only better plays replace the record", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(errC, ShouldBeNil)
				So(a.Outcome, ShouldEqual, scoring.Created)
				So(b.Outcome, ShouldEqual, scoring.Updated)
				So(c.Outcome, ShouldEqual, scoring.Kept)
				So(c.Record.Performance, ShouldResemble, perf(5, 1, 40000))
				So(c.Record.Day, ShouldResemble, calendar.MustParseDay("2026-10-15"))
			})
		})

		Convey("When elapsed carries sub-millisecond precision", func() {
			_, err := svc.SubmitScore(ctx, "P", model.Performance{Correct: 3, Elapsed: 1500 * time.Microsecond})
			So(err, ShouldBeNil)
			res, err := svc.SubmitScore(ctx, "P", model.Performance{Correct: 3, Elapsed: 1900 * time.Microsecond})

			Convey("Then plays equal at millisecond precision are kept", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, scoring.Kept)
				So(res.Record.Elapsed, ShouldEqual, time.Millisecond)
			})
		})

		Convey("When the input is invalid", func() {
			_, errBlank := svc.SubmitScore(ctx, "  ", perf(1, 0, 10))
			_, errNeg := svc.SubmitScore(ctx, "P", perf(-1, 0, 10))
			_, errTime := svc.SubmitScore(ctx, "P", model.Performance{Correct: 1, Elapsed: -time.Microsecond})

			Convey("Then it is rejected before anything is stored", func() {
				So(errors.Is(errBlank, scoring.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errNeg, scoring.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errTime, scoring.ErrInvalidInput), ShouldBeTrue)

				_, err := svc.Rank(ctx, "P")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When many plays for one player race", func() {
			var wg sync.WaitGroup
			for i := 1; i <= 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = svc.SubmitScore(ctx, "P", perf(int64(i%10), 0, 1000*i))
				}(i)
			}
			wg.Wait()

			Convey("Then the record is the best of them", func() {
				e, err := svc.Rank(ctx, "P")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 1)
				So(e.CorrectScore, ShouldEqual, 9)
				So(e.UserTime, ShouldEqual, 9.0)
			})
		})
	})
}

func TestService_Leaderboards(t *testing.T) {
	Convey("Given plays over two days", t, func() {
		svc := startService(service.WithLeaderboardLimits(3, 2, 4))
		defer svc.Stop()
		ctx := context.Background()

		today := svc.Today()
		yesterday := today.AddDays(-1)
		submitOn := func(player string, d calendar.Day, p model.Performance) {
			_, err := svc.SubmitScoreOn(ctx, scoring.Submission{Player: player, Day: d, Performance: p})
			So(err, ShouldBeNil)
		}
		submitOn("A", today, perf(5, 1, 40000))
		submitOn("B", today, perf(6, 3, 90000))
		submitOn("C", today, perf(5, 1, 30000))
		submitOn("D", today, perf(5, 1, 30000))
		submitOn("X", yesterday, perf(2, 0, 5000))
		submitOn("Y", yesterday, perf(8, 0, 5000))
		submitOn("Z", yesterday, perf(1, 0, 5000))

		Convey("Then the public board shows today capped at its limit", func() {
			board, err := svc.PublicLeaderboard(ctx)
			So(err, ShouldBeNil)
			So(board, ShouldHaveLength, 3)
			So(board[0].MSISDN, ShouldEqual, "B")
			So(board[0].Rank, ShouldEqual, 1)
			So(board[1].Rank, ShouldEqual, 2)
			So(board[2].Rank, ShouldEqual, 2)
			So(board[0].Day, ShouldEqual, "2026-10-15")
		})

		Convey("Then the winners are yesterday's best", func() {
			winners, err := svc.Winners(ctx)
			So(err, ShouldBeNil)
			So(winners, ShouldHaveLength, 2)
			So(winners[0].MSISDN, ShouldEqual, "Y")
			So(winners[1].MSISDN, ShouldEqual, "X")
		})

		Convey("Then range reads restart ranks per day and honour the cap", func() {
			all, err := svc.Leaderboard(ctx, yesterday, today, 100)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 4)
			var ranks []int
			for _, e := range all {
				ranks = append(ranks, e.Rank)
			}
			So(ranks, ShouldResemble, []int{1, 2, 2, 4})

			past, err := svc.Leaderboard(ctx, yesterday, yesterday, 10)
			So(err, ShouldBeNil)
			So(past, ShouldHaveLength, 3)
			So(past[0].Rank, ShouldEqual, 1)
			So(past[2].MSISDN, ShouldEqual, "Z")
			So(past[2].Rank, ShouldEqual, 3)
		})

		Convey("Then an inverted range is rejected", func() {
			_, err := svc.Leaderboard(ctx, today, yesterday, 10)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Then rank is computed against today", func() {
			e, err := svc.Rank(ctx, "A")
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, 4)
			So(e.UserTime, ShouldEqual, 40.0)

			_, err = svc.Rank(ctx, "X")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = svc.Rank(ctx, " ")
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Then stats count today's players", func() {
			stats := svc.GetStats(ctx)
			So(stats["playersToday"], ShouldEqual, 4)
			So(stats["today"], ShouldEqual, "2026-10-15")
		})
	})
}

func TestService_Referrals(t *testing.T) {
	Convey("Given a referrer with three referred players", t, func() {
		svc := startService(service.WithReferralReward(10))
		defer svc.Stop()
		ctx := context.Background()

		for _, referred := range []string{"X", "Y", "Z"} {
			out, err := svc.RegisterReferral(ctx, "R", referred)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, referral.Registered)
		}

		Convey("When registrations repeat or point at the referrer", func() {
			again, errAgain := svc.RegisterReferral(ctx, "Q", "X")
			self, errSelf := svc.RegisterReferral(ctx, "R", "R")
			_, errBlank := svc.RegisterReferral(ctx, "R", " ")

			Convey("Then they are reported without new edges", func() {
				So(errAgain, ShouldBeNil)
				So(again, ShouldEqual, referral.AlreadyReferred)
				So(errSelf, ShouldBeNil)
				So(self, ShouldEqual, referral.SelfReferral)
				So(errors.Is(errBlank, referral.ErrInvalidInput), ShouldBeTrue)

				b, err := svc.Balance(ctx, "R")
				So(err, ShouldBeNil)
				So(b.Referrals, ShouldEqual, 3)
			})
		})

		Convey("When payouts are requested", func() {
			first, err := svc.Pay(ctx, "R", 15, "req-1")
			So(err, ShouldBeNil)
			tooMuch, err := svc.Pay(ctx, "R", 16, "req-2")
			So(err, ShouldBeNil)
			zero, err := svc.Pay(ctx, "R", 0, "")
			So(err, ShouldBeNil)

			Convey("Then only covered positive amounts are paid", func() {
				So(first.Outcome, ShouldEqual, referral.Paid)
				So(first.Duplicate, ShouldBeFalse)
				So(first.Balance, ShouldResemble, referral.Balance{Referrals: 3, Earned: 30, Paid: 15, Pending: 15})
				So(first.Payment.RequestID, ShouldEqual, "req-1")
				So(tooMuch.Outcome, ShouldEqual, referral.InsufficientBalance)
				So(zero.Outcome, ShouldEqual, referral.InvalidAmount)
			})

			Convey("Then replaying a paid request id pays nothing more", func() {
				dup, err := svc.Pay(ctx, "R", 15, "req-1")
				So(err, ShouldBeNil)
				So(dup.Duplicate, ShouldBeTrue)
				So(dup.Payment.ID, ShouldEqual, first.Payment.ID)

				b, err := svc.Balance(ctx, "R")
				So(err, ShouldBeNil)
				So(b.Paid, ShouldEqual, 15)
			})

			Convey("Then a rejected request id can be retried", func() {
				retry, err := svc.Pay(ctx, "R", 15, "req-2")
				So(err, ShouldBeNil)
				So(retry.Duplicate, ShouldBeFalse)
				So(retry.Outcome, ShouldEqual, referral.Paid)
				So(retry.Balance.Pending, ShouldEqual, 0)
			})

			Convey("Then the history lists edges and payments", func() {
				h, err := svc.ReferralHistory(ctx, "R")
				So(err, ShouldBeNil)
				So(h.MSISDN, ShouldEqual, "R")
				So(h.Referrals, ShouldHaveLength, 3)
				So(h.Payments, ShouldHaveLength, 1)
				So(h.Payments[0].Amount, ShouldEqual, 15)
				So(h.Payments[0].PaidAt, ShouldEqual, "2026-10-15T12:00:00Z")
			})
		})

		Convey("When payouts race for the same pending balance", func() {
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				paid int64
			)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := svc.Pay(ctx, "R", 7, "")
					if err == nil && res.Outcome == referral.Paid {
						mu.Lock()
						paid += 7
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then the total never exceeds what was earned", func() {
				So(paid, ShouldEqual, 28)
				b, err := svc.Balance(ctx, "R")
				So(err, ShouldBeNil)
				So(b.Paid, ShouldEqual, 28)
				So(b.Pending, ShouldEqual, 2)
			})
		})
	})
}
