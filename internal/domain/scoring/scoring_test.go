package scoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/internal/domain/model"
	scoring "github.com/okian/shobdo/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

type memRecords struct {
	rows   map[string]model.DailyScore
	reads  int
	writes int
	failOn string
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[string]model.DailyScore)}
}

func (m *memRecords) key(player string, day calendar.Day) string {
	return player + "|" + day.String()
}

func (m *memRecords) DailyScore(_ context.Context, player string, day calendar.Day) (*model.DailyScore, error) {
	m.reads++
	if m.failOn == "read" {
		return nil, errors.New("boom")
	}
	rec, ok := m.rows[m.key(player, day)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memRecords) InsertDailyScore(_ context.Context, rec *model.DailyScore) error {
	m.writes++
	if m.failOn == "write" {
		return errors.New("boom")
	}
	rec.ID = int64(len(m.rows) + 1)
	m.rows[m.key(rec.Player, rec.Day)] = *rec
	return nil
}

func (m *memRecords) UpdateDailyScore(_ context.Context, rec *model.DailyScore) error {
	m.writes++
	if m.failOn == "write" {
		return errors.New("boom")
	}
	m.rows[m.key(rec.Player, rec.Day)] = *rec
	return nil
}

func perf(c, i int64, secs int) model.Performance {
	return model.Performance{Correct: c, Incorrect: i, Elapsed: time.Duration(secs) * time.Second}
}

func TestCompare(t *testing.T) {
	Convey("Given performance triples", t, func() {
		Convey("Then more correct answers win outright", func() {
			So(scoring.Better(perf(6, 9, 99), perf(5, 0, 1)), ShouldBeTrue)
			So(scoring.Compare(perf(5, 0, 1), perf(6, 9, 99)), ShouldEqual, 1)
		})

		Convey("Then fewer incorrect answers break a correct tie", func() {
			So(scoring.Better(perf(5, 1, 40), perf(5, 2, 30)), ShouldBeTrue)
		})

		Convey("Then less elapsed time breaks a full tie", func() {
			So(scoring.Better(perf(5, 1, 40), perf(5, 1, 50)), ShouldBeTrue)
			So(scoring.Better(perf(5, 1, 50), perf(5, 1, 40)), ShouldBeFalse)
		})

		Convey("Then equal triples compare equal and neither is better", func() {
			So(scoring.Compare(perf(3, 1, 10), perf(3, 1, 10)), ShouldEqual, 0)
			So(scoring.Better(perf(3, 1, 10), perf(3, 1, 10)), ShouldBeFalse)
		})

		Convey("Then the order is antisymmetric, total and transitive over a grid", func() {
			var grid []model.Performance
			for c := int64(0); c < 3; c++ {
				for i := int64(0); i < 3; i++ {
					for e := 0; e < 3; e++ {
						grid = append(grid, perf(c, i, e))
					}
				}
			}
			for _, a := range grid {
				for _, b := range grid {
					ab, ba := scoring.Compare(a, b), scoring.Compare(b, a)
					So(ab, ShouldEqual, -ba)
					if a == b {
						So(ab, ShouldEqual, 0)
					} else {
						So(ab, ShouldNotEqual, 0)
					}
					for _, c := range grid {
						if scoring.Better(a, b) && scoring.Better(b, c) {
							So(scoring.Better(a, c), ShouldBeTrue)
						}
					}
				}
			}
		})
	})
}

func TestDecide(t *testing.T) {
	Convey("Given no current record", t, func() {
		So(scoring.Decide(nil, perf(0, 0, 0)), ShouldEqual, scoring.Created)
	})

	Convey("Given a current record", t, func() {
		cur := perf(5, 2, 30)
		So(scoring.Decide(&cur, perf(5, 1, 40)), ShouldEqual, scoring.Updated)
		So(scoring.Decide(&cur, perf(5, 2, 30)), ShouldEqual, scoring.Kept)
		So(scoring.Decide(&cur, perf(4, 0, 1)), ShouldEqual, scoring.Kept)
	})

	Convey("Outcomes have readable names", t, func() {
		So(scoring.Created.String(), ShouldEqual, "created")
		So(scoring.Updated.String(), ShouldEqual, "updated")
		So(scoring.Kept.String(), ShouldEqual, "kept")
		So(scoring.Outcome(0).String(), ShouldEqual, "unknown")
	})
}

func TestReconciler_Submit(t *testing.T) {
	ctx := context.Background()
	day := calendar.MustParseDay("2026-10-15")
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	Convey("Given a reconciler over an empty store", t, func() {
		recs := newMemRecords()
		r := scoring.NewReconciler(scoring.WithNow(func() time.Time { return now }))
		sub := func(p model.Performance) scoring.Submission {
			return scoring.Submission{Player: "P", Day: day, Performance: p}
		}

		Convey("When the same triple is submitted twice", func() {
			first, err1 := r.Submit(ctx, recs, sub(perf(5, 2, 30)))
			second, err2 := r.Submit(ctx, recs, sub(perf(5, 2, 30)))

			Convey("Then it is created and then kept", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.Outcome, ShouldEqual, scoring.Created)
				So(second.Outcome, ShouldEqual, scoring.Kept)
				So(recs.rows["P|2026-10-15"].Performance, ShouldResemble, perf(5, 2, 30))
				So(recs.writes, ShouldEqual, 1)
			})
		})

		Convey("When submissions follow the daily scenario", func() {
			a, _ := r.Submit(ctx, recs, sub(perf(5, 2, 30)))
			b, _ := r.Submit(ctx, recs, sub(perf(5, 1, 40)))
			c, _ := r.Submit(ctx, recs, sub(perf(5, 1, 50)))

			Convey("Then lower incorrect wins and worse time is kept out", func() {
				So(a.Outcome, ShouldEqual, scoring.Created)
				So(b.Outcome, ShouldEqual, scoring.Updated)
				So(c.Outcome, ShouldEqual, scoring.Kept)
				So(recs.rows["P|2026-10-15"].Performance, ShouldResemble, perf(5, 1, 40))
				So(c.Record.Performance, ShouldResemble, perf(5, 1, 40))
			})
		})

		Convey("When a strictly better triple replaces the record", func() {
			_, _ = r.Submit(ctx, recs, sub(perf(3, 0, 10)))
			res, err := r.Submit(ctx, recs, sub(perf(4, 7, 90)))

			Convey("Then the stored triple is exactly the new one", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, scoring.Updated)
				So(recs.rows["P|2026-10-15"].Performance, ShouldResemble, perf(4, 7, 90))
			})
		})

		Convey("When another day is submitted for the same player", func() {
			_, _ = r.Submit(ctx, recs, sub(perf(5, 2, 30)))
			next := scoring.Submission{Player: "P", Day: day.AddDays(1), Performance: perf(9, 0, 1)}
			res, err := r.Submit(ctx, recs, next)

			Convey("Then the earlier day's record is untouched", func() {
				So(err, ShouldBeNil)
				So(res.Outcome, ShouldEqual, scoring.Created)
				So(recs.rows["P|2026-10-15"].Performance, ShouldResemble, perf(5, 2, 30))
				So(recs.rows["P|2026-10-16"].Performance, ShouldResemble, perf(9, 0, 1))
			})
		})

		Convey("When the submission is invalid", func() {
			_, errNeg := r.Submit(ctx, recs, sub(perf(-1, 0, 0)))
			_, errTime := r.Submit(ctx, recs, sub(model.Performance{Elapsed: -time.Second}))
			_, errPlayer := r.Submit(ctx, recs, scoring.Submission{Player: " ", Day: day})
			_, errDay := r.Submit(ctx, recs, scoring.Submission{Player: "P"})

			Convey("Then it is rejected before the store is read", func() {
				So(errors.Is(errNeg, scoring.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errTime, scoring.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errPlayer, scoring.ErrInvalidInput), ShouldBeTrue)
				So(errors.Is(errDay, scoring.ErrInvalidInput), ShouldBeTrue)
				So(recs.reads, ShouldEqual, 0)
			})
		})

		Convey("When the store fails", func() {
			recs.failOn = "write"
			_, err := r.Submit(ctx, recs, sub(perf(1, 1, 1)))

			Convey("Then the error is returned wrapped", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "scoring.Submit: insert")
			})
		})

		Convey("Then created records carry the reconciler's clock", func() {
			res, _ := r.Submit(ctx, recs, sub(perf(1, 0, 1)))
			So(res.Record.CreatedAt, ShouldEqual, now)
			So(res.Record.UpdatedAt, ShouldEqual, now)
		})

		Convey("Then the key names the player and day", func() {
			So(sub(perf(0, 0, 0)).Key(), ShouldEqual, "score:P:2026-10-15")
		})
	})
}
