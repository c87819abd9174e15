package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/shobdo/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScoreEntryJSON(t *testing.T) {
	Convey("Given a score entry", t, func() {
		entry := types.ScoreEntry{
			Rank:           1,
			MSISDN:         "8801711000000",
			Day:            "2026-10-15",
			CorrectScore:   5,
			IncorrectScore: 1,
			UserTime:       40.5,
		}

		Convey("When encoded", func() {
			b, err := json.Marshal(entry)

			Convey("Then it keeps the field names clients already read", func() {
				So(err, ShouldBeNil)
				s := string(b)
				So(s, ShouldContainSubstring, `"msisdn":"8801711000000"`)
				So(s, ShouldContainSubstring, `"correctScore":5`)
				So(s, ShouldContainSubstring, `"incorrectScore":1`)
				So(s, ShouldContainSubstring, `"userTime":40.5`)
				So(s, ShouldContainSubstring, `"played_at":"2026-10-15"`)
			})
		})
	})
}

func TestPaymentJSON(t *testing.T) {
	Convey("Given a payment without a request id", t, func() {
		b, err := json.Marshal(types.Payment{ID: "p1", Amount: 10, PaidAt: "2026-10-15T00:00:00Z"})

		Convey("Then request_id is omitted", func() {
			So(err, ShouldBeNil)
			So(string(b), ShouldNotContainSubstring, "request_id")
		})
	})
}
