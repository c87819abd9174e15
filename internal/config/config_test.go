package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/shobdo/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.ShardCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.StoreMaxOpenConns, convey.ShouldEqual, 16)
			convey.So(cfg.StorePingTimeout, convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.ReferralReward, convey.ShouldEqual, 10)
			convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
			convey.So(cfg.PublicLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.WinnersLimit, convey.ShouldEqual, 5)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad field each", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"zero shards", func(c *config.Config) { c.ShardCount = 0 }},
			{"negative queue", func(c *config.Config) { c.QueueSize = -1 }},
			{"zero pool", func(c *config.Config) { c.StoreMaxOpenConns = 0 }},
			{"zero ping timeout", func(c *config.Config) { c.StorePingTimeout = 0 }},
			{"zero dedupe", func(c *config.Config) { c.DedupeSize = 0 }},
			{"zero reward", func(c *config.Config) { c.ReferralReward = 0 }},
			{"zero winners", func(c *config.Config) { c.WinnersLimit = 0 }},
			{"unknown driver", func(c *config.Config) { c.StoreDriver = "oracle" }},
			{"sqlite no dsn", func(c *config.Config) { c.StoreDriver = config.StoreSQLite }},
			{"unknown zone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }},
			{"postgres no dsn", func(c *config.Config) { c.StoreDriver = config.StorePostgres }},
		}

		for _, tc := range cases {
			convey.Convey("Then validation rejects "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a sqlite config with a dsn", t, func() {
		cfg := config.New()
		cfg.StoreDriver = config.StoreSQLite
		cfg.StoreDSN = "file:shobdo.db"
		cfg.Timezone = "Asia/Dhaka"

		convey.So(cfg.Validate(), convey.ShouldBeNil)
		loc, err := cfg.Location()
		convey.So(err, convey.ShouldBeNil)
		convey.So(loc.String(), convey.ShouldEqual, "Asia/Dhaka")
	})
}
