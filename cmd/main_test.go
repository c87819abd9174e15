package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/shobdo/internal/config"
	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given store configurations", t, func() {
		ctx := context.Background()

		convey.Convey("When the memory driver is configured", func() {
			cfg := config.New()
			store, err := openStore(ctx, cfg)

			convey.Convey("Then a ready in-memory store is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.Ping(ctx), convey.ShouldBeNil)
				convey.So(store.Close(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When sqlite is configured with auto migration", func() {
			cfg := config.New()
			cfg.StoreDriver = config.StoreSQLite
			cfg.StoreDSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			store, err := openStore(ctx, cfg)

			convey.Convey("Then the schema is usable", func() {
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = store.Close() }()
				n, err := store.CountDaily(ctx, calendar.Today(calendar.SystemClock{}, time.UTC))
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When an unknown driver slips through", func() {
			cfg := config.New()
			cfg.StoreDriver = "oracle"
			_, err := openStore(ctx, cfg)

			convey.Convey("Then opening fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestApplicationWiring(t *testing.T) {
	convey.Convey("Given a service built from the default config", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg := config.New()
		cfg.ShardCount = 2
		store, err := openStore(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)

		svc, err := newService(cfg, store, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		h := newHandler(ctx, svc)

		convey.Convey("When a score is posted and the board is read", func() {
			post := httptest.NewRecorder()
			h.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/userscore",
				strings.NewReader(`{"msisdn":"8801711111111","correctScore":7,"incorrectScore":1,"userTime":12.5}`)))

			board := httptest.NewRecorder()
			h.ServeHTTP(board, httptest.NewRequest(http.MethodGet, "/public-leaderboard", http.NoBody))

			convey.Convey("Then the play shows up ranked first", func() {
				convey.So(post.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(post.Body.String(), convey.ShouldContainSubstring, `"status":"created"`)
				convey.So(board.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(board.Body.String(), convey.ShouldContainSubstring, `"msisdn":"8801711111111"`)
				convey.So(board.Body.String(), convey.ShouldContainSubstring, `"rank":1`)
			})
		})

		convey.Convey("When docs and metrics are requested", func() {
			docs := httptest.NewRecorder()
			h.ServeHTTP(docs, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
			health := httptest.NewRecorder()
			h.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

			convey.Convey("Then both are served", func() {
				convey.So(docs.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(health.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})

	convey.Convey("Given a config with an unknown time zone", t, func() {
		cfg := config.New()
		cfg.Timezone = "Nowhere/Special"

		convey.Convey("Then the service is not built", func() {
			_, err := newService(cfg, nil, logger.Get())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the loop returns once the context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
