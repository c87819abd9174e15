package service

import (
	"time"

	"github.com/okian/shobdo/internal/adapters/repository"
	"github.com/okian/shobdo/internal/domain/calendar"
	"github.com/okian/shobdo/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithShardCount sets the number of serializer shards.
func WithShardCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.shardCount = count
		}
	}
}

// WithQueueSize sets the capacity of each shard queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many payout request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the backing store. The service closes it on Stop.
// Without it the service keeps everything in memory.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithReferralReward sets the units earned per referral.
func WithReferralReward(units int64) Option {
	return func(s *Service) {
		if units > 0 {
			s.reward = units
		}
	}
}

// WithClock sets the source of "now" used to derive today.
func WithClock(clock calendar.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocation sets the time zone days are cut in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLeaderboardLimits sets the public board size, the winners count and the
// cap on range reads.
func WithLeaderboardLimits(public, winners, maxRange int) Option {
	return func(s *Service) {
		if public > 0 {
			s.publicLimit = public
		}
		if winners > 0 {
			s.winnersLimit = winners
		}
		if maxRange > 0 {
			s.maxLimit = maxRange
		}
	}
}
