// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/shobdo/internal/domain/calendar"
)

// Performance is one play of the daily game.
type Performance struct {
	Correct   int64         // correct answers, higher is better
	Incorrect int64         // incorrect answers, lower is better
	Elapsed   time.Duration // time taken, lower is better
}

// DailyScore is a player's retained best performance for one calendar day.
type DailyScore struct {
	ID     int64
	Player string // MSISDN
	Day    calendar.Day
	Performance
	CreatedAt time.Time
	UpdatedAt time.Time
}
