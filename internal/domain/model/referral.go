package model

import "time"

// ReferralEdge records that Referrer brought Referred into the game.
type ReferralEdge struct {
	ID        int64
	Referrer  string
	Referred  string
	CreatedAt time.Time
}

// ReferralPayment is one payout made to a referrer. Payments are append-only.
type ReferralPayment struct {
	ID        string
	Referrer  string
	Amount    int64
	RequestID string
	PaidAt    time.Time
}
