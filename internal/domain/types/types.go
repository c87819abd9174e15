// Package types contains the read shapes returned by the HTTP API.
package types

// ScoreEntry is one leaderboard row.
type ScoreEntry struct {
	Rank           int     `json:"rank"`
	MSISDN         string  `json:"msisdn"`
	Day            string  `json:"played_at"`
	CorrectScore   int64   `json:"correctScore"`
	IncorrectScore int64   `json:"incorrectScore"`
	UserTime       float64 `json:"userTime"`
}

// Balance is a referrer's ledger summary.
type Balance struct {
	MSISDN    string `json:"msisdn"`
	Referrals int64  `json:"referrals"`
	Earned    int64  `json:"earned"`
	Paid      int64  `json:"paid"`
	Pending   int64  `json:"pending"`
}

// Payment is one recorded payout.
type Payment struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id,omitempty"`
	PaidAt    string `json:"paid_at"`
}

// Referral is one referred player.
type Referral struct {
	ReferredMSISDN string `json:"referred_msisdn"`
	CreatedAt      string `json:"created_at"`
}

// ReferralHistory lists a referrer's referred players and payouts.
type ReferralHistory struct {
	MSISDN    string     `json:"msisdn"`
	Referrals []Referral `json:"referrals"`
	Payments  []Payment  `json:"payments"`
}
