package model

import (
	"time"
)

// ChatSession is one metered conversation between a user and an
// astrologer. The lifecycle coordinator owns status and timing fields;
// the billing sweep owns the accumulators and LastBilledAt, and only
// while status is active.
//
// Invariants: TotalCoinsDeducted == TotalCoinsEarned at all times, and
// LastBilledAt only moves forward, each advance paired with exactly one
// persisted transaction pair.
type ChatSession struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"userId"`
	AstrologerID  string        `db:"astrologer_id" json:"astrologerId"`
	RatePerMinute int64         `db:"rate_per_minute" json:"ratePerMinute"`
	Status        SessionStatus `db:"status" json:"status"`

	StartedAt    *time.Time `db:"started_at" json:"startedAt,omitempty"`
	EndedAt      *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	LastBilledAt *time.Time `db:"last_billed_at" json:"lastBilledAt,omitempty"`

	TotalSeconds       int64 `db:"total_seconds" json:"totalSeconds"`
	TotalCoinsDeducted int64 `db:"total_coins_deducted" json:"totalCoinsDeducted"`
	TotalCoinsEarned   int64 `db:"total_coins_earned" json:"totalCoinsEarned"`

	EndedBy   *string   `db:"ended_by" json:"endedBy,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateSessionParams struct {
	ID            string
	UserID        string
	AstrologerID  string
	RatePerMinute int64
}
