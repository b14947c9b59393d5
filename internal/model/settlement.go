package model

import (
	"time"
)

// Settlement records a payout of accumulated earnings to an astrologer.
type Settlement struct {
	ID           string    `db:"id" json:"id"`
	AstrologerID string    `db:"astrologer_id" json:"astrologerId"`
	Amount       int64     `db:"amount" json:"amount"`
	Reference    string    `db:"reference" json:"reference"`
	PaidAt       time.Time `db:"paid_at" json:"paidAt"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type CreateSettlementParams struct {
	ID           string
	AstrologerID string
	Amount       int64
	Reference    string
}
