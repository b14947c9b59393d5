package model

import (
	"time"
)

type Astrologer struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	RatePerMinute int64     `db:"rate_per_minute" json:"ratePerMinute"`
	Earnings      int64     `db:"earnings" json:"earnings"`
	Online        bool      `db:"online" json:"online"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateAstrologerParams struct {
	ID            string `json:"-"`
	Name          string `json:"name"`
	RatePerMinute int64  `json:"ratePerMinute"`
}
