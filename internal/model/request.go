package model

import (
	"time"
)

// ChatRequest is an unaccepted solicitation from a user to an
// astrologer. It transitions out of pending exactly once.
type ChatRequest struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"userId"`
	AstrologerID string        `db:"astrologer_id" json:"astrologerId"`
	Status       RequestStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

type CreateChatRequestParams struct {
	ID           string
	UserID       string
	AstrologerID string
}
