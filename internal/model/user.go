package model

import (
	"time"
)

// User holds the prepaid coin wallet. Authentication lives outside this
// service; only wallet-relevant fields are kept.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Coins     int64     `db:"coins" json:"coins"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type CreateUserParams struct {
	ID    string `json:"-"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Coins int64  `json:"coins"`
}
