package model

import (
	"time"
)

// Transaction is an immutable audit record. Exactly one debit/credit
// pair is appended per billed interval; rows are never updated or
// deleted.
type Transaction struct {
	ID           string      `db:"id" json:"id"`
	AccountID    string      `db:"account_id" json:"accountId"`
	AccountType  AccountType `db:"account_type" json:"accountType"`
	Direction    TxDirection `db:"direction" json:"direction"`
	Amount       int64       `db:"amount" json:"amount"`
	BalanceAfter int64       `db:"balance_after" json:"balanceAfter"`
	Reason       TxReason    `db:"reason" json:"reason"`
	SessionID    *string     `db:"session_id" json:"sessionId,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
}

type CreateTransactionParams struct {
	ID           string
	AccountID    string
	AccountType  AccountType
	Direction    TxDirection
	Amount       int64
	BalanceAfter int64
	Reason       TxReason
	SessionID    *string
}
