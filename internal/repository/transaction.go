package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/model"
)

// TransactionRepository is append-only. Rows are never updated or
// deleted; reconciliation queries by account or session.
type TransactionRepository interface {
	Create(ctx context.Context, params model.CreateTransactionParams) (*model.Transaction, error)
	FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.Transaction, error)
	FindBySessionID(ctx context.Context, sessionID string) ([]model.Transaction, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) TransactionRepository
}

type transactionRepo struct {
	db sqlxDB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) WithTx(tx *sqlx.Tx) TransactionRepository {
	return &transactionRepo{db: tx}
}

func (r *transactionRepo) Create(ctx context.Context, params model.CreateTransactionParams) (*model.Transaction, error) {
	var txn model.Transaction
	err := r.db.GetContext(ctx, &txn, `
		INSERT INTO transactions (id, account_id, account_type, direction, amount, balance_after, reason, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, params.ID, params.AccountID, params.AccountType, params.Direction,
		params.Amount, params.BalanceAfter, params.Reason, params.SessionID)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepo) FindByAccountID(ctx context.Context, accountID string, limit, offset int) ([]model.Transaction, error) {
	var txns []model.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.Transaction, error) {
	var txns []model.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return txns, nil
}
