package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/model"
)

type SettlementRepository interface {
	Create(ctx context.Context, params model.CreateSettlementParams) (*model.Settlement, error)
	FindByAstrologerID(ctx context.Context, astrologerID string, limit, offset int) ([]model.Settlement, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SettlementRepository
}

type settlementRepo struct {
	db sqlxDB
}

func NewSettlementRepository(db *sqlx.DB) SettlementRepository {
	return &settlementRepo{db: db}
}

func (r *settlementRepo) WithTx(tx *sqlx.Tx) SettlementRepository {
	return &settlementRepo{db: tx}
}

func (r *settlementRepo) Create(ctx context.Context, params model.CreateSettlementParams) (*model.Settlement, error) {
	var settlement model.Settlement
	err := r.db.GetContext(ctx, &settlement, `
		INSERT INTO settlements (id, astrologer_id, amount, reference, paid_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.ID, params.AstrologerID, params.Amount, params.Reference, time.Now())
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *settlementRepo) FindByAstrologerID(ctx context.Context, astrologerID string, limit, offset int) ([]model.Settlement, error) {
	var settlements []model.Settlement
	err := r.db.SelectContext(ctx, &settlements, `
		SELECT * FROM settlements
		WHERE astrologer_id = $1
		ORDER BY paid_at DESC
		LIMIT $2 OFFSET $3
	`, astrologerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return settlements, nil
}
