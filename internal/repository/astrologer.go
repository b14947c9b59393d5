package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/model"
)

type AstrologerRepository interface {
	FindByID(ctx context.Context, id string) (*model.Astrologer, error)
	FindAll(ctx context.Context, limit, offset int) ([]model.Astrologer, error)
	Create(ctx context.Context, params model.CreateAstrologerParams) (*model.Astrologer, error)
	// AddEarnings atomically increments the earnings ledger. Nil result
	// means the astrologer does not exist.
	AddEarnings(ctx context.Context, id string, amount int64) (*model.Astrologer, error)
	// DeductEarnings atomically decrements earnings for a settlement,
	// guarded on earnings >= amount. Nil result means missing or
	// insufficient earnings.
	DeductEarnings(ctx context.Context, id string, amount int64) (*model.Astrologer, error)
	SetOnline(ctx context.Context, id string, online bool) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) AstrologerRepository
}

type astrologerRepo struct {
	db sqlxDB
}

func NewAstrologerRepository(db *sqlx.DB) AstrologerRepository {
	return &astrologerRepo{db: db}
}

func (r *astrologerRepo) WithTx(tx *sqlx.Tx) AstrologerRepository {
	return &astrologerRepo{db: tx}
}

func (r *astrologerRepo) FindByID(ctx context.Context, id string) (*model.Astrologer, error) {
	var astro model.Astrologer
	err := r.db.GetContext(ctx, &astro, `
		SELECT * FROM astrologers WHERE id = $1
	`, id)
	return HandleNotFound(&astro, err)
}

func (r *astrologerRepo) FindAll(ctx context.Context, limit, offset int) ([]model.Astrologer, error) {
	var astros []model.Astrologer
	err := r.db.SelectContext(ctx, &astros, `
		SELECT * FROM astrologers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return astros, nil
}

func (r *astrologerRepo) Create(ctx context.Context, params model.CreateAstrologerParams) (*model.Astrologer, error) {
	var astro model.Astrologer
	err := r.db.GetContext(ctx, &astro, `
		INSERT INTO astrologers (id, name, rate_per_minute)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.ID, params.Name, params.RatePerMinute)
	if err != nil {
		return nil, err
	}
	return &astro, nil
}

func (r *astrologerRepo) AddEarnings(ctx context.Context, id string, amount int64) (*model.Astrologer, error) {
	var astro model.Astrologer
	err := r.db.GetContext(ctx, &astro, `
		UPDATE astrologers SET
			earnings = earnings + $2,
			updated_at = $3
		WHERE id = $1
		RETURNING *
	`, id, amount, time.Now())
	return HandleNotFound(&astro, err)
}

func (r *astrologerRepo) DeductEarnings(ctx context.Context, id string, amount int64) (*model.Astrologer, error) {
	var astro model.Astrologer
	err := r.db.GetContext(ctx, &astro, `
		UPDATE astrologers SET
			earnings = earnings - $2,
			updated_at = $3
		WHERE id = $1 AND earnings >= $2
		RETURNING *
	`, id, amount, time.Now())
	return HandleNotFound(&astro, err)
}

func (r *astrologerRepo) SetOnline(ctx context.Context, id string, online bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE astrologers SET
			online = $2,
			updated_at = $3
		WHERE id = $1
	`, id, online, time.Now())
	return err
}
