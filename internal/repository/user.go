package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	// Credit atomically increments the coin balance and returns the
	// updated row. Nil result means the user does not exist.
	Credit(ctx context.Context, id string, amount int64) (*model.User, error)
	// Debit atomically decrements the coin balance, but only when the
	// current balance covers the amount. Nil result means the guard did
	// not match: the user is missing or the balance is insufficient.
	Debit(ctx context.Context, id string, amount int64) (*model.User, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db sqlxDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE id = $1
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (id, name, email, coins)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, params.ID, params.Name, params.Email, params.Coins)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) Credit(ctx context.Context, id string, amount int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET
			coins = coins + $2,
			updated_at = $3
		WHERE id = $1
		RETURNING *
	`, id, amount, time.Now())
	return HandleNotFound(&user, err)
}

func (r *userRepo) Debit(ctx context.Context, id string, amount int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET
			coins = coins - $2,
			updated_at = $3
		WHERE id = $1 AND coins >= $2
		RETURNING *
	`, id, amount, time.Now())
	return HandleNotFound(&user, err)
}
