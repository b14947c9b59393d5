package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/model"
)

type ChatRequestRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatRequest, error)
	Create(ctx context.Context, params model.CreateChatRequestParams) (*model.ChatRequest, error)
	// MarkAccepted transitions pending -> accepted. Nil result means the
	// request was not pending anymore; exactly one concurrent accept wins.
	MarkAccepted(ctx context.Context, id string) (*model.ChatRequest, error)
	// MarkRejected transitions pending or accepted -> rejected. The
	// accepted arm lets an acceptance that fails its balance re-check
	// turn into a rejection within the same transaction.
	MarkRejected(ctx context.Context, id string) (*model.ChatRequest, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ChatRequestRepository
}

type chatRequestRepo struct {
	db sqlxDB
}

func NewChatRequestRepository(db *sqlx.DB) ChatRequestRepository {
	return &chatRequestRepo{db: db}
}

func (r *chatRequestRepo) WithTx(tx *sqlx.Tx) ChatRequestRepository {
	return &chatRequestRepo{db: tx}
}

func (r *chatRequestRepo) FindByID(ctx context.Context, id string) (*model.ChatRequest, error) {
	var req model.ChatRequest
	err := r.db.GetContext(ctx, &req, `
		SELECT * FROM chat_requests WHERE id = $1
	`, id)
	return HandleNotFound(&req, err)
}

func (r *chatRequestRepo) Create(ctx context.Context, params model.CreateChatRequestParams) (*model.ChatRequest, error) {
	var req model.ChatRequest
	err := r.db.GetContext(ctx, &req, `
		INSERT INTO chat_requests (id, user_id, astrologer_id, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING *
	`, params.ID, params.UserID, params.AstrologerID)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *chatRequestRepo) MarkAccepted(ctx context.Context, id string) (*model.ChatRequest, error) {
	var req model.ChatRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE chat_requests SET
			status = 'accepted',
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING *
	`, id, time.Now())
	return HandleNotFound(&req, err)
}

func (r *chatRequestRepo) MarkRejected(ctx context.Context, id string) (*model.ChatRequest, error) {
	var req model.ChatRequest
	err := r.db.GetContext(ctx, &req, `
		UPDATE chat_requests SET
			status = 'rejected',
			updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'accepted')
		RETURNING *
	`, id, time.Now())
	return HandleNotFound(&req, err)
}
