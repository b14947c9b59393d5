package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/model"
)

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.ChatSession, error)
	// FindActive returns every session with status 'active'. The billing
	// sweep derives its working set entirely from this query; no timer
	// state lives outside the store.
	FindActive(ctx context.Context) ([]model.ChatSession, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error)
	// MarkActive transitions waiting -> active, stamping startedAt and
	// lastBilledAt. Nil result means the session was not waiting;
	// duplicate activation attempts are no-ops.
	MarkActive(ctx context.Context, id string, now time.Time) (*model.ChatSession, error)
	// AdvanceBilling moves the accumulators and lastBilledAt forward by
	// the billed amount, guarded on status='active' AND an unchanged
	// lastBilledAt. The guard serializes ticks: a concurrent tick or a
	// concurrent Finish makes this return nil, and the caller must not
	// apply any ledger mutation.
	AdvanceBilling(ctx context.Context, id string, prevBilledAt time.Time, seconds, coins int64) (*model.ChatSession, error)
	// Finish transitions waiting|active -> the given terminal status.
	// Nil result means the session was already terminal (idempotent end).
	Finish(ctx context.Context, id string, status model.SessionStatus, endedBy string, now time.Time) (*model.ChatSession, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM chat_sessions WHERE id = $1
	`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindActive(ctx context.Context) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM chat_sessions
		WHERE status = 'active'
		ORDER BY last_billed_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO chat_sessions (id, user_id, astrologer_id, rate_per_minute, status)
		VALUES ($1, $2, $3, $4, 'waiting')
		RETURNING *
	`, params.ID, params.UserID, params.AstrologerID, params.RatePerMinute)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) MarkActive(ctx context.Context, id string, now time.Time) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			status = 'active',
			started_at = $2,
			last_billed_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'waiting'
		RETURNING *
	`, id, now)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) AdvanceBilling(ctx context.Context, id string, prevBilledAt time.Time, seconds, coins int64) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			total_seconds = total_seconds + $3,
			total_coins_deducted = total_coins_deducted + $4,
			total_coins_earned = total_coins_earned + $4,
			last_billed_at = last_billed_at + ($3 * interval '1 second'),
			updated_at = $5
		WHERE id = $1 AND status = 'active' AND last_billed_at = $2
		RETURNING *
	`, id, prevBilledAt, seconds, coins, time.Now())
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Finish(ctx context.Context, id string, status model.SessionStatus, endedBy string, now time.Time) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.GetContext(ctx, &session, `
		UPDATE chat_sessions SET
			status = $2,
			ended_at = $3,
			ended_by = $4,
			updated_at = $3
		WHERE id = $1 AND status IN ('waiting', 'active')
		RETURNING *
	`, id, status, now, endedBy)
	return HandleNotFound(&session, err)
}
