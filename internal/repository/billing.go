package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/astroline/consult-server-go/internal/database"
	"github.com/astroline/consult-server-go/internal/model"
)

// ChargeOutcome classifies the result of one billing attempt.
type ChargeOutcome string

const (
	// ChargeApplied: the transfer committed; accumulators advanced.
	ChargeApplied ChargeOutcome = "applied"
	// ChargeStale: another actor advanced lastBilledAt or ended the
	// session first. Nothing was written.
	ChargeStale ChargeOutcome = "stale"
	// ChargeInsufficient: the user balance cannot cover the amount.
	// Nothing was written; the balance is untouched.
	ChargeInsufficient ChargeOutcome = "insufficient"
	// ChargeMissingAccount: the user or astrologer row is gone while the
	// session is still active. Nothing was written.
	ChargeMissingAccount ChargeOutcome = "missing_account"
)

type ChargeParams struct {
	SessionID    string
	PrevBilledAt time.Time
	// Minutes is the number of whole billing intervals being charged.
	Minutes int64
	// Seconds is Minutes expressed in billed seconds (whole intervals
	// only; the elapsed remainder stays with the session).
	Seconds int64
	Amount  int64
}

type ChargeResult struct {
	Outcome            ChargeOutcome
	Session            *model.ChatSession
	UserBalance        int64
	AstrologerEarnings int64
}

// BillingRepository performs the per-interval transfer as one atomic
// unit: session accumulator advance, user debit, astrologer credit and
// the transaction pair either all commit or none do.
type BillingRepository interface {
	ChargeSession(ctx context.Context, params ChargeParams) (*ChargeResult, error)
}

type billingRepo struct {
	db          *database.DB
	sessions    SessionRepository
	users       UserRepository
	astrologers AstrologerRepository
	txns        TransactionRepository
}

func NewBillingRepository(
	db *database.DB,
	sessions SessionRepository,
	users UserRepository,
	astrologers AstrologerRepository,
	txns TransactionRepository,
) BillingRepository {
	return &billingRepo{
		db:          db,
		sessions:    sessions,
		users:       users,
		astrologers: astrologers,
		txns:        txns,
	}
}

// errAbortCharge rolls the transaction back while letting the caller
// read the classified outcome from the result.
var errAbortCharge = errors.New("abort charge")

func (r *billingRepo) ChargeSession(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	result := &ChargeResult{}

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := r.sessions.WithTx(tx)
		users := r.users.WithTx(tx)
		astrologers := r.astrologers.WithTx(tx)
		txns := r.txns.WithTx(tx)

		// The guarded update takes the session row lock first, so a
		// concurrent Finish or tick for the same session serializes here.
		session, err := sessions.AdvanceBilling(ctx, params.SessionID, params.PrevBilledAt, params.Seconds, params.Amount)
		if err != nil {
			return fmt.Errorf("advance billing: %w", err)
		}
		if session == nil {
			result.Outcome = ChargeStale
			return errAbortCharge
		}

		user, err := users.Debit(ctx, session.UserID, params.Amount)
		if err != nil {
			return fmt.Errorf("debit user: %w", err)
		}
		if user == nil {
			existing, ferr := users.FindByID(ctx, session.UserID)
			if ferr != nil {
				return fmt.Errorf("find user after failed debit: %w", ferr)
			}
			if existing == nil {
				result.Outcome = ChargeMissingAccount
			} else {
				result.Outcome = ChargeInsufficient
				result.UserBalance = existing.Coins
			}
			return errAbortCharge
		}

		astro, err := astrologers.AddEarnings(ctx, session.AstrologerID, params.Amount)
		if err != nil {
			return fmt.Errorf("credit astrologer: %w", err)
		}
		if astro == nil {
			result.Outcome = ChargeMissingAccount
			return errAbortCharge
		}

		if _, err := txns.Create(ctx, model.CreateTransactionParams{
			ID:           uuid.NewString(),
			AccountID:    user.ID,
			AccountType:  model.AccountTypeUser,
			Direction:    model.TxDebit,
			Amount:       params.Amount,
			BalanceAfter: user.Coins,
			Reason:       model.TxReasonChatDebit,
			SessionID:    &session.ID,
		}); err != nil {
			return fmt.Errorf("append debit transaction: %w", err)
		}

		if _, err := txns.Create(ctx, model.CreateTransactionParams{
			ID:           uuid.NewString(),
			AccountID:    astro.ID,
			AccountType:  model.AccountTypeAstrologer,
			Direction:    model.TxCredit,
			Amount:       params.Amount,
			BalanceAfter: astro.Earnings,
			Reason:       model.TxReasonChatCredit,
			SessionID:    &session.ID,
		}); err != nil {
			return fmt.Errorf("append credit transaction: %w", err)
		}

		result.Outcome = ChargeApplied
		result.Session = session
		result.UserBalance = user.Coins
		result.AstrologerEarnings = astro.Earnings
		return nil
	})

	if errors.Is(err, errAbortCharge) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
