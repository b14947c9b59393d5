package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/astroline/consult-server-go/internal/audit"
	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/events"
	"github.com/astroline/consult-server-go/internal/model"
	redisclient "github.com/astroline/consult-server-go/internal/redis"
	"github.com/astroline/consult-server-go/internal/repository"
)

// WalletService exposes the user coin ledger. Top-ups arrive as opaque
// already-verified events; gateway order creation and signature checks
// happen upstream.
type WalletService struct {
	db     txRunner
	users  repository.UserRepository
	txns   repository.TransactionRepository
	broker events.Publisher
}

func NewWalletService(
	db txRunner,
	users repository.UserRepository,
	txns repository.TransactionRepository,
	broker events.Publisher,
) *WalletService {
	return &WalletService{
		db:     db,
		users:  users,
		txns:   txns,
		broker: broker,
	}
}

// TopUp credits the wallet and appends the TOPUP transaction in one
// atomic unit.
func (s *WalletService) TopUp(ctx context.Context, userID string, coins int64, reference string) (*model.User, error) {
	if coins <= 0 {
		return nil, apperrors.InvalidInput("coins", "must be positive")
	}

	var user *model.User
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		users := s.users.WithTx(tx)
		txns := s.txns.WithTx(tx)

		var err error
		user, err = users.Credit(ctx, userID, coins)
		if err != nil {
			return fmt.Errorf("credit user: %w", err)
		}
		if user == nil {
			return apperrors.NotFound("User")
		}

		if _, err := txns.Create(ctx, model.CreateTransactionParams{
			ID:           uuid.NewString(),
			AccountID:    user.ID,
			AccountType:  model.AccountTypeUser,
			Direction:    model.TxCredit,
			Amount:       coins,
			BalanceAfter: user.Coins,
			Reason:       model.TxReasonTopup,
		}); err != nil {
			return fmt.Errorf("append topup transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Database(err)
	}

	event, merr := events.Marshal(events.TypeWalletCredited, events.WalletCreditedPayload{
		Coins:   coins,
		Balance: user.Coins,
		Ref:     reference,
	})
	if merr == nil {
		if perr := s.broker.Publish(ctx, redisclient.UserChannel(user.ID), event); perr != nil {
			log.Warn().Err(perr).Str("userId", user.ID).Msg("failed to publish wallet-credited event")
		}
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventWalletTopup,
		UserID:  user.ID,
		Amount:  coins,
		Details: map[string]interface{}{"reference": reference, "balance": user.Coins},
	})

	log.Info().
		Str("userId", user.ID).
		Int64("coins", coins).
		Int64("balance", user.Coins).
		Msg("wallet topped up")

	return user, nil
}

func (s *WalletService) Balance(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, apperrors.NotFound("User")
	}
	return user, nil
}

func (s *WalletService) Transactions(ctx context.Context, accountID string, limit, offset int) ([]model.Transaction, error) {
	txns, err := s.txns.FindByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return txns, nil
}

// SessionTransactions lists the audit trail for one session, ordered by
// billing progression, for reconciliation.
func (s *WalletService) SessionTransactions(ctx context.Context, sessionID string) ([]model.Transaction, error) {
	txns, err := s.txns.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return txns, nil
}
