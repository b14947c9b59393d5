package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/astroline/consult-server-go/internal/audit"
	apperrors "github.com/astroline/consult-server-go/internal/errors"
	"github.com/astroline/consult-server-go/internal/model"
	"github.com/astroline/consult-server-go/internal/repository"
)

// SettlementService pays out accumulated astrologer earnings. The
// deduction is guarded on the earnings balance, so a settlement can
// never overdraw concurrent billing credits.
type SettlementService struct {
	db          txRunner
	astrologers repository.AstrologerRepository
	settlements repository.SettlementRepository
	txns        repository.TransactionRepository
}

func NewSettlementService(
	db txRunner,
	astrologers repository.AstrologerRepository,
	settlements repository.SettlementRepository,
	txns repository.TransactionRepository,
) *SettlementService {
	return &SettlementService{
		db:          db,
		astrologers: astrologers,
		settlements: settlements,
		txns:        txns,
	}
}

func (s *SettlementService) Settle(ctx context.Context, astrologerID string, amount int64, reference string) (*model.Settlement, error) {
	if amount <= 0 {
		return nil, apperrors.InvalidInput("amount", "must be positive")
	}
	if reference == "" {
		return nil, apperrors.MissingRequired("reference")
	}

	var settlement *model.Settlement
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		astrologers := s.astrologers.WithTx(tx)
		settlements := s.settlements.WithTx(tx)
		txns := s.txns.WithTx(tx)

		astro, err := astrologers.DeductEarnings(ctx, astrologerID, amount)
		if err != nil {
			return fmt.Errorf("deduct earnings: %w", err)
		}
		if astro == nil {
			existing, ferr := astrologers.FindByID(ctx, astrologerID)
			if ferr != nil {
				return fmt.Errorf("find astrologer: %w", ferr)
			}
			if existing == nil {
				return apperrors.NotFound("Astrologer")
			}
			return apperrors.InsufficientEarnings(amount, existing.Earnings)
		}

		settlement, err = settlements.Create(ctx, model.CreateSettlementParams{
			ID:           uuid.NewString(),
			AstrologerID: astro.ID,
			Amount:       amount,
			Reference:    reference,
		})
		if err != nil {
			return fmt.Errorf("create settlement: %w", err)
		}

		if _, err := txns.Create(ctx, model.CreateTransactionParams{
			ID:           uuid.NewString(),
			AccountID:    astro.ID,
			AccountType:  model.AccountTypeAstrologer,
			Direction:    model.TxDebit,
			Amount:       amount,
			BalanceAfter: astro.Earnings,
			Reason:       model.TxReasonSettlement,
		}); err != nil {
			return fmt.Errorf("append settlement transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:         audit.EventSettlementPaid,
		AstrologerID: astrologerID,
		Amount:       amount,
		Details:      map[string]interface{}{"reference": reference},
	})

	log.Info().
		Str("astrologerId", astrologerID).
		Int64("amount", amount).
		Str("reference", reference).
		Msg("settlement paid")

	return settlement, nil
}

func (s *SettlementService) List(ctx context.Context, astrologerID string, limit, offset int) ([]model.Settlement, error) {
	settlements, err := s.settlements.FindByAstrologerID(ctx, astrologerID, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return settlements, nil
}
