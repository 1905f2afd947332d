package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/corneadesci/funding-service/internal/models"
)

type FundingRepository interface {
	// Create persists the funding row together with its pending
	// funding_transactions entry in a single database transaction.
	Create(ctx context.Context, funding *models.Funding) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Funding, error)
	ListByResearch(ctx context.Context, researchID uuid.UUID) ([]models.Funding, error)
	ListByFunder(ctx context.Context, funderID uuid.UUID) ([]models.Funding, error)

	// ConfirmByTransactionHash applies the reconciliation sequence
	// atomically: the pending transaction record is marked verified, the
	// funding moves pending -> confirmed, and the owning research gains the
	// funding amount. Returns ErrTransactionNotFound when no pending
	// transaction matches the hash, so a second call never double-applies.
	ConfirmByTransactionHash(ctx context.Context, txHash string) (*models.Funding, error)

	// UpdateStatus moves a funding to a terminal state. Transitions outside
	// the pending -> {confirmed, refunded, failed} table fail with
	// ErrInvalidStatusTransition. Moving into confirmed applies the same
	// aggregate update as ConfirmByTransactionHash.
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FundingStatus, txHash string) (*models.Funding, error)

	Statistics(ctx context.Context, researchID uuid.UUID) (*models.FundingStatistics, error)
	ListPendingTransactions(ctx context.Context) ([]models.FundingTransaction, error)
}
