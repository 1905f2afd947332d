package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/corneadesci/funding-service/internal/models"
)

type MilestoneRepository interface {
	Create(ctx context.Context, milestone *models.FundingMilestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FundingMilestone, error)
	ListByFunding(ctx context.Context, fundingID uuid.UUID) ([]models.FundingMilestone, error)
	Update(ctx context.Context, milestone *models.FundingMilestone) error
	// ReleasedTotal sums the amounts of already released milestones for a
	// funding, used to guard against over-release.
	ReleasedTotal(ctx context.Context, fundingID uuid.UUID) (int64, error)
}
