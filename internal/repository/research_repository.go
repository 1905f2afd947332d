package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/corneadesci/funding-service/internal/models"
)

type ResearchRepository interface {
	Create(ctx context.Context, research *models.Research) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Research, error)
	List(ctx context.Context) ([]models.Research, error)
	ListByResearcher(ctx context.Context, researcherID uuid.UUID) ([]models.Research, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ResearchStatus) (*models.Research, error)
	SetBlockchainID(ctx context.Context, id uuid.UUID, blockchainID string) error
}
