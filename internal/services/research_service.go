package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/corneadesci/funding-service/internal/infrastructure/blockchain"
	"github.com/corneadesci/funding-service/internal/models"
	"github.com/corneadesci/funding-service/internal/repository"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

type ResearchService interface {
	Create(ctx context.Context, researcherID uuid.UUID, req models.CreateResearchRequest) (*models.Research, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Research, error)
	List(ctx context.Context) ([]models.Research, error)
	ListByResearcher(ctx context.Context, researcherID uuid.UUID) ([]models.Research, error)
	UpdateStatus(ctx context.Context, callerID, id uuid.UUID, status models.ResearchStatus) (*models.Research, error)
	RegisterOnBlockchain(ctx context.Context, callerID, id uuid.UUID) (*blockchain.ResearchRegistration, error)
}

type researchService struct {
	researchRepo repository.ResearchRepository
	chain        blockchain.Client
}

func NewResearchService(researchRepo repository.ResearchRepository, chain blockchain.Client) *researchService {
	return &researchService{researchRepo: researchRepo, chain: chain}
}

func (s *researchService) Create(ctx context.Context, researcherID uuid.UUID, req models.CreateResearchRequest) (*models.Research, error) {
	tracer := otel.Tracer("research-service")
	ctx, span := tracer.Start(ctx, "CreateResearch")
	defer span.End()

	if req.Title == "" || req.FundingTarget <= 0 {
		span.SetStatus(codes.Error, "invalid research request")
		return nil, pkgerrors.ErrInvalidInput
	}

	research := &models.Research{
		ID:               uuid.New(),
		Title:            req.Title,
		Description:      req.Description,
		DetailedProposal: req.DetailedProposal,
		ResearcherID:     researcherID,
		Status:           models.ResearchDraft,
		FundingTarget:    req.FundingTarget,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
	}

	if err := s.researchRepo.Create(ctx, research); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "research creation failed")
		slog.Error("failed to create research", "researcher_id", researcherID, "error", err)
		return nil, err
	}

	slog.Info("research created", "research_id", research.ID, "researcher_id", researcherID, "funding_target", research.FundingTarget)
	return research, nil
}

func (s *researchService) GetByID(ctx context.Context, id uuid.UUID) (*models.Research, error) {
	return s.researchRepo.GetByID(ctx, id)
}

func (s *researchService) List(ctx context.Context) ([]models.Research, error) {
	return s.researchRepo.List(ctx)
}

func (s *researchService) ListByResearcher(ctx context.Context, researcherID uuid.UUID) ([]models.Research, error) {
	return s.researchRepo.ListByResearcher(ctx, researcherID)
}

func (s *researchService) UpdateStatus(ctx context.Context, callerID, id uuid.UUID, status models.ResearchStatus) (*models.Research, error) {
	tracer := otel.Tracer("research-service")
	ctx, span := tracer.Start(ctx, "UpdateResearchStatus")
	defer span.End()

	if !status.Valid() {
		span.SetStatus(codes.Error, "invalid status")
		return nil, pkgerrors.ErrInvalidInput
	}

	research, err := s.researchRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if research.ResearcherID != callerID {
		span.SetStatus(codes.Error, "not the owner")
		slog.Warn("research status update denied", "research_id", id, "caller_id", callerID)
		return nil, pkgerrors.ErrForbidden
	}

	updated, err := s.researchRepo.UpdateStatus(ctx, id, status)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

func (s *researchService) RegisterOnBlockchain(ctx context.Context, callerID, id uuid.UUID) (*blockchain.ResearchRegistration, error) {
	tracer := otel.Tracer("research-service")
	ctx, span := tracer.Start(ctx, "RegisterResearchOnBlockchain")
	defer span.End()

	research, err := s.researchRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if research.ResearcherID != callerID {
		span.SetStatus(codes.Error, "not the owner")
		return nil, pkgerrors.ErrForbidden
	}

	metadataURI := fmt.Sprintf("research://%s", research.ID)
	registration, err := s.chain.RegisterResearch(ctx, research.ID, metadataURI)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chain registration failed")
		slog.Error("failed to register research on chain", "research_id", id, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrBlockchain, err)
	}

	if err := s.researchRepo.SetBlockchainID(ctx, id, registration.BlockchainID); err != nil {
		span.RecordError(err)
		slog.Error("failed to store blockchain id", "research_id", id, "error", err)
		return nil, err
	}

	slog.Info("research registered on chain", "research_id", id, "blockchain_id", registration.BlockchainID, "tx_hash", registration.TransactionHash)
	return registration, nil
}
