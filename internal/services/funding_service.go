package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/corneadesci/funding-service/internal/infrastructure/blockchain"
	"github.com/corneadesci/funding-service/internal/infrastructure/kafka"
	"github.com/corneadesci/funding-service/internal/infrastructure/redis"
	"github.com/corneadesci/funding-service/internal/models"
	"github.com/corneadesci/funding-service/internal/repository"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

const statsCacheTTL = 5 * time.Minute

type FundingService interface {
	CreateFunding(ctx context.Context, funderID uuid.UUID, req models.CreateFundingRequest) (*models.Funding, error)
	GetFunding(ctx context.Context, id uuid.UUID) (*models.Funding, error)
	ListByResearch(ctx context.Context, researchID uuid.UUID) ([]models.Funding, error)
	ListByFunder(ctx context.Context, funderID uuid.UUID) ([]models.Funding, error)
	VerifyTransaction(ctx context.Context, txHash string) (*models.Funding, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req models.UpdateFundingStatusRequest) (*models.Funding, error)
	Statistics(ctx context.Context, researchID uuid.UUID) (*models.FundingStatistics, error)
	CreateMilestone(ctx context.Context, callerID uuid.UUID, req models.CreateMilestoneRequest) (*models.FundingMilestone, error)
	ListMilestones(ctx context.Context, fundingID uuid.UUID) ([]models.FundingMilestone, error)
	UpdateMilestone(ctx context.Context, callerID, id uuid.UUID, req models.UpdateMilestoneRequest) (*models.FundingMilestone, error)
	UserBalance(ctx context.Context, userID uuid.UUID) (*models.TokenBalance, error)
}

type fundingService struct {
	fundingRepo   repository.FundingRepository
	researchRepo  repository.ResearchRepository
	milestoneRepo repository.MilestoneRepository
	userRepo      repository.UserRepository
	chain         blockchain.Client
	redisClient   redis.RedisClient
	producer      kafka.KafkaProducer
}

func NewFundingService(
	fundingRepo repository.FundingRepository,
	researchRepo repository.ResearchRepository,
	milestoneRepo repository.MilestoneRepository,
	userRepo repository.UserRepository,
	chain blockchain.Client,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
) *fundingService {
	return &fundingService{
		fundingRepo:   fundingRepo,
		researchRepo:  researchRepo,
		milestoneRepo: milestoneRepo,
		userRepo:      userRepo,
		chain:         chain,
		redisClient:   redisClient,
		producer:      producer,
	}
}

func (s *fundingService) CreateFunding(ctx context.Context, funderID uuid.UUID, req models.CreateFundingRequest) (*models.Funding, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "CreateFunding")
	defer span.End()

	if req.Amount <= 0 {
		span.SetStatus(codes.Error, "non-positive amount")
		slog.Warn("funding rejected", "funder_id", funderID, "amount", req.Amount)
		return nil, pkgerrors.ErrInvalidAmount
	}
	if !req.FundingType.Valid() {
		span.SetStatus(codes.Error, "invalid funding type")
		return nil, pkgerrors.ErrInvalidFundingType
	}

	// Existence check up front so a missing research surfaces as NotFound
	// rather than a foreign key violation.
	if _, err := s.researchRepo.GetByID(ctx, req.ResearchID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "research lookup failed")
		return nil, err
	}

	funding := &models.Funding{
		ID:              uuid.New(),
		ResearchID:      req.ResearchID,
		FunderID:        funderID,
		Amount:          req.Amount,
		Status:          models.FundingPending,
		FundingType:     req.FundingType,
		TransactionHash: req.TransactionHash,
		Message:         req.Message,
	}

	if err := s.fundingRepo.Create(ctx, funding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "funding creation failed")
		return nil, err
	}

	s.publishFundingEvent(ctx, "funding_created", funding)
	slog.Info("funding created", "funding_id", funding.ID, "research_id", funding.ResearchID, "funder_id", funderID, "amount", funding.Amount)
	return funding, nil
}

func (s *fundingService) GetFunding(ctx context.Context, id uuid.UUID) (*models.Funding, error) {
	return s.fundingRepo.GetByID(ctx, id)
}

func (s *fundingService) ListByResearch(ctx context.Context, researchID uuid.UUID) ([]models.Funding, error) {
	if _, err := s.researchRepo.GetByID(ctx, researchID); err != nil {
		return nil, err
	}
	return s.fundingRepo.ListByResearch(ctx, researchID)
}

func (s *fundingService) ListByFunder(ctx context.Context, funderID uuid.UUID) ([]models.Funding, error) {
	return s.fundingRepo.ListByFunder(ctx, funderID)
}

// VerifyTransaction reconciles an externally verified transaction hash with
// its pending funding. The repository applies the whole sequence atomically;
// a hash that was already verified fails with ErrTransactionNotFound, so the
// aggregate is never incremented twice.
func (s *fundingService) VerifyTransaction(ctx context.Context, txHash string) (*models.Funding, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "VerifyTransaction")
	defer span.End()

	if txHash == "" {
		span.SetStatus(codes.Error, "empty transaction hash")
		return nil, pkgerrors.ErrInvalidInput
	}

	funding, err := s.fundingRepo.ConfirmByTransactionHash(ctx, txHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		return nil, err
	}

	s.invalidateStats(ctx, funding.ResearchID)
	s.publishFundingEvent(ctx, "funding_confirmed", funding)
	slog.Info("transaction verified", "tx_hash", txHash, "funding_id", funding.ID, "research_id", funding.ResearchID, "amount", funding.Amount)
	return funding, nil
}

func (s *fundingService) UpdateStatus(ctx context.Context, id uuid.UUID, req models.UpdateFundingStatusRequest) (*models.Funding, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "UpdateFundingStatus")
	defer span.End()

	if !req.Status.Valid() {
		span.SetStatus(codes.Error, "invalid status")
		return nil, pkgerrors.ErrInvalidFundingStatus
	}

	funding, err := s.fundingRepo.UpdateStatus(ctx, id, req.Status, req.TransactionHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status update failed")
		return nil, err
	}

	if req.Status == models.FundingConfirmed {
		s.invalidateStats(ctx, funding.ResearchID)
	}
	s.publishFundingEvent(ctx, "funding_status_changed", funding)
	return funding, nil
}

func (s *fundingService) Statistics(ctx context.Context, researchID uuid.UUID) (*models.FundingStatistics, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "FundingStatistics")
	defer span.End()

	if _, err := s.researchRepo.GetByID(ctx, researchID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	cacheKey := fmt.Sprintf("research:%s:stats", researchID)
	if cached, err := s.redisClient.Get(ctx, cacheKey); err == nil {
		var stats models.FundingStatistics
		if err := json.Unmarshal([]byte(cached), &stats); err == nil {
			return &stats, nil
		}
		slog.Error("failed to unmarshal cached statistics", "research_id", researchID, "error", err)
	}

	stats, err := s.fundingRepo.Statistics(ctx, researchID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if statsBytes, err := json.Marshal(stats); err == nil {
		if err := s.redisClient.Set(ctx, cacheKey, string(statsBytes), statsCacheTTL); err != nil {
			slog.Error("failed to cache statistics", "research_id", researchID, "error", err)
		}
	}
	return stats, nil
}

func (s *fundingService) CreateMilestone(ctx context.Context, callerID uuid.UUID, req models.CreateMilestoneRequest) (*models.FundingMilestone, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "CreateMilestone")
	defer span.End()

	if req.Title == "" {
		span.SetStatus(codes.Error, "empty title")
		return nil, pkgerrors.ErrInvalidInput
	}
	if req.Amount <= 0 {
		span.SetStatus(codes.Error, "non-positive amount")
		return nil, pkgerrors.ErrInvalidAmount
	}

	funding, err := s.fundingRepo.GetByID(ctx, req.FundingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.ensureFundingAccess(ctx, callerID, funding); err != nil {
		span.SetStatus(codes.Error, "access denied")
		return nil, err
	}
	if req.Amount > funding.Amount {
		span.SetStatus(codes.Error, "milestone exceeds funding")
		return nil, pkgerrors.ErrMilestoneExceedsFunding
	}

	milestone := &models.FundingMilestone{
		ID:                uuid.New(),
		FundingID:         req.FundingID,
		Title:             req.Title,
		Description:       req.Description,
		Amount:            req.Amount,
		ReleaseConditions: req.ReleaseConditions,
		DueDate:           req.DueDate,
	}
	if err := s.milestoneRepo.Create(ctx, milestone); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return milestone, nil
}

func (s *fundingService) ListMilestones(ctx context.Context, fundingID uuid.UUID) ([]models.FundingMilestone, error) {
	if _, err := s.fundingRepo.GetByID(ctx, fundingID); err != nil {
		return nil, err
	}
	return s.milestoneRepo.ListByFunding(ctx, fundingID)
}

func (s *fundingService) UpdateMilestone(ctx context.Context, callerID, id uuid.UUID, req models.UpdateMilestoneRequest) (*models.FundingMilestone, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "UpdateMilestone")
	defer span.End()

	milestone, err := s.milestoneRepo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	funding, err := s.fundingRepo.GetByID(ctx, milestone.FundingID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.ensureFundingAccess(ctx, callerID, funding); err != nil {
		span.SetStatus(codes.Error, "access denied")
		return nil, err
	}

	if req.Title != nil {
		milestone.Title = *req.Title
	}
	if req.Description != nil {
		milestone.Description = *req.Description
	}
	if req.ReleaseConditions != nil {
		milestone.ReleaseConditions = *req.ReleaseConditions
	}
	if req.DueDate != nil {
		milestone.DueDate = req.DueDate
	}
	if req.CompletedAt != nil {
		milestone.CompletedAt = req.CompletedAt
	}
	if req.Amount != nil {
		if *req.Amount <= 0 {
			span.SetStatus(codes.Error, "non-positive amount")
			return nil, pkgerrors.ErrInvalidAmount
		}
		if *req.Amount > funding.Amount {
			span.SetStatus(codes.Error, "milestone exceeds funding")
			return nil, pkgerrors.ErrMilestoneExceedsFunding
		}
		milestone.Amount = *req.Amount
	}

	if req.IsReleased != nil {
		if milestone.IsReleased {
			// Released is terminal: no second release, no un-release.
			span.SetStatus(codes.Error, "milestone already released")
			return nil, pkgerrors.ErrMilestoneAlreadyReleased
		}
		if *req.IsReleased {
			releasedTotal, err := s.milestoneRepo.ReleasedTotal(ctx, funding.ID)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			if releasedTotal+milestone.Amount > funding.Amount {
				span.SetStatus(codes.Error, "release exceeds funding")
				slog.Warn("milestone release rejected", "milestone_id", id, "funding_id", funding.ID, "released_total", releasedTotal, "amount", milestone.Amount, "funding_amount", funding.Amount)
				return nil, pkgerrors.ErrMilestoneExceedsFunding
			}
			milestone.IsReleased = true
			if milestone.CompletedAt == nil {
				now := time.Now().UTC()
				milestone.CompletedAt = &now
			}
		}
	}

	if err := s.milestoneRepo.Update(ctx, milestone); err != nil {
		span.RecordError(err)
		return nil, err
	}

	slog.Info("milestone updated", "milestone_id", id, "funding_id", funding.ID, "is_released", milestone.IsReleased)
	return milestone, nil
}

func (s *fundingService) UserBalance(ctx context.Context, userID uuid.UUID) (*models.TokenBalance, error) {
	tracer := otel.Tracer("funding-service")
	ctx, span := tracer.Start(ctx, "UserBalance")
	defer span.End()

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if user.WalletAddress == "" {
		span.SetStatus(codes.Error, "no wallet address")
		return nil, pkgerrors.ErrNoWallet
	}

	balance, err := s.chain.GetBalance(ctx, user.WalletAddress)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chain balance lookup failed")
		slog.Error("failed to get token balance", "user_id", userID, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrBlockchain, err)
	}

	return &models.TokenBalance{
		UserID:      userID,
		Balance:     balance,
		LastUpdated: time.Now().UTC(),
	}, nil
}

// ensureFundingAccess allows the funder who created the funding and the
// researcher who owns the funded research.
func (s *fundingService) ensureFundingAccess(ctx context.Context, callerID uuid.UUID, funding *models.Funding) error {
	if callerID == funding.FunderID {
		return nil
	}
	research, err := s.researchRepo.GetByID(ctx, funding.ResearchID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrResearchNotFound) {
			return pkgerrors.ErrForbidden
		}
		return err
	}
	if callerID != research.ResearcherID {
		slog.Warn("milestone access denied", "caller_id", callerID, "funding_id", funding.ID)
		return pkgerrors.ErrForbidden
	}
	return nil
}

func (s *fundingService) invalidateStats(ctx context.Context, researchID uuid.UUID) {
	cacheKey := fmt.Sprintf("research:%s:stats", researchID)
	if err := s.redisClient.Del(ctx, cacheKey); err != nil {
		slog.Error("failed to invalidate statistics cache", "research_id", researchID, "error", err)
	}
}

func (s *fundingService) publishFundingEvent(ctx context.Context, eventType string, funding *models.Funding) {
	event := map[string]interface{}{
		"event_type":  eventType,
		"funding_id":  funding.ID,
		"research_id": funding.ResearchID,
		"funder_id":   funding.FunderID,
		"amount":      funding.Amount,
		"status":      funding.Status,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal funding event", "funding_id", funding.ID, "error", err)
		return
	}
	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.producer.Send(context.Background(), "funding-events", funding.ID.String(), eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send funding event after retries", "funding_id", funding.ID, "event_type", eventType)
	}()
}
