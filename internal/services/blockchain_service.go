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
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

// VerificationResult pairs the chain-side receipt with the funding the
// reconciliation applied it to.
type VerificationResult struct {
	Transaction *blockchain.TransactionResult `json:"transaction"`
	Funding     *models.Funding               `json:"funding"`
}

type BlockchainService interface {
	VerifyTransaction(ctx context.Context, txHash string) (*VerificationResult, error)
	VerifyProofOfInvention(ctx context.Context, poiID uuid.UUID, ipfsHash string) (*blockchain.PoIVerification, error)
	TokenBalance(ctx context.Context, address string) (int64, error)
	Mint(ctx context.Context, toAddress string, amount int64) (*blockchain.TransactionResult, error)
}

type blockchainService struct {
	chain   blockchain.Client
	funding FundingService
}

func NewBlockchainService(chain blockchain.Client, funding FundingService) *blockchainService {
	return &blockchainService{chain: chain, funding: funding}
}

// VerifyTransaction asks the chain about the hash, then hands it to the
// funding reconciliation. The chain answer gates the reconciliation but its
// simulated payload carries no business meaning.
func (s *blockchainService) VerifyTransaction(ctx context.Context, txHash string) (*VerificationResult, error) {
	tracer := otel.Tracer("blockchain-service")
	ctx, span := tracer.Start(ctx, "VerifyTransaction")
	defer span.End()

	if txHash == "" {
		span.SetStatus(codes.Error, "empty transaction hash")
		return nil, pkgerrors.ErrInvalidInput
	}

	result, err := s.chain.VerifyTransaction(ctx, txHash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chain verification failed")
		slog.Error("chain verification failed", "tx_hash", txHash, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrBlockchain, err)
	}
	if !result.Status {
		span.SetStatus(codes.Error, "transaction not confirmed on chain")
		return nil, fmt.Errorf("%w: transaction %s not confirmed", pkgerrors.ErrBlockchain, txHash)
	}

	funding, err := s.funding.VerifyTransaction(ctx, txHash)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &VerificationResult{Transaction: result, Funding: funding}, nil
}

func (s *blockchainService) VerifyProofOfInvention(ctx context.Context, poiID uuid.UUID, ipfsHash string) (*blockchain.PoIVerification, error) {
	verification, err := s.chain.VerifyProofOfInvention(ctx, poiID, ipfsHash)
	if err != nil {
		slog.Error("proof of invention verification failed", "poi_id", poiID, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrBlockchain, err)
	}
	return verification, nil
}

func (s *blockchainService) TokenBalance(ctx context.Context, address string) (int64, error) {
	if address == "" {
		return 0, pkgerrors.ErrInvalidInput
	}
	balance, err := s.chain.GetBalance(ctx, address)
	if err != nil {
		slog.Error("token balance lookup failed", "address", address, "error", err)
		return 0, fmt.Errorf("%w: %v", pkgerrors.ErrBlockchain, err)
	}
	return balance, nil
}

func (s *blockchainService) Mint(ctx context.Context, toAddress string, amount int64) (*blockchain.TransactionResult, error) {
	if toAddress == "" {
		return nil, pkgerrors.ErrInvalidInput
	}
	if amount <= 0 {
		return nil, pkgerrors.ErrInvalidAmount
	}
	result, err := s.chain.Mint(ctx, toAddress, amount)
	if err != nil {
		slog.Error("mint failed", "to", toAddress, "amount", amount, "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrBlockchain, err)
	}
	slog.Info("tokens minted", "to", toAddress, "amount", amount, "tx_hash", result.TransactionHash)
	return result, nil
}
