package blockchain

import (
	"context"

	"github.com/google/uuid"
)

// Client is the boundary to the chain. The funding core never depends on the
// values it returns for correctness; implementations may be simulated.
type Client interface {
	RegisterResearch(ctx context.Context, researchID uuid.UUID, metadataURI string) (*ResearchRegistration, error)
	VerifyProofOfInvention(ctx context.Context, poiID uuid.UUID, ipfsHash string) (*PoIVerification, error)
	VerifyTransaction(ctx context.Context, txHash string) (*TransactionResult, error)
	GetBalance(ctx context.Context, address string) (int64, error)
	Mint(ctx context.Context, toAddress string, amount int64) (*TransactionResult, error)
}

type TransactionResult struct {
	TransactionHash string `json:"transaction_hash"`
	BlockNumber     uint64 `json:"block_number,omitempty"`
	Status          bool   `json:"status"`
}

type ResearchRegistration struct {
	ResearchID      uuid.UUID `json:"research_id"`
	TransactionHash string    `json:"transaction_hash"`
	BlockchainID    string    `json:"blockchain_id"`
	Timestamp       int64     `json:"timestamp"`
}

type PoIVerification struct {
	PoIID           uuid.UUID `json:"poi_id"`
	TransactionHash string    `json:"transaction_hash"`
	Verified        bool      `json:"verified"`
	Timestamp       int64     `json:"timestamp"`
}
