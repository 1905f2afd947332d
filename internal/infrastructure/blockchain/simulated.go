package blockchain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// SimulatedClient stands in for a real chain connection. Hashes, block
// numbers and balances are random; the rest of the system must not read
// meaning into them.
type SimulatedClient struct {
	network         string
	contractAddress string
}

func NewSimulatedClient(network, contractAddress string) *SimulatedClient {
	return &SimulatedClient{network: network, contractAddress: contractAddress}
}

func (c *SimulatedClient) RegisterResearch(ctx context.Context, researchID uuid.UUID, metadataURI string) (*ResearchRegistration, error) {
	slog.Info("registering research on chain", "research_id", researchID, "network", c.network)
	return &ResearchRegistration{
		ResearchID:      researchID,
		TransactionHash: randomHash(),
		BlockchainID:    fmt.Sprintf("res_%x", rand.Uint64()),
		Timestamp:       time.Now().Unix(),
	}, nil
}

func (c *SimulatedClient) VerifyProofOfInvention(ctx context.Context, poiID uuid.UUID, ipfsHash string) (*PoIVerification, error) {
	slog.Info("verifying proof of invention on chain", "poi_id", poiID)
	return &PoIVerification{
		PoIID:           poiID,
		TransactionHash: randomHash(),
		Verified:        true,
		Timestamp:       time.Now().Unix(),
	}, nil
}

func (c *SimulatedClient) VerifyTransaction(ctx context.Context, txHash string) (*TransactionResult, error) {
	slog.Info("verifying transaction on chain", "tx_hash", txHash)
	return &TransactionResult{
		TransactionHash: txHash,
		BlockNumber:     rand.Uint64() % 10_000_000,
		Status:          true,
	}, nil
}

func (c *SimulatedClient) GetBalance(ctx context.Context, address string) (int64, error) {
	slog.Info("getting token balance", "address", address)
	return rand.Int63n(1_000_000), nil
}

func (c *SimulatedClient) Mint(ctx context.Context, toAddress string, amount int64) (*TransactionResult, error) {
	slog.Info("minting tokens", "to", toAddress, "amount", amount)
	return &TransactionResult{
		TransactionHash: randomHash(),
		BlockNumber:     rand.Uint64() % 10_000_000,
		Status:          true,
	}, nil
}

func randomHash() string {
	return fmt.Sprintf("0x%016x%016x%016x%016x", rand.Uint64(), rand.Uint64(), rand.Uint64(), rand.Uint64())
}
