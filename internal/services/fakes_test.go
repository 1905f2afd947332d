package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corneadesci/funding-service/internal/infrastructure/blockchain"
	redisinfra "github.com/corneadesci/funding-service/internal/infrastructure/redis"
	"github.com/corneadesci/funding-service/internal/models"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

// In-memory doubles implementing the repository and infrastructure
// interfaces. The funding fake reproduces the reconciliation semantics of the
// Postgres implementation: verify-once, confirm-once, aggregate bump.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]models.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return &user, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *fakeUserRepo) GetByEmailOrUsername(_ context.Context, email, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email || user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, pkgerrors.ErrUserNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pkgerrors.ErrUserNotFound
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return pkgerrors.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(_ context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]models.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

type fakeResearchRepo struct {
	mu         sync.Mutex
	researches map[uuid.UUID]models.Research
}

func newFakeResearchRepo() *fakeResearchRepo {
	return &fakeResearchRepo{researches: map[uuid.UUID]models.Research{}}
}

func (r *fakeResearchRepo) Create(_ context.Context, research *models.Research) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	research.CreatedAt = time.Now()
	research.UpdatedAt = research.CreatedAt
	r.researches[research.ID] = *research
	return nil
}

func (r *fakeResearchRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Research, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	research, ok := r.researches[id]
	if !ok {
		return nil, pkgerrors.ErrResearchNotFound
	}
	return &research, nil
}

func (r *fakeResearchRepo) List(_ context.Context) ([]models.Research, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := make([]models.Research, 0, len(r.researches))
	for _, research := range r.researches {
		list = append(list, research)
	}
	return list, nil
}

func (r *fakeResearchRepo) ListByResearcher(_ context.Context, researcherID uuid.UUID) ([]models.Research, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.Research
	for _, research := range r.researches {
		if research.ResearcherID == researcherID {
			list = append(list, research)
		}
	}
	return list, nil
}

func (r *fakeResearchRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.ResearchStatus) (*models.Research, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	research, ok := r.researches[id]
	if !ok {
		return nil, pkgerrors.ErrResearchNotFound
	}
	research.Status = status
	research.UpdatedAt = time.Now()
	r.researches[id] = research
	return &research, nil
}

func (r *fakeResearchRepo) SetBlockchainID(_ context.Context, id uuid.UUID, blockchainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	research, ok := r.researches[id]
	if !ok {
		return pkgerrors.ErrResearchNotFound
	}
	research.BlockchainID = blockchainID
	r.researches[id] = research
	return nil
}

func (r *fakeResearchRepo) addFunding(id uuid.UUID, amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	research, ok := r.researches[id]
	if !ok {
		return
	}
	research.CurrentFunding += amount
	r.researches[id] = research
}

type fakeFundingRepo struct {
	mu        sync.Mutex
	fundings  map[uuid.UUID]models.Funding
	txStatus  map[string]string
	txFunding map[string]uuid.UUID
	research  *fakeResearchRepo

	statsCalls int
}

func newFakeFundingRepo(research *fakeResearchRepo) *fakeFundingRepo {
	return &fakeFundingRepo{
		fundings:  map[uuid.UUID]models.Funding{},
		txStatus:  map[string]string{},
		txFunding: map[string]uuid.UUID{},
		research:  research,
	}
}

func (r *fakeFundingRepo) Create(_ context.Context, funding *models.Funding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	funding.CreatedAt = time.Now()
	funding.UpdatedAt = funding.CreatedAt
	r.fundings[funding.ID] = *funding
	if funding.TransactionHash != "" {
		r.txStatus[funding.TransactionHash] = models.TransactionPending
		r.txFunding[funding.TransactionHash] = funding.ID
	}
	return nil
}

func (r *fakeFundingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Funding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	funding, ok := r.fundings[id]
	if !ok {
		return nil, pkgerrors.ErrFundingNotFound
	}
	return &funding, nil
}

func (r *fakeFundingRepo) ListByResearch(_ context.Context, researchID uuid.UUID) ([]models.Funding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.Funding
	for _, funding := range r.fundings {
		if funding.ResearchID == researchID {
			list = append(list, funding)
		}
	}
	return list, nil
}

func (r *fakeFundingRepo) ListByFunder(_ context.Context, funderID uuid.UUID) ([]models.Funding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.Funding
	for _, funding := range r.fundings {
		if funding.FunderID == funderID {
			list = append(list, funding)
		}
	}
	return list, nil
}

func (r *fakeFundingRepo) ConfirmByTransactionHash(_ context.Context, txHash string) (*models.Funding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.txStatus[txHash] != models.TransactionPending {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	fundingID := r.txFunding[txHash]
	funding := r.fundings[fundingID]
	if funding.Status != models.FundingPending {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	r.txStatus[txHash] = models.TransactionVerified
	funding.Status = models.FundingConfirmed
	funding.UpdatedAt = time.Now()
	r.fundings[fundingID] = funding
	r.research.addFunding(funding.ResearchID, funding.Amount)
	return &funding, nil
}

func (r *fakeFundingRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.FundingStatus, txHash string) (*models.Funding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	funding, ok := r.fundings[id]
	if !ok {
		return nil, pkgerrors.ErrFundingNotFound
	}
	if !funding.Status.CanTransitionTo(status) {
		return nil, pkgerrors.ErrInvalidStatusTransition
	}
	funding.Status = status
	if txHash != "" {
		funding.TransactionHash = txHash
	}
	funding.UpdatedAt = time.Now()
	r.fundings[id] = funding
	if status == models.FundingConfirmed {
		r.research.addFunding(funding.ResearchID, funding.Amount)
	}
	return &funding, nil
}

func (r *fakeFundingRepo) Statistics(_ context.Context, researchID uuid.UUID) (*models.FundingStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsCalls++
	var count, total int64
	funders := map[uuid.UUID]bool{}
	for _, funding := range r.fundings {
		if funding.ResearchID == researchID && funding.Status == models.FundingConfirmed {
			count++
			total += funding.Amount
			funders[funding.FunderID] = true
		}
	}
	stats := &models.FundingStatistics{TotalFunding: total, FundersCount: int64(len(funders))}
	if count > 0 {
		stats.AverageFunding = float64(total) / float64(count)
	}
	return stats, nil
}

func (r *fakeFundingRepo) ListPendingTransactions(_ context.Context) ([]models.FundingTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.FundingTransaction
	for hash, status := range r.txStatus {
		if status == models.TransactionPending {
			list = append(list, models.FundingTransaction{
				FundingID:       r.txFunding[hash],
				TransactionHash: hash,
				Status:          status,
			})
		}
	}
	return list, nil
}

type fakeMilestoneRepo struct {
	mu         sync.Mutex
	milestones map[uuid.UUID]models.FundingMilestone
}

func newFakeMilestoneRepo() *fakeMilestoneRepo {
	return &fakeMilestoneRepo{milestones: map[uuid.UUID]models.FundingMilestone{}}
}

func (r *fakeMilestoneRepo) Create(_ context.Context, milestone *models.FundingMilestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	milestone.CreatedAt = time.Now()
	milestone.UpdatedAt = milestone.CreatedAt
	r.milestones[milestone.ID] = *milestone
	return nil
}

func (r *fakeMilestoneRepo) GetByID(_ context.Context, id uuid.UUID) (*models.FundingMilestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	milestone, ok := r.milestones[id]
	if !ok {
		return nil, pkgerrors.ErrMilestoneNotFound
	}
	return &milestone, nil
}

func (r *fakeMilestoneRepo) ListByFunding(_ context.Context, fundingID uuid.UUID) ([]models.FundingMilestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var list []models.FundingMilestone
	for _, milestone := range r.milestones {
		if milestone.FundingID == fundingID {
			list = append(list, milestone)
		}
	}
	return list, nil
}

func (r *fakeMilestoneRepo) Update(_ context.Context, milestone *models.FundingMilestone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.milestones[milestone.ID]; !ok {
		return pkgerrors.ErrMilestoneNotFound
	}
	milestone.UpdatedAt = time.Now()
	r.milestones[milestone.ID] = *milestone
	return nil
}

func (r *fakeMilestoneRepo) ReleasedTotal(_ context.Context, fundingID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, milestone := range r.milestones {
		if milestone.FundingID == fundingID && milestone.IsReleased {
			total += milestone.Amount
		}
	}
	return total, nil
}

type fakeChainClient struct {
	balances map[string]int64
	err      error
}

func newFakeChainClient() *fakeChainClient {
	return &fakeChainClient{balances: map[string]int64{}}
}

func (c *fakeChainClient) RegisterResearch(_ context.Context, researchID uuid.UUID, _ string) (*blockchain.ResearchRegistration, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &blockchain.ResearchRegistration{
		ResearchID:      researchID,
		TransactionHash: "0xregistration",
		BlockchainID:    "chain-" + researchID.String(),
		Timestamp:       time.Now().Unix(),
	}, nil
}

func (c *fakeChainClient) VerifyProofOfInvention(_ context.Context, poiID uuid.UUID, _ string) (*blockchain.PoIVerification, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &blockchain.PoIVerification{PoIID: poiID, TransactionHash: "0xpoi", Verified: true, Timestamp: time.Now().Unix()}, nil
}

func (c *fakeChainClient) VerifyTransaction(_ context.Context, txHash string) (*blockchain.TransactionResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &blockchain.TransactionResult{TransactionHash: txHash, BlockNumber: 1, Status: true}, nil
}

func (c *fakeChainClient) GetBalance(_ context.Context, address string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.balances[address], nil
}

func (c *fakeChainClient) Mint(_ context.Context, toAddress string, amount int64) (*blockchain.TransactionResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.balances[toAddress] += amount
	return &blockchain.TransactionResult{TransactionHash: "0xmint", BlockNumber: 2, Status: true}, nil
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (c *fakeRedis) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.data[key]
	if !ok {
		return "", redisinfra.ErrKeyNotFound
	}
	return val, nil
}

func (c *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch v := value.(type) {
	case string:
		c.data[key] = v
	case []byte:
		c.data[key] = string(v)
	}
	return nil
}

func (c *fakeRedis) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeRedis) Close() error { return nil }

func (c *fakeRedis) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type fakeProducer struct {
	mu     sync.Mutex
	topics []string
}

func (p *fakeProducer) Send(_ context.Context, topic string, _ string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *fakeProducer) Close() error { return nil }
