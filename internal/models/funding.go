package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Funding struct {
	ID              uuid.UUID     `json:"id"`
	ResearchID      uuid.UUID     `json:"research_id"`
	FunderID        uuid.UUID     `json:"funder_id"`
	Amount          int64         `json:"amount"`
	Status          FundingStatus `json:"status"`
	FundingType     FundingType   `json:"funding_type"`
	TransactionHash string        `json:"transaction_hash,omitempty"`
	Message         string        `json:"message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type FundingStatus string

const (
	FundingPending   FundingStatus = "pending"
	FundingConfirmed FundingStatus = "confirmed"
	FundingRefunded  FundingStatus = "refunded"
	FundingFailed    FundingStatus = "failed"
)

func (s FundingStatus) Valid() bool {
	switch s {
	case FundingPending, FundingConfirmed, FundingRefunded, FundingFailed:
		return true
	}
	return false
}

func ParseFundingStatus(s string) (FundingStatus, error) {
	st := FundingStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown funding status %q", s)
	}
	return st, nil
}

// CanTransitionTo is the closed transition table. Pending fundings may move
// to any terminal state; terminal states never move again.
func (s FundingStatus) CanTransitionTo(target FundingStatus) bool {
	if s != FundingPending {
		return false
	}
	switch target {
	case FundingConfirmed, FundingRefunded, FundingFailed:
		return true
	}
	return false
}

type FundingType string

const (
	TypeDirect    FundingType = "direct"
	TypeMilestone FundingType = "milestone"
	TypeGrant     FundingType = "grant"
	TypeDonation  FundingType = "donation"
)

func (t FundingType) Valid() bool {
	switch t {
	case TypeDirect, TypeMilestone, TypeGrant, TypeDonation:
		return true
	}
	return false
}

func ParseFundingType(s string) (FundingType, error) {
	t := FundingType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown funding type %q", s)
	}
	return t, nil
}

// FundingTransaction correlates an external transaction hash with a funding
// record. It starts pending and flips to verified exactly once.
type FundingTransaction struct {
	ID              uuid.UUID  `json:"id"`
	FundingID       uuid.UUID  `json:"funding_id"`
	TransactionHash string     `json:"transaction_hash"`
	Status          string     `json:"status"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

const (
	TransactionPending  = "pending"
	TransactionVerified = "verified"
)

type FundingMilestone struct {
	ID                uuid.UUID  `json:"id"`
	FundingID         uuid.UUID  `json:"funding_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Amount            int64      `json:"amount"`
	IsReleased        bool       `json:"is_released"`
	ReleaseConditions string     `json:"release_conditions"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type FundingStatistics struct {
	TotalFunding   int64   `json:"total_funding"`
	FundersCount   int64   `json:"funders_count"`
	AverageFunding float64 `json:"average_funding"`
}

type TokenBalance struct {
	UserID      uuid.UUID `json:"user_id"`
	Balance     int64     `json:"balance"`
	LastUpdated time.Time `json:"last_updated"`
}

type CreateFundingRequest struct {
	ResearchID      uuid.UUID   `json:"research_id"`
	Amount          int64       `json:"amount"`
	FundingType     FundingType `json:"funding_type"`
	Message         string      `json:"message,omitempty"`
	TransactionHash string      `json:"transaction_hash,omitempty"`
}

type UpdateFundingStatusRequest struct {
	Status          FundingStatus `json:"status"`
	TransactionHash string        `json:"transaction_hash,omitempty"`
}

type CreateMilestoneRequest struct {
	FundingID         uuid.UUID  `json:"funding_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Amount            int64      `json:"amount"`
	ReleaseConditions string     `json:"release_conditions"`
	DueDate           *time.Time `json:"due_date,omitempty"`
}

type UpdateMilestoneRequest struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Amount            *int64     `json:"amount,omitempty"`
	ReleaseConditions *string    `json:"release_conditions,omitempty"`
	IsReleased        *bool      `json:"is_released,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}
