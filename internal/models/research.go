package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Research struct {
	ID               uuid.UUID      `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	DetailedProposal string         `json:"detailed_proposal"`
	ResearcherID     uuid.UUID      `json:"researcher_id"`
	Status           ResearchStatus `json:"status"`
	FundingTarget    int64          `json:"funding_target"`
	CurrentFunding   int64          `json:"current_funding"`
	StartDate        *time.Time     `json:"start_date,omitempty"`
	EndDate          *time.Time     `json:"end_date,omitempty"`
	BlockchainID     string         `json:"blockchain_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type ResearchStatus string

const (
	ResearchDraft       ResearchStatus = "draft"
	ResearchUnderReview ResearchStatus = "underreview"
	ResearchApproved    ResearchStatus = "approved"
	ResearchRejected    ResearchStatus = "rejected"
	ResearchInProgress  ResearchStatus = "inprogress"
	ResearchCompleted   ResearchStatus = "completed"
	ResearchArchived    ResearchStatus = "archived"
)

func (s ResearchStatus) Valid() bool {
	switch s {
	case ResearchDraft, ResearchUnderReview, ResearchApproved, ResearchRejected,
		ResearchInProgress, ResearchCompleted, ResearchArchived:
		return true
	}
	return false
}

func ParseResearchStatus(s string) (ResearchStatus, error) {
	st := ResearchStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown research status %q", s)
	}
	return st, nil
}

type CreateResearchRequest struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	DetailedProposal string     `json:"detailed_proposal"`
	FundingTarget    int64      `json:"funding_target"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
}
