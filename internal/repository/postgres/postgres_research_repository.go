package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/corneadesci/funding-service/internal/models"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

type PostgresResearchRepository struct {
	db *sql.DB
}

func NewPostgresResearchRepository(db *sql.DB) *PostgresResearchRepository {
	return &PostgresResearchRepository{db: db}
}

const researchColumns = `id, title, description, detailed_proposal, researcher_id, status, funding_target, current_funding, start_date, end_date, blockchain_id, created_at, updated_at`

func (r *PostgresResearchRepository) Create(ctx context.Context, research *models.Research) error {
	if research == nil {
		return fmt.Errorf("research is nil")
	}
	if research.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !research.Status.Valid() {
		return fmt.Errorf("unknown research status %q", research.Status)
	}

	query := `
	INSERT INTO researches (id, title, description, detailed_proposal, researcher_id, status, funding_target, current_funding, start_date, end_date)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
	RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		research.ID,
		research.Title,
		research.Description,
		research.DetailedProposal,
		research.ResearcherID,
		string(research.Status),
		research.FundingTarget,
		research.StartDate,
		research.EndDate,
	).Scan(&research.CreatedAt, &research.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create research: %w", err)
	}

	slog.Info("research created", "method", "Create", "research_id", research.ID, "researcher_id", research.ResearcherID)
	return nil
}

func (r *PostgresResearchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Research, error) {
	query := `SELECT ` + researchColumns + ` FROM researches WHERE id = $1`
	research, err := scanResearch(r.db.QueryRowContext(ctx, query, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrResearchNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get research by id: %w", err)
	}
	return research, nil
}

func (r *PostgresResearchRepository) List(ctx context.Context) ([]models.Research, error) {
	query := `SELECT ` + researchColumns + ` FROM researches ORDER BY created_at DESC`
	return r.queryResearches(ctx, query)
}

func (r *PostgresResearchRepository) ListByResearcher(ctx context.Context, researcherID uuid.UUID) ([]models.Research, error) {
	query := `SELECT ` + researchColumns + ` FROM researches WHERE researcher_id = $1 ORDER BY created_at DESC`
	return r.queryResearches(ctx, query, researcherID)
}

func (r *PostgresResearchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ResearchStatus) (*models.Research, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown research status %q", status)
	}

	query := `
	UPDATE researches
	SET status = $1, updated_at = NOW()
	WHERE id = $2
	RETURNING ` + researchColumns
	research, err := scanResearch(r.db.QueryRowContext(ctx, query, string(status), id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrResearchNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to update research status: %w", err)
	}

	slog.Info("research status updated", "method", "UpdateStatus", "research_id", id, "status", status)
	return research, nil
}

func (r *PostgresResearchRepository) SetBlockchainID(ctx context.Context, id uuid.UUID, blockchainID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE researches SET blockchain_id = $1, updated_at = NOW() WHERE id = $2`, blockchainID, id)
	if err != nil {
		return fmt.Errorf("failed to set blockchain id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set blockchain id: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrResearchNotFound
	}
	return nil
}

func (r *PostgresResearchRepository) queryResearches(ctx context.Context, query string, args ...any) ([]models.Research, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list researches: %w", err)
	}
	defer rows.Close()

	var researches []models.Research
	for rows.Next() {
		research, err := scanResearch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan research: %w", err)
		}
		researches = append(researches, *research)
	}
	return researches, rows.Err()
}

func scanResearch(row rowScanner) (*models.Research, error) {
	var research models.Research
	var status string
	var blockchainID sql.NullString
	var startDate, endDate sql.NullTime
	err := row.Scan(
		&research.ID,
		&research.Title,
		&research.Description,
		&research.DetailedProposal,
		&research.ResearcherID,
		&status,
		&research.FundingTarget,
		&research.CurrentFunding,
		&startDate,
		&endDate,
		&blockchainID,
		&research.CreatedAt,
		&research.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	research.Status, err = models.ParseResearchStatus(status)
	if err != nil {
		return nil, err
	}
	research.BlockchainID = blockchainID.String
	if startDate.Valid {
		research.StartDate = &startDate.Time
	}
	if endDate.Valid {
		research.EndDate = &endDate.Time
	}
	return &research, nil
}
