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

type PostgresMilestoneRepository struct {
	db *sql.DB
}

func NewPostgresMilestoneRepository(db *sql.DB) *PostgresMilestoneRepository {
	return &PostgresMilestoneRepository{db: db}
}

const milestoneColumns = `id, funding_id, title, description, amount, is_released, release_conditions, due_date, completed_at, created_at, updated_at`

func (r *PostgresMilestoneRepository) Create(ctx context.Context, milestone *models.FundingMilestone) error {
	if milestone == nil {
		return fmt.Errorf("milestone is nil")
	}
	if milestone.Amount <= 0 {
		return pkgerrors.ErrInvalidAmount
	}

	query := `
	INSERT INTO funding_milestones (id, funding_id, title, description, amount, is_released, release_conditions, due_date)
	VALUES ($1, $2, $3, $4, $5, false, $6, $7)
	RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		milestone.ID,
		milestone.FundingID,
		milestone.Title,
		milestone.Description,
		milestone.Amount,
		milestone.ReleaseConditions,
		milestone.DueDate,
	).Scan(&milestone.CreatedAt, &milestone.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create milestone: %w", err)
	}

	slog.Info("milestone created", "method", "Create", "milestone_id", milestone.ID, "funding_id", milestone.FundingID, "amount", milestone.Amount)
	return nil
}

func (r *PostgresMilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FundingMilestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM funding_milestones WHERE id = $1`
	milestone, err := scanMilestone(r.db.QueryRowContext(ctx, query, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrMilestoneNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get milestone by id: %w", err)
	}
	return milestone, nil
}

func (r *PostgresMilestoneRepository) ListByFunding(ctx context.Context, fundingID uuid.UUID) ([]models.FundingMilestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM funding_milestones WHERE funding_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, fundingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []models.FundingMilestone
	for rows.Next() {
		milestone, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		milestones = append(milestones, *milestone)
	}
	return milestones, rows.Err()
}

func (r *PostgresMilestoneRepository) Update(ctx context.Context, milestone *models.FundingMilestone) error {
	query := `
	UPDATE funding_milestones
	SET title = $1, description = $2, amount = $3, is_released = $4, release_conditions = $5, due_date = $6, completed_at = $7, updated_at = NOW()
	WHERE id = $8
	RETURNING updated_at
	`
	err := r.db.QueryRowContext(
		ctx,
		query,
		milestone.Title,
		milestone.Description,
		milestone.Amount,
		milestone.IsReleased,
		milestone.ReleaseConditions,
		milestone.DueDate,
		milestone.CompletedAt,
		milestone.ID,
	).Scan(&milestone.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return pkgerrors.ErrMilestoneNotFound
	case err != nil:
		return fmt.Errorf("failed to update milestone: %w", err)
	}

	slog.Info("milestone updated", "method", "Update", "milestone_id", milestone.ID, "is_released", milestone.IsReleased)
	return nil
}

func (r *PostgresMilestoneRepository) ReleasedTotal(ctx context.Context, fundingID uuid.UUID) (int64, error) {
	var total int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM funding_milestones WHERE funding_id = $1 AND is_released = true`
	if err := r.db.QueryRowContext(ctx, query, fundingID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum released milestones: %w", err)
	}
	return total, nil
}

func scanMilestone(row rowScanner) (*models.FundingMilestone, error) {
	var m models.FundingMilestone
	var dueDate, completedAt sql.NullTime
	err := row.Scan(
		&m.ID,
		&m.FundingID,
		&m.Title,
		&m.Description,
		&m.Amount,
		&m.IsReleased,
		&m.ReleaseConditions,
		&dueDate,
		&completedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dueDate.Valid {
		m.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return &m, nil
}
