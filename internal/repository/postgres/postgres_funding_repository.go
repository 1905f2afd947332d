package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/corneadesci/funding-service/internal/infrastructure/observability"
	"github.com/corneadesci/funding-service/internal/models"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

type PostgresFundingRepository struct {
	db *sql.DB
}

func NewPostgresFundingRepository(db *sql.DB) *PostgresFundingRepository {
	return &PostgresFundingRepository{db: db}
}

const fundingColumns = `id, research_id, funder_id, amount, status, funding_type, transaction_hash, message, created_at, updated_at`

func (r *PostgresFundingRepository) Create(ctx context.Context, funding *models.Funding) error {
	var err error
	tracer := otel.Tracer("funding-repository")
	ctx, span := tracer.Start(ctx, "CreateFunding")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("CreateFunding", status).Inc()
		observability.RepositoryDuration.WithLabelValues("CreateFunding").Observe(time.Since(start).Seconds())
	}()

	if funding == nil {
		err = pkgerrors.ErrNilFunding
		slog.Error("failed to create funding", "method", "Create", "error", err)
		return err
	}

	if !funding.Status.Valid() {
		err = pkgerrors.ErrInvalidFundingStatus
		slog.Error("invalid funding status", "method", "Create", "status", funding.Status, "error", err)
		return err
	}

	if !funding.FundingType.Valid() {
		err = pkgerrors.ErrInvalidFundingType
		slog.Error("invalid funding type", "method", "Create", "type", funding.FundingType, "error", err)
		return err
	}

	if funding.Amount <= 0 {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", funding.Amount, "error", err)
		return err
	}

	span.SetAttributes(
		attribute.String("research_id", funding.ResearchID.String()),
		attribute.String("funder_id", funding.FunderID.String()),
		attribute.Int64("amount", funding.Amount),
		attribute.String("type", string(funding.FundingType)),
	)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `
	INSERT INTO fundings (id, research_id, funder_id, amount, status, funding_type, transaction_hash, message)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at, updated_at
	`
	err = dbTx.QueryRowContext(
		ctx,
		query,
		funding.ID,
		funding.ResearchID,
		funding.FunderID,
		funding.Amount,
		string(funding.Status),
		string(funding.FundingType),
		nullString(funding.TransactionHash),
		nullString(funding.Message),
	).Scan(&funding.CreatedAt, &funding.UpdatedAt)
	if err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			err = fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
			slog.Error("rollback failed", "method", "Create", "error", rbErr)
		} else {
			slog.Error("failed to create funding", "method", "Create", "research_id", funding.ResearchID, "funder_id", funding.FunderID, "error", err)
		}
		return fmt.Errorf("failed to create funding: %w", err)
	}

	// Register the pending transaction record for later reconciliation.
	txQuery := `
	INSERT INTO funding_transactions (id, funding_id, transaction_hash, status)
	VALUES ($1, $2, $3, $4)
	`
	_, err = dbTx.ExecContext(ctx, txQuery, uuid.New(), funding.ID, nullString(funding.TransactionHash), models.TransactionPending)
	if err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "Create", "error", rbErr)
		}
		slog.Error("failed to register funding transaction", "method", "Create", "funding_id", funding.ID, "error", err)
		return fmt.Errorf("failed to register funding transaction: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Create", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("funding created", "method", "Create", "id", funding.ID, "research_id", funding.ResearchID, "funder_id", funding.FunderID, "amount", funding.Amount, "type", funding.FundingType)
	return nil
}

func (r *PostgresFundingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Funding, error) {
	var err error
	tracer := otel.Tracer("funding-repository")
	ctx, span := tracer.Start(ctx, "GetFundingByID")
	span.SetAttributes(attribute.String("funding_id", id.String()))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetFundingByID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetFundingByID").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT ` + fundingColumns + ` FROM fundings WHERE id = $1`
	funding, err := scanFunding(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrFundingNotFound
		slog.Error("funding not found", "method", "GetByID", "funding_id", id, "error", err)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get funding by id", "method", "GetByID", "funding_id", id, "error", err)
		return nil, fmt.Errorf("failed to get funding by id: %w", err)
	}
	return funding, nil
}

func (r *PostgresFundingRepository) ListByResearch(ctx context.Context, researchID uuid.UUID) ([]models.Funding, error) {
	query := `SELECT ` + fundingColumns + ` FROM fundings WHERE research_id = $1 ORDER BY created_at DESC`
	return r.queryFundings(ctx, query, researchID)
}

func (r *PostgresFundingRepository) ListByFunder(ctx context.Context, funderID uuid.UUID) ([]models.Funding, error) {
	query := `SELECT ` + fundingColumns + ` FROM fundings WHERE funder_id = $1 ORDER BY created_at DESC`
	return r.queryFundings(ctx, query, funderID)
}

// ConfirmByTransactionHash runs the whole reconciliation sequence in one
// database transaction. The status = 'pending' guards make the sequence safe
// under concurrent verification of the same hash: the first writer locks the
// row, the second sees zero rows and reports ErrTransactionNotFound.
func (r *PostgresFundingRepository) ConfirmByTransactionHash(ctx context.Context, txHash string) (*models.Funding, error) {
	var err error
	tracer := otel.Tracer("funding-repository")
	ctx, span := tracer.Start(ctx, "ConfirmByTransactionHash")
	span.SetAttributes(attribute.String("transaction_hash", txHash))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ConfirmByTransactionHash", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ConfirmByTransactionHash").Observe(time.Since(start).Seconds())
		observability.ReconciliationsApplied.WithLabelValues(status).Inc()
	}()

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "ConfirmByTransactionHash", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var fundingID uuid.UUID
	err = dbTx.QueryRowContext(ctx, `
		UPDATE funding_transactions
		SET status = $1, verified_at = NOW()
		WHERE transaction_hash = $2 AND status = $3
		RETURNING funding_id
	`, models.TransactionVerified, txHash, models.TransactionPending).Scan(&fundingID)
	if stderrors.Is(err, sql.ErrNoRows) {
		dbTx.Rollback()
		err = pkgerrors.ErrTransactionNotFound
		slog.Warn("no pending transaction for hash", "method", "ConfirmByTransactionHash", "transaction_hash", txHash)
		return nil, err
	}
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to verify transaction", "method", "ConfirmByTransactionHash", "transaction_hash", txHash, "error", err)
		return nil, fmt.Errorf("failed to verify transaction: %w", err)
	}

	funding, err := scanFunding(dbTx.QueryRowContext(ctx, `
		UPDATE fundings
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+fundingColumns,
		string(models.FundingConfirmed), fundingID, string(models.FundingPending)))
	if stderrors.Is(err, sql.ErrNoRows) {
		dbTx.Rollback()
		err = pkgerrors.ErrTransactionNotFound
		slog.Warn("funding already left pending state", "method", "ConfirmByTransactionHash", "funding_id", fundingID)
		return nil, err
	}
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to confirm funding", "method", "ConfirmByTransactionHash", "funding_id", fundingID, "error", err)
		return nil, fmt.Errorf("failed to confirm funding: %w", err)
	}

	// In-place increment; the row lock taken here serializes concurrent
	// confirmations against the same research.
	_, err = dbTx.ExecContext(ctx, `
		UPDATE researches
		SET current_funding = current_funding + $1, updated_at = NOW()
		WHERE id = $2
	`, funding.Amount, funding.ResearchID)
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to update research funding", "method", "ConfirmByTransactionHash", "research_id", funding.ResearchID, "error", err)
		return nil, fmt.Errorf("failed to update research funding: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "ConfirmByTransactionHash", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("transaction reconciled", "method", "ConfirmByTransactionHash", "transaction_hash", txHash, "funding_id", funding.ID, "research_id", funding.ResearchID, "amount", funding.Amount)
	return funding, nil
}

func (r *PostgresFundingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.FundingStatus, txHash string) (*models.Funding, error) {
	var err error
	tracer := otel.Tracer("funding-repository")
	ctx, span := tracer.Start(ctx, "UpdateFundingStatus")
	span.SetAttributes(
		attribute.String("funding_id", id.String()),
		attribute.String("target_status", string(status)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		st := "success"
		if err != nil {
			st = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("UpdateFundingStatus", st).Inc()
		observability.RepositoryDuration.WithLabelValues("UpdateFundingStatus").Observe(time.Since(start).Seconds())
	}()

	if !status.Valid() {
		err = pkgerrors.ErrInvalidFundingStatus
		slog.Error("invalid funding status", "method", "UpdateStatus", "status", status, "error", err)
		return nil, err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "UpdateStatus", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var current string
	err = dbTx.QueryRowContext(ctx, `SELECT status FROM fundings WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if stderrors.Is(err, sql.ErrNoRows) {
		dbTx.Rollback()
		err = pkgerrors.ErrFundingNotFound
		slog.Error("funding not found", "method", "UpdateStatus", "funding_id", id, "error", err)
		return nil, err
	}
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to lock funding", "method", "UpdateStatus", "funding_id", id, "error", err)
		return nil, fmt.Errorf("failed to lock funding: %w", err)
	}

	currentStatus, err := models.ParseFundingStatus(current)
	if err != nil {
		dbTx.Rollback()
		slog.Error("stored funding status is invalid", "method", "UpdateStatus", "funding_id", id, "status", current, "error", err)
		return nil, err
	}
	if !currentStatus.CanTransitionTo(status) {
		dbTx.Rollback()
		err = pkgerrors.ErrInvalidStatusTransition
		slog.Warn("status transition rejected", "method", "UpdateStatus", "funding_id", id, "from", currentStatus, "to", status)
		return nil, err
	}

	funding, err := scanFunding(dbTx.QueryRowContext(ctx, `
		UPDATE fundings
		SET status = $1, transaction_hash = COALESCE($2, transaction_hash), updated_at = NOW()
		WHERE id = $3
		RETURNING `+fundingColumns,
		string(status), nullString(txHash), id))
	if err != nil {
		dbTx.Rollback()
		slog.Error("failed to update funding status", "method", "UpdateStatus", "funding_id", id, "error", err)
		return nil, fmt.Errorf("failed to update funding status: %w", err)
	}

	if status == models.FundingConfirmed {
		// Same side effects as hash reconciliation: settle the pending
		// transaction record and bump the research aggregate.
		_, err = dbTx.ExecContext(ctx, `
			UPDATE funding_transactions
			SET status = $1, verified_at = NOW()
			WHERE funding_id = $2 AND status = $3
		`, models.TransactionVerified, id, models.TransactionPending)
		if err != nil {
			dbTx.Rollback()
			slog.Error("failed to settle funding transaction", "method", "UpdateStatus", "funding_id", id, "error", err)
			return nil, fmt.Errorf("failed to settle funding transaction: %w", err)
		}

		_, err = dbTx.ExecContext(ctx, `
			UPDATE researches
			SET current_funding = current_funding + $1, updated_at = NOW()
			WHERE id = $2
		`, funding.Amount, funding.ResearchID)
		if err != nil {
			dbTx.Rollback()
			slog.Error("failed to update research funding", "method", "UpdateStatus", "research_id", funding.ResearchID, "error", err)
			return nil, fmt.Errorf("failed to update research funding: %w", err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "UpdateStatus", "error", err)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("funding status updated", "method", "UpdateStatus", "funding_id", id, "from", currentStatus, "to", status)
	return funding, nil
}

func (r *PostgresFundingRepository) Statistics(ctx context.Context, researchID uuid.UUID) (*models.FundingStatistics, error) {
	var err error
	tracer := otel.Tracer("funding-repository")
	ctx, span := tracer.Start(ctx, "FundingStatistics")
	span.SetAttributes(attribute.String("research_id", researchID.String()))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("FundingStatistics", status).Inc()
		observability.RepositoryDuration.WithLabelValues("FundingStatistics").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), COUNT(DISTINCT funder_id)
		FROM fundings
		WHERE research_id = $1 AND status = $2
	`
	var count, total, funders int64
	err = r.db.QueryRowContext(ctx, query, researchID, string(models.FundingConfirmed)).Scan(&count, &total, &funders)
	if err != nil {
		slog.Error("failed to get funding statistics", "method", "Statistics", "research_id", researchID, "error", err)
		return nil, fmt.Errorf("failed to get funding statistics: %w", err)
	}

	stats := &models.FundingStatistics{
		TotalFunding: total,
		FundersCount: funders,
	}
	if count > 0 {
		stats.AverageFunding = float64(total) / float64(count)
	}
	return stats, nil
}

func (r *PostgresFundingRepository) ListPendingTransactions(ctx context.Context) ([]models.FundingTransaction, error) {
	query := `
		SELECT id, funding_id, transaction_hash, status, verified_at, created_at
		FROM funding_transactions
		WHERE status = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, models.TransactionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.FundingTransaction
	for rows.Next() {
		var tx models.FundingTransaction
		var hash sql.NullString
		var verifiedAt sql.NullTime
		if err := rows.Scan(&tx.ID, &tx.FundingID, &hash, &tx.Status, &verifiedAt, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan funding transaction: %w", err)
		}
		tx.TransactionHash = hash.String
		if verifiedAt.Valid {
			tx.VerifiedAt = &verifiedAt.Time
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

func (r *PostgresFundingRepository) queryFundings(ctx context.Context, query string, args ...any) ([]models.Funding, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fundings: %w", err)
	}
	defer rows.Close()

	var fundings []models.Funding
	for rows.Next() {
		funding, err := scanFunding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan funding: %w", err)
		}
		fundings = append(fundings, *funding)
	}
	return fundings, rows.Err()
}

func scanFunding(row rowScanner) (*models.Funding, error) {
	var funding models.Funding
	var status, fundingType string
	var txHash, message sql.NullString
	err := row.Scan(
		&funding.ID,
		&funding.ResearchID,
		&funding.FunderID,
		&funding.Amount,
		&status,
		&fundingType,
		&txHash,
		&message,
		&funding.CreatedAt,
		&funding.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	funding.Status, err = models.ParseFundingStatus(status)
	if err != nil {
		return nil, err
	}
	funding.FundingType, err = models.ParseFundingType(fundingType)
	if err != nil {
		return nil, err
	}
	funding.TransactionHash = txHash.String
	funding.Message = message.String
	return &funding, nil
}
