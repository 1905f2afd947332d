package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/corneadesci/funding-service/internal/models"
	repository "github.com/corneadesci/funding-service/internal/repository/postgres"
	pkgerrors "github.com/corneadesci/funding-service/pkg/errors"
)

const fundingCols = "id, research_id, funder_id, amount, status, funding_type, transaction_hash, message, created_at, updated_at"

func fundingRow(f *models.Funding) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "research_id", "funder_id", "amount", "status", "funding_type", "transaction_hash", "message", "created_at", "updated_at"}).
		AddRow(f.ID, f.ResearchID, f.FunderID, f.Amount, string(f.Status), string(f.FundingType), f.TransactionHash, f.Message, f.CreatedAt, f.UpdatedAt)
}

func TestPostgresFundingRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresFundingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		funding := &models.Funding{
			ID:              uuid.New(),
			ResearchID:      uuid.New(),
			FunderID:        uuid.New(),
			Amount:          500,
			Status:          models.FundingPending,
			FundingType:     models.TypeDirect,
			TransactionHash: "0xabc",
			Message:         "good luck",
		}
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO fundings`)).
			WithArgs(funding.ID, funding.ResearchID, funding.FunderID, funding.Amount, "pending", "direct", "0xabc", "good luck").
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO funding_transactions`)).
			WithArgs(sqlmock.AnyArg(), funding.ID, "0xabc", models.TransactionPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Create(ctx, funding)
		assert.NoError(t, err)
		assert.Equal(t, now, funding.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NilFunding", func(t *testing.T) {
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilFunding)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		funding := &models.Funding{
			ID:          uuid.New(),
			ResearchID:  uuid.New(),
			FunderID:    uuid.New(),
			Amount:      0,
			Status:      models.FundingPending,
			FundingType: models.TypeDirect,
		}
		err := repo.Create(ctx, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		funding := &models.Funding{
			ID:          uuid.New(),
			ResearchID:  uuid.New(),
			FunderID:    uuid.New(),
			Amount:      100,
			Status:      models.FundingStatus("unknown"),
			FundingType: models.TypeDirect,
		}
		err := repo.Create(ctx, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidFundingStatus)
	})

	t.Run("InvalidType", func(t *testing.T) {
		funding := &models.Funding{
			ID:          uuid.New(),
			ResearchID:  uuid.New(),
			FunderID:    uuid.New(),
			Amount:      100,
			Status:      models.FundingPending,
			FundingType: models.FundingType("lottery"),
		}
		err := repo.Create(ctx, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidFundingType)
	})

	t.Run("InsertFailsRollsBack", func(t *testing.T) {
		funding := &models.Funding{
			ID:          uuid.New(),
			ResearchID:  uuid.New(),
			FunderID:    uuid.New(),
			Amount:      100,
			Status:      models.FundingPending,
			FundingType: models.TypeGrant,
		}
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO fundings`)).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		err := repo.Create(ctx, funding)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create funding")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresFundingRepository_ConfirmByTransactionHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresFundingRepository(db)
	ctx := context.Background()

	txHash := "0xdeadbeef"
	fundingID := uuid.New()
	researchID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		confirmed := &models.Funding{
			ID:              fundingID,
			ResearchID:      researchID,
			FunderID:        uuid.New(),
			Amount:          300,
			Status:          models.FundingConfirmed,
			FundingType:     models.TypeDirect,
			TransactionHash: txHash,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE funding_transactions`)).
			WithArgs(models.TransactionVerified, txHash, models.TransactionPending).
			WillReturnRows(sqlmock.NewRows([]string{"funding_id"}).AddRow(fundingID))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE fundings`)).
			WithArgs("confirmed", fundingID, "pending").
			WillReturnRows(fundingRow(confirmed))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE researches`)).
			WithArgs(confirmed.Amount, researchID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		funding, err := repo.ConfirmByTransactionHash(ctx, txHash)
		assert.NoError(t, err)
		assert.Equal(t, models.FundingConfirmed, funding.Status)
		assert.Equal(t, int64(300), funding.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyVerified", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE funding_transactions`)).
			WithArgs(models.TransactionVerified, txHash, models.TransactionPending).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		funding, err := repo.ConfirmByTransactionHash(ctx, txHash)
		assert.Nil(t, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FundingAlreadyLeftPending", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE funding_transactions`)).
			WithArgs(models.TransactionVerified, txHash, models.TransactionPending).
			WillReturnRows(sqlmock.NewRows([]string{"funding_id"}).AddRow(fundingID))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE fundings`)).
			WithArgs("confirmed", fundingID, "pending").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		funding, err := repo.ConfirmByTransactionHash(ctx, txHash)
		assert.Nil(t, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AggregateUpdateFailsRollsBack", func(t *testing.T) {
		confirmed := &models.Funding{
			ID:          fundingID,
			ResearchID:  researchID,
			FunderID:    uuid.New(),
			Amount:      300,
			Status:      models.FundingConfirmed,
			FundingType: models.TypeDirect,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE funding_transactions`)).
			WithArgs(models.TransactionVerified, txHash, models.TransactionPending).
			WillReturnRows(sqlmock.NewRows([]string{"funding_id"}).AddRow(fundingID))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE fundings`)).
			WithArgs("confirmed", fundingID, "pending").
			WillReturnRows(fundingRow(confirmed))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE researches`)).
			WithArgs(confirmed.Amount, researchID).
			WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		funding, err := repo.ConfirmByTransactionHash(ctx, txHash)
		assert.Nil(t, funding)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update research funding")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresFundingRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresFundingRepository(db)
	ctx := context.Background()

	fundingID := uuid.New()
	researchID := uuid.New()

	t.Run("RefundFromPending", func(t *testing.T) {
		refunded := &models.Funding{
			ID:          fundingID,
			ResearchID:  researchID,
			FunderID:    uuid.New(),
			Amount:      100,
			Status:      models.FundingRefunded,
			FundingType: models.TypeDirect,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM fundings WHERE id = $1 FOR UPDATE`)).
			WithArgs(fundingID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE fundings`)).
			WillReturnRows(fundingRow(refunded))
		mock.ExpectCommit()

		funding, err := repo.UpdateStatus(ctx, fundingID, models.FundingRefunded, "")
		assert.NoError(t, err)
		assert.Equal(t, models.FundingRefunded, funding.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConfirmAppliesAggregate", func(t *testing.T) {
		confirmed := &models.Funding{
			ID:          fundingID,
			ResearchID:  researchID,
			FunderID:    uuid.New(),
			Amount:      250,
			Status:      models.FundingConfirmed,
			FundingType: models.TypeDirect,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM fundings WHERE id = $1 FOR UPDATE`)).
			WithArgs(fundingID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE fundings`)).
			WillReturnRows(fundingRow(confirmed))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE funding_transactions`)).
			WithArgs(models.TransactionVerified, fundingID, models.TransactionPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE researches`)).
			WithArgs(confirmed.Amount, researchID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		funding, err := repo.UpdateStatus(ctx, fundingID, models.FundingConfirmed, "0xfeed")
		assert.NoError(t, err)
		assert.Equal(t, models.FundingConfirmed, funding.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TerminalStateRejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM fundings WHERE id = $1 FOR UPDATE`)).
			WithArgs(fundingID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("confirmed"))
		mock.ExpectRollback()

		funding, err := repo.UpdateStatus(ctx, fundingID, models.FundingRefunded, "")
		assert.Nil(t, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidStatusTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FundingNotFound", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM fundings WHERE id = $1 FOR UPDATE`)).
			WithArgs(fundingID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		funding, err := repo.UpdateStatus(ctx, fundingID, models.FundingFailed, "")
		assert.Nil(t, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrFundingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidTargetStatus", func(t *testing.T) {
		funding, err := repo.UpdateStatus(ctx, fundingID, models.FundingStatus("bogus"), "")
		assert.Nil(t, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidFundingStatus)
	})
}

func TestPostgresFundingRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresFundingRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		expected := &models.Funding{
			ID:          uuid.New(),
			ResearchID:  uuid.New(),
			FunderID:    uuid.New(),
			Amount:      1000,
			Status:      models.FundingPending,
			FundingType: models.TypeMilestone,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+fundingCols+` FROM fundings WHERE id = $1`)).
			WithArgs(expected.ID).
			WillReturnRows(fundingRow(expected))

		funding, err := repo.GetByID(ctx, expected.ID)
		assert.NoError(t, err)
		assert.Equal(t, expected, funding)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+fundingCols+` FROM fundings WHERE id = $1`)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		funding, err := repo.GetByID(ctx, id)
		assert.Nil(t, funding)
		assert.ErrorIs(t, err, pkgerrors.ErrFundingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresFundingRepository_Statistics(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresFundingRepository(db)
	ctx := context.Background()
	researchID := uuid.New()

	t.Run("ConfirmedOnly", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*), COALESCE(SUM(amount), 0), COUNT(DISTINCT funder_id)`)).
			WithArgs(researchID, "confirmed").
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum", "funders"}).AddRow(3, 300, 2))

		stats, err := repo.Statistics(ctx, researchID)
		assert.NoError(t, err)
		assert.Equal(t, int64(300), stats.TotalFunding)
		assert.Equal(t, int64(2), stats.FundersCount)
		assert.Equal(t, float64(100), stats.AverageFunding)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoFundings", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*), COALESCE(SUM(amount), 0), COUNT(DISTINCT funder_id)`)).
			WithArgs(researchID, "confirmed").
			WillReturnRows(sqlmock.NewRows([]string{"count", "sum", "funders"}).AddRow(0, 0, 0))

		stats, err := repo.Statistics(ctx, researchID)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), stats.TotalFunding)
		assert.Equal(t, int64(0), stats.FundersCount)
		assert.Equal(t, float64(0), stats.AverageFunding)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
