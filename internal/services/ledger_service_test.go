package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clubsocios/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestLedgerService_RecordEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("cash payment inserts entry and credits balance", func(t *testing.T) {
		entry := &models.LedgerEntry{
			ID:       "entry1",
			MemberID: "member1",
			Amount:   150000,
			Method:   models.MethodCash,
			Status:   models.EntryStatusCompleted,
			Date:     time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(entry.ID, entry.MemberID, entry.Amount, entry.Method, entry.Status,
				entry.Date, entry.ProofURL, entry.Notes, entry.CategorySnapshot).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(150000), "member1").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(150000))
		mock.ExpectCommit()

		err := service.RecordEntry(context.Background(), entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending transfer inserts entry without touching balance", func(t *testing.T) {
		entry := &models.LedgerEntry{
			ID:       "entry2",
			MemberID: "member1",
			Amount:   150000,
			Method:   models.MethodTransfer,
			Status:   models.EntryStatusPending,
			Date:     time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(entry.ID, entry.MemberID, entry.Amount, entry.Method, entry.Status,
				entry.Date, entry.ProofURL, entry.Notes, entry.CategorySnapshot).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := service.RecordEntry(context.Background(), entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative adjustment debits balance", func(t *testing.T) {
		entry := &models.LedgerEntry{
			ID:       "entry3",
			MemberID: "member1",
			Amount:   -50000,
			Method:   models.MethodAdjustment,
			Status:   models.EntryStatusCompleted,
			Date:     time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(entry.ID, entry.MemberID, entry.Amount, entry.Method, entry.Status,
				entry.Date, entry.ProofURL, entry.Notes, entry.CategorySnapshot).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(-50000), "member1").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(-50000))
		mock.ExpectCommit()

		err := service.RecordEntry(context.Background(), entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("balance update failure rolls back the insert", func(t *testing.T) {
		entry := &models.LedgerEntry{
			ID:       "entry4",
			MemberID: "ghost",
			Amount:   1000,
			Method:   models.MethodCash,
			Status:   models.EntryStatusCompleted,
			Date:     time.Now(),
		}

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(entry.ID, entry.MemberID, entry.Amount, entry.Method, entry.Status,
				entry.Date, entry.ProofURL, entry.Notes, entry.CategorySnapshot).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(1000), "ghost").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}))
		mock.ExpectRollback()

		err := service.RecordEntry(context.Background(), entry)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_DeleteEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("deleting a counted entry reverses its balance effect", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}).
				AddRow("member1", 150000, "cash", "completed"))
		mock.ExpectExec("DELETE FROM payments WHERE id = \\$1").
			WithArgs("entry1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(-150000), "member1").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(0))
		mock.ExpectCommit()

		err := service.DeleteEntry(context.Background(), "entry1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleting a pending transfer leaves the balance alone", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry2").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}).
				AddRow("member1", 150000, "transfer", "pending"))
		mock.ExpectExec("DELETE FROM payments WHERE id = \\$1").
			WithArgs("entry2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.DeleteEntry(context.Background(), "entry2")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown entry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}))
		mock.ExpectRollback()

		err := service.DeleteEntry(context.Background(), "missing")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_ConfirmedTotal(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("sums confirmed entries only", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\)").
			WithArgs("member1").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(-30000))

		total, err := service.ConfirmedTotal(context.Background(), "member1")
		assert.NoError(t, err)
		assert.Equal(t, int64(-30000), total)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
