package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestInboxService_Approve(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInboxService(db, NewLedgerService(db))

	router := chi.NewRouter()
	router.Post("/inbox/{paymentId}/approve", service.Approve)

	t.Run("approval stamps current category and credits balance once", func(t *testing.T) {
		// Member turned 15 since reporting the transfer
		birth := time.Date(time.Now().Year()-15, 6, 1, 0, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}).
				AddRow("member1", 150000, "transfer", "pending"))
		mock.ExpectQuery("SELECT birth_date FROM users WHERE id = \\$1").
			WithArgs("member1").
			WillReturnRows(sqlmock.NewRows([]string{"birth_date"}).AddRow(birth))
		mock.ExpectExec("UPDATE payments SET status = 'approved', category_snapshot = \\$1 WHERE id = \\$2").
			WithArgs("Cadetes", "entry1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(150000), "member1").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(150000))
		mock.ExpectCommit()

		req := httptest.NewRequest("POST", "/inbox/entry1/approve", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "approved", response["status"])
		assert.Equal(t, "Cadetes", response["category_snapshot"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already approved entry conflicts without a second credit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}).
				AddRow("member1", 150000, "transfer", "approved"))
		mock.ExpectRollback()

		req := httptest.NewRequest("POST", "/inbox/entry1/approve", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown entry", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}))
		mock.ExpectRollback()

		req := httptest.NewRequest("POST", "/inbox/missing/approve", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member without a birth date approves with unknown category", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry2").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}).
				AddRow("member2", 150000, "transfer", "pending"))
		mock.ExpectQuery("SELECT birth_date FROM users WHERE id = \\$1").
			WithArgs("member2").
			WillReturnRows(sqlmock.NewRows([]string{"birth_date"}).AddRow(nil))
		mock.ExpectExec("UPDATE payments SET status = 'approved', category_snapshot = \\$1 WHERE id = \\$2").
			WithArgs("-", "entry2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(150000), "member2").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(150000))
		mock.ExpectCommit()

		req := httptest.NewRequest("POST", "/inbox/entry2/approve", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("member deleted before approval fails without committing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, amount, method, status FROM payments WHERE id = \\$1 FOR UPDATE").
			WithArgs("entry3").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "amount", "method", "status"}).
				AddRow("ghost", 150000, "transfer", "pending"))
		mock.ExpectQuery("SELECT birth_date FROM users WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"birth_date"}))
		mock.ExpectExec("UPDATE payments SET status = 'approved', category_snapshot = \\$1 WHERE id = \\$2").
			WithArgs("-", "entry3").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(150000), "ghost").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}))
		mock.ExpectRollback()

		req := httptest.NewRequest("POST", "/inbox/entry3/approve", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInboxService_Reject(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInboxService(db, NewLedgerService(db))

	router := chi.NewRouter()
	router.Post("/inbox/{paymentId}/reject", service.Reject)

	t.Run("rejection never touches any balance", func(t *testing.T) {
		mock.ExpectExec("UPDATE payments SET status = 'rejected' WHERE id = \\$1 AND status = 'pending'").
			WithArgs("entry1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		req := httptest.NewRequest("POST", "/inbox/entry1/reject", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-pending entry conflicts", func(t *testing.T) {
		mock.ExpectExec("UPDATE payments SET status = 'rejected' WHERE id = \\$1 AND status = 'pending'").
			WithArgs("entry1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		req := httptest.NewRequest("POST", "/inbox/entry1/reject", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInboxService_ListPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewInboxService(db, NewLedgerService(db))

	t.Run("deleted member shows placeholder name", func(t *testing.T) {
		mock.ExpectQuery("SELECT p.id, p.user_id, p.amount, p.method, p.status, p.date").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "method", "status", "date", "proof_url", "notes", "name"}).
				AddRow("entry1", "member1", 150000, "transfer", "pending", time.Now(), "", "", "Juana Pérez").
				AddRow("entry2", "ghost", 90000, "transfer", "pending", time.Now(), "", "", "Usuario Eliminado"))

		r := httptest.NewRequest("GET", "/inbox", nil)
		w := httptest.NewRecorder()

		service.ListPending(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Pending []struct {
				MemberName string `json:"member_name"`
			} `json:"pending"`
			Count int `json:"count"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, "Usuario Eliminado", response.Pending[1].MemberName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
