package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestPaymentService_CreateCashPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))
	memberID := "a3c52a6b-94b0-44b6-9e1d-1d8a3f1a2b3c"

	t.Run("cash payment is completed immediately with category stamped", func(t *testing.T) {
		birth := time.Date(time.Now().Year()-10, 3, 15, 0, 0, 0, 0, time.UTC)

		mock.ExpectQuery("SELECT birth_date FROM users WHERE id = \\$1").
			WithArgs(memberID).
			WillReturnRows(sqlmock.NewRows([]string{"birth_date"}).AddRow(birth))
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(sqlmock.AnyArg(), memberID, int64(120000), "cash", "completed",
				sqlmock.AnyArg(), "", "", "Infantiles").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(120000), memberID).
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(120000))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{"member_id": memberID, "amount": 120000})
		r := httptest.NewRequest("POST", "/payments/cash", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateCashPayment(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "cash", response["method"])
		assert.Equal(t, "Infantiles", response["category_snapshot"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown member", func(t *testing.T) {
		mock.ExpectQuery("SELECT birth_date FROM users WHERE id = \\$1").
			WithArgs(memberID).
			WillReturnRows(sqlmock.NewRows([]string{"birth_date"}))

		body, _ := json.Marshal(map[string]any{"member_id": memberID, "amount": 120000})
		r := httptest.NewRequest("POST", "/payments/cash", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateCashPayment(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"member_id": memberID, "amount": -5})
		r := httptest.NewRequest("POST", "/payments/cash", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateCashPayment(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/payments/cash", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.CreateCashPayment(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPaymentService_CreateAdjustment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))
	memberID := "a3c52a6b-94b0-44b6-9e1d-1d8a3f1a2b3c"

	t.Run("debt flips the sign", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(sqlmock.AnyArg(), memberID, int64(-30000), "adjustment", "completed",
				sqlmock.AnyArg(), "", "Equipamiento", "").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(-30000), memberID).
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(-30000))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{
			"member_id": memberID, "amount": 30000, "kind": "debt", "note": "Equipamiento",
		})
		r := httptest.NewRequest("POST", "/payments/adjustments", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateAdjustment(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(-30000), response["amount"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit keeps the sign", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(sqlmock.AnyArg(), memberID, int64(30000), "adjustment", "completed",
				sqlmock.AnyArg(), "", "Beca deportiva", "").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE users").
			WithArgs(int64(30000), memberID).
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(30000))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{
			"member_id": memberID, "amount": 30000, "kind": "credit", "note": "Beca deportiva",
		})
		r := httptest.NewRequest("POST", "/payments/adjustments", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateAdjustment(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing note rejected", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"member_id": memberID, "amount": 30000, "kind": "debt",
		})
		r := httptest.NewRequest("POST", "/payments/adjustments", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.CreateAdjustment(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPaymentService_ReportTransfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))

	t.Run("reported transfer enters pending without balance effect", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO payments").
			WithArgs(sqlmock.AnyArg(), "member1", int64(150000), "transfer", "pending",
				sqlmock.AnyArg(), "/static/receipts/member1/r1.jpg", "", "").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{
			"amount": 150000, "proof_url": "/static/receipts/member1/r1.jpg",
		})
		r := httptest.NewRequest("POST", "/portal/payments", bytes.NewBuffer(body))
		r = r.WithContext(context.WithValue(r.Context(), "userID", "member1"))
		w := httptest.NewRecorder()

		service.ReportTransfer(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "pending", response["status"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unauthenticated", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"amount": 150000})
		r := httptest.NewRequest("POST", "/portal/payments", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.ReportTransfer(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPaymentService_GetStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))

	t.Run("statement returns own entries plus cached balance", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, amount, method, status, date").
			WithArgs("member1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "method", "status", "date", "proof_url", "notes", "category_snapshot"}).
				AddRow("entry2", "member1", -150000, "cuota", "completed", time.Now(), "Cuota Abril 2026", "", "Menores").
				AddRow("entry1", "member1", 150000, "cash", "completed", time.Now(), "", "", "Menores"))
		mock.ExpectQuery("SELECT account_balance FROM users WHERE id = \\$1").
			WithArgs("member1").
			WillReturnRows(sqlmock.NewRows([]string{"account_balance"}).AddRow(0))

		r := httptest.NewRequest("GET", "/portal/payments", nil)
		r = r.WithContext(context.WithValue(r.Context(), "userID", "member1"))
		w := httptest.NewRecorder()

		service.GetStatement(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Payments []struct {
				Method string `json:"method"`
			} `json:"payments"`
			Balance int64 `json:"balance"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Len(t, response.Payments, 2)
		assert.Equal(t, int64(0), response.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentService_ListPayments(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))

	t.Run("fee charges are excluded and deleted members get a placeholder", func(t *testing.T) {
		mock.ExpectQuery("SELECT p.id, p.user_id, p.amount, p.method, p.status, p.date").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "method", "status", "date", "proof_url", "notes", "category_snapshot", "name"}).
				AddRow("entry1", "member1", 150000, "cash", "completed", time.Now(), "", "", "Menores", "Juana Pérez").
				AddRow("entry2", "ghost", 90000, "transfer", "approved", time.Now(), "", "", "Cadetes", "Usuario Eliminado"))

		r := httptest.NewRequest("GET", "/payments", nil)
		w := httptest.NewRecorder()

		service.ListPayments(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Payments []struct {
				MemberName string `json:"member_name"`
			} `json:"payments"`
			Count int `json:"count"`
		}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, "Usuario Eliminado", response.Payments[1].MemberName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("method filter is applied", func(t *testing.T) {
		mock.ExpectQuery("SELECT p.id, p.user_id, p.amount, p.method, p.status, p.date").
			WithArgs("cash").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "method", "status", "date", "proof_url", "notes", "category_snapshot", "name"}))

		r := httptest.NewRequest("GET", "/payments?method=cash", nil)
		w := httptest.NewRecorder()

		service.ListPayments(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentService_DeletePayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db, NewLedgerService(db))

	router := chi.NewRouter()
	router.Delete("/payments/{paymentId}", service.DeletePayment)

	t.Run("delete reverses the balance effect", func(t *testing.T) {
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

		req := httptest.NewRequest("DELETE", "/payments/entry1", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
