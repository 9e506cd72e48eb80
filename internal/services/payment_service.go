package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/clubsocios/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// PaymentService exposes the admin payment console and the member portal
// payment flows. All writes are delegated to the LedgerService.
type PaymentService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

func NewPaymentService(db *sql.DB, ledger *LedgerService) *PaymentService {
	return &PaymentService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// ListPayments lists confirmed payments and adjustments
// @Summary List payments
// @Description List confirmed payments and adjustments, newest first. Fee charges are excluded; see the fees endpoints for batches.
// @Tags payments
// @Produce json
// @Param method query string false "Filter by method (cash, transfer, adjustment)"
// @Param search query string false "Filter by member name"
// @Success 200 {object} object{payments=[]models.LedgerEntry,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /payments [get]
func (s *PaymentService) ListPayments(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("method")
	search := r.URL.Query().Get("search")

	query := `
		SELECT p.id, p.user_id, p.amount, p.method, p.status, p.date,
		       COALESCE(p.proof_url, ''), COALESCE(p.notes, ''), COALESCE(p.category_snapshot, ''),
		       COALESCE(u.name, '` + models.DeletedMemberName + `')
		FROM payments p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.method <> 'cuota'
		  AND (p.status IN ('approved', 'completed') OR p.method = 'adjustment')`
	args := []any{}
	if method != "" {
		args = append(args, method)
		query += ` AND p.method = $1`
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		if method != "" {
			query += ` AND u.name ILIKE $2`
		} else {
			query += ` AND u.name ILIKE $1`
		}
	}
	query += ` ORDER BY p.date DESC LIMIT 200`

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[PAYMENTS] List query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch payments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	payments := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Method, &e.Status, &e.Date,
			&e.ProofURL, &e.Notes, &e.CategorySnapshot, &e.MemberName); err != nil {
			log.Printf("[PAYMENTS] Row scan failed: %v", err)
			continue
		}
		payments = append(payments, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"payments": payments,
		"count":    len(payments),
	})
}

// CreateCashPayment registers an over-the-counter cash payment
// @Summary Register cash payment
// @Description Record an immediate cash payment for a member, stamping the member's current category
// @Tags payments
// @Accept json
// @Produce json
// @Param request body object{member_id=string,amount=int64} true "Cash payment"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /payments/cash [post]
func (s *PaymentService) CreateCashPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string `json:"member_id" validate:"required,uuid4"`
		Amount   int64  `json:"amount" validate:"required,gt=0"` // centavos
	}

	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var birthDate *time.Time
	err := s.db.QueryRow("SELECT birth_date FROM users WHERE id = $1", req.MemberID).Scan(&birthDate)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[PAYMENTS] Member lookup failed: %v", err)
		SendErrorResponse(w, "Failed to register payment", http.StatusInternalServerError, nil)
		return
	}

	entry := models.LedgerEntry{
		MemberID:         req.MemberID,
		Amount:           req.Amount,
		Method:           models.MethodCash,
		Status:           models.EntryStatusCompleted,
		CategorySnapshot: models.ClassifyCategory(birthDate, time.Now()),
	}

	if err := s.ledger.RecordEntry(r.Context(), &entry); err != nil {
		log.Printf("[PAYMENTS] Cash payment failed for member %s: %v", req.MemberID, err)
		SendErrorResponse(w, "Failed to register payment", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENTS] Cash payment of %d registered for member %s", req.Amount, req.MemberID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// CreateAdjustment applies a manual debt or credit
// @Summary Apply manual adjustment
// @Description Apply a one-off debt or credit to a member with a required note
// @Tags payments
// @Accept json
// @Produce json
// @Param request body object{member_id=string,amount=int64,kind=string,note=string} true "Adjustment; kind is debt or credit"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} ErrorResponse
// @Router /payments/adjustments [post]
func (s *PaymentService) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID string `json:"member_id" validate:"required,uuid4"`
		Amount   int64  `json:"amount" validate:"required,gt=0"` // centavos, always positive; kind sets the sign
		Kind     string `json:"kind" validate:"required,oneof=debt credit"`
		Note     string `json:"note" validate:"required,max=200"`
	}

	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount := req.Amount
	if req.Kind == "debt" {
		amount = -amount
	}

	entry := models.LedgerEntry{
		MemberID: req.MemberID,
		Amount:   amount,
		Method:   models.MethodAdjustment,
		Status:   models.EntryStatusCompleted,
		Notes:    req.Note,
	}

	if err := s.ledger.RecordEntry(r.Context(), &entry); err != nil {
		log.Printf("[PAYMENTS] Adjustment failed for member %s: %v", req.MemberID, err)
		SendErrorResponse(w, "Failed to apply adjustment", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENTS] Adjustment of %d applied to member %s", amount, req.MemberID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// DeletePayment removes a ledger entry and reverses its balance effect
// @Summary Delete payment
// @Description Delete a ledger entry; its balance effect is reversed in the same transaction
// @Tags payments
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /payments/{paymentId} [delete]
func (s *PaymentService) DeletePayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	if err := s.ledger.DeleteEntry(r.Context(), paymentID); err != nil {
		log.Printf("[PAYMENTS] Delete failed for entry %s: %v", paymentID, err)
		SendErrorResponse(w, "Failed to delete payment", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Payment deleted"})
}

// ReportTransfer lets a member report a bank transfer for review
// @Summary Report transfer
// @Description Member-reported transfer with optional receipt URL; enters the inbox as pending
// @Tags portal
// @Accept json
// @Produce json
// @Param request body object{amount=int64,proof_url=string} true "Reported transfer"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /portal/payments [post]
func (s *PaymentService) ReportTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount   int64  `json:"amount" validate:"required,gt=0"` // centavos
		ProofURL string `json:"proof_url" validate:"omitempty,max=500"`
	}

	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Pending entries do not touch the balance until approved
	entry := models.LedgerEntry{
		MemberID: userID,
		Amount:   req.Amount,
		Method:   models.MethodTransfer,
		Status:   models.EntryStatusPending,
		ProofURL: req.ProofURL,
	}

	if err := s.ledger.RecordEntry(r.Context(), &entry); err != nil {
		log.Printf("[PAYMENTS] Transfer report failed for member %s: %v", userID, err)
		SendErrorResponse(w, "Failed to report transfer", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENTS] Transfer of %d reported by member %s", req.Amount, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// GetStatement returns the authenticated member's own entries
// @Summary Member statement
// @Description All of the member's ledger entries, newest first
// @Tags portal
// @Produce json
// @Success 200 {object} object{payments=[]models.LedgerEntry,balance=int64}
// @Failure 401 {object} ErrorResponse
// @Router /portal/payments [get]
func (s *PaymentService) GetStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, user_id, amount, method, status, date,
		       COALESCE(proof_url, ''), COALESCE(notes, ''), COALESCE(category_snapshot, '')
		FROM payments
		WHERE user_id = $1
		ORDER BY date DESC`, userID)
	if err != nil {
		log.Printf("[PAYMENTS] Statement query failed for member %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch statement", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	payments := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Method, &e.Status, &e.Date,
			&e.ProofURL, &e.Notes, &e.CategorySnapshot); err != nil {
			continue
		}
		payments = append(payments, e)
	}

	var balance int64
	if err := s.db.QueryRowContext(r.Context(),
		"SELECT account_balance FROM users WHERE id = $1", userID).Scan(&balance); err != nil {
		log.Printf("[PAYMENTS] Balance lookup failed for member %s: %v", userID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"payments": payments,
		"balance":  balance,
	})
}

// decodeJSON applies the shared request body discipline: size cap, unknown
// field rejection, single JSON object. Returns false if a response was sent.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}
