package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/clubsocios/backend/internal/audit"
	"github.com/clubsocios/backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// InboxService reviews member-reported transfers. Approval stamps the
// member's category as classified at approval time (not at creation) and
// credits the balance; both happen in one transaction and only while the
// entry is still pending, so a second approve call is a no-op conflict
// instead of a double credit.
type InboxService struct {
	db     *sql.DB
	ledger *LedgerService
	audit  *audit.Logger
}

func NewInboxService(db *sql.DB, ledger *LedgerService) *InboxService {
	return &InboxService{
		db:     db,
		ledger: ledger,
		audit:  audit.NewLogger(),
	}
}

// ListPending lists transfers awaiting review
// @Summary List pending transfers
// @Description Member-reported transfers in pending state, oldest first
// @Tags inbox
// @Produce json
// @Success 200 {object} object{pending=[]models.LedgerEntry,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /inbox [get]
func (s *InboxService) ListPending(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT p.id, p.user_id, p.amount, p.method, p.status, p.date,
		       COALESCE(p.proof_url, ''), COALESCE(p.notes, ''),
		       COALESCE(u.name, '`+models.DeletedMemberName+`')
		FROM payments p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.status = 'pending'
		ORDER BY p.date ASC`)
	if err != nil {
		log.Printf("[INBOX] Pending query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch pending transfers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	pending := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Method, &e.Status, &e.Date,
			&e.ProofURL, &e.Notes, &e.MemberName); err != nil {
			continue
		}
		pending = append(pending, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"pending": pending,
		"count":   len(pending),
	})
}

// Approve approves a pending transfer
// @Summary Approve transfer
// @Description Approve a pending transfer: stamps the member's current category and credits the balance
// @Tags inbox
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} models.LedgerEntry
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Entry is not pending"
// @Router /inbox/{paymentId}/approve [post]
func (s *InboxService) Approve(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		SendErrorResponse(w, "Failed to approve transfer", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var entry models.LedgerEntry
	entry.ID = paymentID
	err = tx.QueryRow(`
		SELECT user_id, amount, method, status
		FROM payments
		WHERE id = $1
		FOR UPDATE`, paymentID).Scan(&entry.MemberID, &entry.Amount, &entry.Method, &entry.Status)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Transfer not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[INBOX] Entry lookup failed for %s: %v", paymentID, err)
		SendErrorResponse(w, "Failed to approve transfer", http.StatusInternalServerError, nil)
		return
	}

	if entry.Status != models.EntryStatusPending {
		SendErrorResponse(w, "Transfer is not pending", http.StatusConflict, nil)
		return
	}

	// Classify from a fresh read of the birth date, as of now
	var birthDate *time.Time
	err = tx.QueryRow("SELECT birth_date FROM users WHERE id = $1", entry.MemberID).Scan(&birthDate)
	if err != nil && err != sql.ErrNoRows {
		log.Printf("[INBOX] Member lookup failed for %s: %v", entry.MemberID, err)
		SendErrorResponse(w, "Failed to approve transfer", http.StatusInternalServerError, nil)
		return
	}
	entry.CategorySnapshot = models.ClassifyCategory(birthDate, time.Now())
	entry.Status = models.EntryStatusApproved

	if _, err := tx.Exec(`
		UPDATE payments SET status = 'approved', category_snapshot = $1 WHERE id = $2`,
		entry.CategorySnapshot, paymentID); err != nil {
		log.Printf("[INBOX] Approval update failed for %s: %v", paymentID, err)
		SendErrorResponse(w, "Failed to approve transfer", http.StatusInternalServerError, nil)
		return
	}

	if _, err := s.ledger.applyBalanceTx(tx, entry.MemberID, entry.Amount); err != nil {
		log.Printf("[INBOX] Balance credit failed for %s: %v", entry.MemberID, err)
		SendErrorResponse(w, "Failed to approve transfer", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to approve transfer", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[INBOX] Transfer %s approved for member %s, category %s",
		paymentID, entry.MemberID, entry.CategorySnapshot)
	s.audit.LogEntry("ENTRY_APPROVED", paymentID, entry.MemberID, entry.Amount)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// Reject rejects a pending transfer
// @Summary Reject transfer
// @Description Reject a pending transfer; never changes any balance
// @Tags inbox
// @Produce json
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse "Entry is not pending"
// @Router /inbox/{paymentId}/reject [post]
func (s *InboxService) Reject(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE payments SET status = 'rejected' WHERE id = $1 AND status = 'pending'`, paymentID)
	if err != nil {
		log.Printf("[INBOX] Rejection failed for %s: %v", paymentID, err)
		SendErrorResponse(w, "Failed to reject transfer", http.StatusInternalServerError, nil)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		SendErrorResponse(w, "Failed to reject transfer", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Transfer is not pending", http.StatusConflict, nil)
		return
	}

	log.Printf("[INBOX] Transfer %s rejected", paymentID)
	s.audit.LogEntry("ENTRY_REJECTED", paymentID, "", 0)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Transfer rejected"})
}
