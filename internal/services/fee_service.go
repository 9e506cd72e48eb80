package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/clubsocios/backend/internal/audit"
	"github.com/clubsocios/backend/internal/config"
	"github.com/clubsocios/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ErrBatchExists is returned when the month's fee batch was already generated
var ErrBatchExists = fmt.Errorf("fee batch already generated")

// FeeService generates and reverses monthly fee batches. A batch is one
// cuota debit per active member, all tagged with the month's label. The
// whole batch (N entries plus N balance updates) lives in one transaction,
// and an advisory lock on the label serializes concurrent generation
// attempts, so a batch either fully exists or doesn't.
type FeeService struct {
	db        *sql.DB
	ledger    *LedgerService
	audit     *audit.Logger
	validator *ValidationHelper
}

func NewFeeService(db *sql.DB, ledger *LedgerService) *FeeService {
	return &FeeService{
		db:        db,
		ledger:    ledger,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
	}
}

// GenerateBatch generates the current month's fee batch
// @Summary Generate monthly fee batch
// @Description Charge every active member the monthly fee under the automatic "Cuota <Mes> <Año>" label
// @Tags fees
// @Accept json
// @Produce json
// @Param request body object{amount=int64} true "Per-member fee in centavos"
// @Success 201 {object} object{label=string,entries_created=int,members_affected=int}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Batch already generated"
// @Router /fees/batches [post]
func (s *FeeService) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"` // centavos
	}

	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	label := config.MonthlyFeeLabel(time.Now())

	created, err := s.generate(r, label, req.Amount)
	if err == ErrBatchExists {
		SendErrorResponse(w, fmt.Sprintf("La %s ya fue generada", label), http.StatusConflict, nil)
		return
	}
	if err != nil {
		log.Printf("[FEES] Batch generation failed for %q: %v", label, err)
		SendErrorResponse(w, "Failed to generate fee batch", http.StatusInternalServerError, nil)
		return
	}
	if created == 0 {
		SendErrorResponse(w, "No active members to charge", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[FEES] Batch %q generated: %d members charged %d", label, created, req.Amount)
	s.audit.LogBatch("BATCH_GENERATED", label, created, -req.Amount)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"label":            label,
		"entries_created":  created,
		"members_affected": created,
	})
}

func (s *FeeService) generate(r *http.Request, label string, amount int64) (int, error) {
	ctx := r.Context()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// Serialize generation attempts on the same label. Labels are shared by
	// N rows, so a unique index can't enforce one-batch-per-month; the
	// advisory lock plus the existence re-check below does.
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, label); err != nil {
		return 0, err
	}

	var exists bool
	err = tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM payments WHERE method = 'cuota' AND proof_url = $1)`,
		label).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrBatchExists
	}

	rows, err := tx.Query(`
		SELECT id, birth_date FROM users
		WHERE role = 'player' AND status = 'active'`)
	if err != nil {
		return 0, err
	}

	type target struct {
		id    string
		birth *time.Time
	}
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.birth); err != nil {
			rows.Close()
			return 0, err
		}
		targets = append(targets, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	now := time.Now()
	for _, t := range targets {
		entry := models.LedgerEntry{
			ID:               uuid.NewString(),
			MemberID:         t.id,
			Amount:           -amount,
			Method:           models.MethodCuota,
			Status:           models.EntryStatusCompleted,
			Date:             now,
			ProofURL:         label,
			CategorySnapshot: models.ClassifyCategory(t.birth, now),
		}
		if err := s.ledger.insertEntryTx(tx, &entry); err != nil {
			return 0, err
		}
		if _, err := s.ledger.applyBalanceTx(tx, t.id, -amount); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(targets), nil
}

// ListBatches lists generated fee batches
// @Summary List fee batches
// @Description Fee batches derived by grouping cuota entries on their label
// @Tags fees
// @Produce json
// @Success 200 {object} object{batches=[]models.FeeBatch}
// @Failure 500 {object} ErrorResponse
// @Router /fees/batches [get]
func (s *FeeService) ListBatches(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT proof_url, MAX(date), ABS(MIN(amount)), COUNT(*)
		FROM payments
		WHERE method = 'cuota'
		GROUP BY proof_url
		ORDER BY MAX(date) DESC
		LIMIT 24`)
	if err != nil {
		log.Printf("[FEES] Batch listing failed: %v", err)
		SendErrorResponse(w, "Failed to fetch fee batches", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	batches := []models.FeeBatch{}
	for rows.Next() {
		var b models.FeeBatch
		if err := rows.Scan(&b.Label, &b.Date, &b.Amount, &b.Entries); err != nil {
			continue
		}
		batches = append(batches, b)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"batches": batches})
}

// ReverseBatch undoes a fee batch
// @Summary Reverse fee batch
// @Description Delete every cuota entry tagged with the batch label and restore the affected balances
// @Tags fees
// @Produce json
// @Param label path string true "Batch label"
// @Success 200 {object} object{label=string,entries_removed=int}
// @Failure 404 {object} ErrorResponse
// @Router /fees/batches/{label} [delete]
func (s *FeeService) ReverseBatch(w http.ResponseWriter, r *http.Request) {
	label, err := url.PathUnescape(chi.URLParam(r, "label"))
	if err != nil || label == "" {
		SendErrorResponse(w, "Invalid batch label", http.StatusBadRequest, nil)
		return
	}

	removed, err := s.reverse(r, label)
	if err != nil {
		log.Printf("[FEES] Batch reversal failed for %q: %v", label, err)
		SendErrorResponse(w, "Failed to reverse fee batch", http.StatusInternalServerError, nil)
		return
	}
	if removed == 0 {
		SendErrorResponse(w, "Fee batch not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[FEES] Batch %q reversed: %d entries removed", label, removed)
	s.audit.LogBatch("BATCH_REVERSED", label, removed, 0)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"label":           label,
		"entries_removed": removed,
	})
}

func (s *FeeService) reverse(r *http.Request, label string) (int, error) {
	ctx := r.Context()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, label); err != nil {
		return 0, err
	}

	rows, err := tx.Query(`
		SELECT id, user_id, amount FROM payments
		WHERE method = 'cuota' AND proof_url = $1
		FOR UPDATE`, label)
	if err != nil {
		return 0, err
	}

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Amount); err != nil {
			rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if _, err := tx.Exec(`
		DELETE FROM payments WHERE method = 'cuota' AND proof_url = $1`, label); err != nil {
		return 0, err
	}

	// Restore each balance by the inverse of the charge; nets to zero
	// relative to pre-generation state
	for _, e := range entries {
		if _, err := s.ledger.applyBalanceTx(tx, e.MemberID, -e.Amount); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}
