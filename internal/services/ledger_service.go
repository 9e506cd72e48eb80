package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clubsocios/backend/internal/audit"
	"github.com/clubsocios/backend/internal/models"
	"github.com/google/uuid"
)

// LedgerService is the only path by which member balances change. Every
// write flow (cash payment, adjustment, fee batch, approval, deletion) goes
// through it, so the denormalized account_balance cannot drift from the
// entries that produced it. Entry insert and balance update always share one
// database transaction.
type LedgerService struct {
	db    *sql.DB
	audit *audit.Logger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:    db,
		audit: audit.NewLogger(),
	}
}

// RecordEntry persists a ledger entry and, when the entry counts toward the
// confirmed balance, applies its signed amount to the owning member's
// balance in the same transaction.
func (s *LedgerService) RecordEntry(ctx context.Context, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.insertEntryTx(tx, entry); err != nil {
		s.audit.LogError("ENTRY_RECORD", entry.ID, entry.MemberID, err)
		return err
	}

	if entry.CountsTowardBalance() {
		if _, err := s.applyBalanceTx(tx, entry.MemberID, entry.Amount); err != nil {
			s.audit.LogError("ENTRY_RECORD", entry.ID, entry.MemberID, err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.LogEntry("ENTRY_RECORDED", entry.ID, entry.MemberID, entry.Amount)
	return nil
}

// DeleteEntry removes a ledger entry and reverses its balance effect when
// the entry had counted toward the confirmed balance. Reversal is explicit
// and transactional; there is no backend trigger involved.
func (s *LedgerService) DeleteEntry(ctx context.Context, entryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var entry models.LedgerEntry
	entry.ID = entryID
	err = tx.QueryRow(`
		SELECT user_id, amount, method, status
		FROM payments
		WHERE id = $1
		FOR UPDATE`, entryID).Scan(&entry.MemberID, &entry.Amount, &entry.Method, &entry.Status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("ledger entry %s not found", entryID)
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM payments WHERE id = $1`, entryID); err != nil {
		s.audit.LogError("ENTRY_DELETE", entryID, entry.MemberID, err)
		return err
	}

	if entry.CountsTowardBalance() {
		if _, err := s.applyBalanceTx(tx, entry.MemberID, -entry.Amount); err != nil {
			s.audit.LogError("ENTRY_DELETE", entryID, entry.MemberID, err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit.LogEntry("ENTRY_DELETED", entryID, entry.MemberID, -entry.Amount)
	return nil
}

// ConfirmedTotal recomputes the member's confirmed balance from the ledger.
// Used for reconciliation against the cached account_balance.
func (s *LedgerService) ConfirmedTotal(ctx context.Context, memberID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE user_id = $1
		  AND (method IN ('adjustment', 'cuota') OR status IN ('approved', 'completed'))`,
		memberID).Scan(&total)
	return total, err
}

func (s *LedgerService) insertEntryTx(tx *sql.Tx, entry *models.LedgerEntry) error {
	_, err := tx.Exec(`
		INSERT INTO payments (id, user_id, amount, method, status, date, proof_url, notes, category_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.MemberID, entry.Amount, entry.Method, entry.Status,
		entry.Date, entry.ProofURL, entry.Notes, entry.CategorySnapshot)
	return err
}

// applyBalanceTx shifts the member's cached balance by delta. The update is
// relative, so concurrent writers on different entries cannot lose each
// other's effect; the version bump keeps profile edits honest.
func (s *LedgerService) applyBalanceTx(tx *sql.Tx, memberID string, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(`
		UPDATE users
		SET account_balance = account_balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING account_balance`, delta, memberID).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("member %s not found", memberID)
	}
	return newBalance, err
}
