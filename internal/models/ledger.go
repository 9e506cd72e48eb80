package models

import (
	"time"
)

// LedgerEntry is a single signed monetary movement on a member account.
// Positive amounts are money in the member's favor (payments, credits);
// negative amounts are charges (fees, manual debits).
type LedgerEntry struct {
	ID               string    `json:"id" db:"id"`
	MemberID         string    `json:"user_id" db:"user_id"`
	Amount           int64     `json:"amount" db:"amount"` // in centavos
	Method           string    `json:"method" db:"method"`
	Status           string    `json:"status" db:"status"`
	Date             time.Time `json:"date" db:"date"`
	ProofURL         string    `json:"proof_url" db:"proof_url"` // receipt URL, or batch label for method=cuota
	Notes            string    `json:"notes" db:"notes"`
	CategorySnapshot string    `json:"category_snapshot" db:"category_snapshot"`
	MemberName       string    `json:"member_name,omitempty"`
}

// Payment methods
const (
	MethodCash       = "cash"
	MethodTransfer   = "transfer"
	MethodAdjustment = "adjustment"
	MethodCuota      = "cuota"
)

// Entry status; adjustment and cuota entries bypass the pending workflow
const (
	EntryStatusPending   = "pending"
	EntryStatusApproved  = "approved"
	EntryStatusRejected  = "rejected"
	EntryStatusCompleted = "completed"
)

// CountsTowardBalance reports whether the entry's amount is part of the
// member's confirmed balance. Adjustments and fee charges count immediately;
// everything else only once approved or completed.
func (e *LedgerEntry) CountsTowardBalance() bool {
	if e.Method == MethodAdjustment || e.Method == MethodCuota {
		return true
	}
	return e.Status == EntryStatusApproved || e.Status == EntryStatusCompleted
}

// FeeBatch is a derived grouping of cuota entries sharing one batch label.
// It is never stored as its own row.
type FeeBatch struct {
	Label   string    `json:"label"`
	Date    time.Time `json:"date"`
	Amount  int64     `json:"amount"` // per-member charge, absolute value
	Entries int       `json:"entries"`
}
