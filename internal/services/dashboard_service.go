package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/clubsocios/backend/internal/models"
)

type DashboardService struct {
	db *sql.DB
}

func NewDashboardService(db *sql.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardSummary struct {
	Period         string               `json:"period"`
	PeriodStart    time.Time            `json:"period_start"`
	PeriodEnd      time.Time            `json:"period_end"`
	Revenue        int64                `json:"revenue"`
	PeriodDebt     int64                `json:"period_debt"`
	ActiveMembers  int                  `json:"active_members"`
	PendingCount   int                  `json:"pending_count"`
	RecentPayments []models.LedgerEntry `json:"recent_payments"`
}

// periodRange resolves a named period to a half-open [start, end) interval.
func periodRange(period string, now time.Time) (time.Time, time.Time) {
	loc := now.Location()
	switch period {
	case "last":
		start := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, loc)
		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		return start, end
	case "year":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		end := time.Date(now.Year()+1, 1, 1, 0, 0, 0, 0, loc)
		return start, end
	default:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, loc)
		return start, end
	}
}

// GetSummary returns the admin dashboard figures
// @Summary Dashboard summary
// @Description Revenue, period debt, member and pending counts, and the latest confirmed incoming payments
// @Tags dashboard
// @Produce json
// @Param period query string false "current, last or year" default(current)
// @Success 200 {object} DashboardSummary
// @Failure 500 {object} ErrorResponse
// @Router /dashboard/summary [get]
func (s *DashboardService) GetSummary(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period != "last" && period != "year" {
		period = "current"
	}
	start, end := periodRange(period, time.Now())

	summary := DashboardSummary{
		Period:         period,
		PeriodStart:    start,
		PeriodEnd:      end,
		RecentPayments: []models.LedgerEntry{},
	}

	// Incoming money the club actually confirmed during the period
	err := s.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE method IN ('cash', 'transfer')
		  AND status IN ('approved', 'completed')
		  AND amount > 0
		  AND date >= $1 AND date < $2`, start, end).Scan(&summary.Revenue)
	if err != nil {
		log.Printf("[DASHBOARD] Revenue query failed: %v", err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}

	// Charges issued in the period that still outweigh payments in the period
	var periodBalance int64
	err = s.db.QueryRowContext(r.Context(), `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE date >= $1 AND date < $2
		  AND (method IN ('adjustment', 'cuota') OR status IN ('approved', 'completed'))`,
		start, end).Scan(&periodBalance)
	if err != nil {
		log.Printf("[DASHBOARD] Debt query failed: %v", err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}
	if periodBalance < 0 {
		summary.PeriodDebt = -periodBalance
	}

	err = s.db.QueryRowContext(r.Context(),
		"SELECT COUNT(*) FROM users WHERE role = 'player' AND status = 'active'").
		Scan(&summary.ActiveMembers)
	if err != nil {
		log.Printf("[DASHBOARD] Member count failed: %v", err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}

	err = s.db.QueryRowContext(r.Context(),
		"SELECT COUNT(*) FROM payments WHERE status = 'pending'").
		Scan(&summary.PendingCount)
	if err != nil {
		log.Printf("[DASHBOARD] Pending count failed: %v", err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT p.id, p.user_id, p.amount, p.method, p.status, p.date,
		       COALESCE(u.name, '`+models.DeletedMemberName+`')
		FROM payments p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.method IN ('cash', 'transfer')
		  AND p.status IN ('approved', 'completed')
		  AND p.amount > 0
		ORDER BY p.date DESC
		LIMIT 5`)
	if err != nil {
		log.Printf("[DASHBOARD] Recent payments query failed: %v", err)
		SendErrorResponse(w, "Failed to build summary", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Method, &e.Status, &e.Date, &e.MemberName); err != nil {
			continue
		}
		summary.RecentPayments = append(summary.RecentPayments, e)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
