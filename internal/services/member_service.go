package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/clubsocios/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// MemberService manages the member roster. Category is never stored as
// authoritative state: list and detail responses re-classify from the birth
// date on every read, so a member ages into the next bracket without any
// write ever happening.
type MemberService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

func NewMemberService(db *sql.DB, ledger *LedgerService) *MemberService {
	return &MemberService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

type CreateMemberRequest struct {
	Name                  string `json:"name" validate:"required,min=2,max=100"`
	Email                 string `json:"email" validate:"required,email"`
	CUIL                  string `json:"cuil" validate:"required,cuil"`
	BirthDate             string `json:"birth_date,omitempty"`
	Gender                string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Phone                 string `json:"phone,omitempty"`
	Address               string `json:"address,omitempty"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
	MedicalNotes          string `json:"medical_notes,omitempty"`
}

type UpdateMemberRequest struct {
	Name                  *string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	Email                 *string `json:"email,omitempty" validate:"omitempty,email"`
	BirthDate             *string `json:"birth_date,omitempty"`
	Gender                *string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Phone                 *string `json:"phone,omitempty"`
	Address               *string `json:"address,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
	MedicalNotes          *string `json:"medical_notes,omitempty"`
}

// ListMembers lists the roster with optional filters
// @Summary List members
// @Description Roster of player members with optional status, category and search filters
// @Tags members
// @Produce json
// @Param status query string false "active or inactive"
// @Param category query string false "Category name"
// @Param search query string false "Name or CUIL fragment"
// @Success 200 {object} object{members=[]models.Member,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /members [get]
func (s *MemberService) ListMembers(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT id, name, email, cuil, status, account_balance,
		       birth_date, COALESCE(gender, ''), COALESCE(phone, ''),
		       COALESCE(address, ''), COALESCE(emergency_contact_name, ''),
		       COALESCE(emergency_contact_phone, ''), COALESCE(medical_notes, ''),
		       created_at
		FROM users
		WHERE role = 'player'`
	args := []any{}

	if status := r.URL.Query().Get("status"); status == models.MemberStatusActive || status == models.MemberStatusInactive {
		args = append(args, status)
		query += " AND status = $1"
	}
	if search := r.URL.Query().Get("search"); search != "" {
		args = append(args, "%"+search+"%")
		if len(args) == 1 {
			query += " AND (name ILIKE $1 OR cuil ILIKE $1)"
		} else {
			query += " AND (name ILIKE $2 OR cuil ILIKE $2)"
		}
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[MEMBERS] Roster query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch members", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	now := time.Now()
	categoryFilter := r.URL.Query().Get("category")

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.CUIL, &m.Status, &m.AccountBalance,
			&m.BirthDate, &m.Gender, &m.Phone, &m.Address, &m.EmergencyContactName,
			&m.EmergencyContactPhone, &m.MedicalNotes, &m.CreatedAt); err != nil {
			continue
		}
		m.Role = models.RolePlayer
		m.Category = models.ClassifyCategory(m.BirthDate, now)
		if categoryFilter != "" && m.Category != categoryFilter {
			continue
		}
		members = append(members, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// SearchMembers returns a short typeahead result set
// @Summary Search members
// @Description Up to five members matching a name or CUIL fragment
// @Tags members
// @Produce json
// @Param q query string true "Search fragment"
// @Success 200 {array} models.Member
// @Router /members/search [get]
func (s *MemberService) SearchMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]models.Member{})
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, name, cuil, birth_date, account_balance
		FROM users
		WHERE role = 'player' AND (name ILIKE $1 OR cuil ILIKE $1)
		ORDER BY name ASC
		LIMIT 5`, "%"+q+"%")
	if err != nil {
		log.Printf("[MEMBERS] Search failed: %v", err)
		SendErrorResponse(w, "Search failed", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	now := time.Now()
	results := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.CUIL, &m.BirthDate, &m.AccountBalance); err != nil {
			continue
		}
		m.Category = models.ClassifyCategory(m.BirthDate, now)
		results = append(results, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// CreateMember registers a member from the admin side
// @Summary Create member
// @Description Create a player member; the initial password is the member's CUIL
// @Tags members
// @Accept json
// @Produce json
// @Param request body CreateMemberRequest true "Member data"
// @Success 201 {object} models.Member
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "CUIL already registered"
// @Router /members [post]
func (s *MemberService) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			SendErrorResponse(w, "Invalid birth date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		birthDate = &parsed
	}

	var exists bool
	err := s.db.QueryRowContext(r.Context(),
		"SELECT EXISTS(SELECT 1 FROM users WHERE cuil = $1)", req.CUIL).Scan(&exists)
	if err != nil {
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "CUIL already registered", http.StatusConflict, nil)
		return
	}

	// First login uses the CUIL as password
	passwordHash, err := hashPassword(req.CUIL)
	if err != nil {
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}

	member := models.Member{
		ID:                    uuid.New().String(),
		Name:                  req.Name,
		Email:                 strings.ToLower(req.Email),
		CUIL:                  req.CUIL,
		Role:                  models.RolePlayer,
		Status:                models.MemberStatusActive,
		BirthDate:             birthDate,
		Gender:                req.Gender,
		Phone:                 req.Phone,
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		MedicalNotes:          req.MedicalNotes,
		Category:              models.ClassifyCategory(birthDate, time.Now()),
		CreatedAt:             time.Now(),
	}

	_, err = s.db.ExecContext(r.Context(), `
		INSERT INTO users (id, name, email, cuil, password_hash, role, status,
		                   account_balance, version, birth_date, gender, phone, address,
		                   emergency_contact_name, emergency_contact_phone, medical_notes,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'player', 'active', 0, 1, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`,
		member.ID, member.Name, member.Email, member.CUIL, passwordHash,
		member.BirthDate, member.Gender, member.Phone, member.Address,
		member.EmergencyContactName, member.EmergencyContactPhone, member.MedicalNotes)
	if err != nil {
		log.Printf("[MEMBERS] Insert failed: %v", err)
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[MEMBERS] Member created: %s (%s)", member.Name, member.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

// MemberDetail is the admin member view plus the total recomputed from the
// ledger, so drift from the cached balance is visible on the detail page.
type MemberDetail struct {
	models.Member
	ConfirmedTotal int64 `json:"confirmed_total"`
}

// GetMember returns one member with the ledger-recomputed total
// @Summary Get member
// @Tags members
// @Produce json
// @Param memberId path string true "Member ID"
// @Success 200 {object} MemberDetail
// @Failure 404 {object} ErrorResponse
// @Router /members/{memberId} [get]
func (s *MemberService) GetMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")

	var m models.Member
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, name, email, cuil, role, status, account_balance, version,
		       birth_date, COALESCE(gender, ''), COALESCE(phone, ''),
		       COALESCE(address, ''), COALESCE(emergency_contact_name, ''),
		       COALESCE(emergency_contact_phone, ''), COALESCE(medical_notes, ''),
		       created_at, updated_at
		FROM users WHERE id = $1`, memberID).Scan(
		&m.ID, &m.Name, &m.Email, &m.CUIL, &m.Role, &m.Status, &m.AccountBalance, &m.Version,
		&m.BirthDate, &m.Gender, &m.Phone, &m.Address, &m.EmergencyContactName,
		&m.EmergencyContactPhone, &m.MedicalNotes, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[MEMBERS] Lookup failed for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch member", http.StatusInternalServerError, nil)
		return
	}
	m.Category = models.ClassifyCategory(m.BirthDate, time.Now())

	confirmedTotal, err := s.ledger.ConfirmedTotal(r.Context(), memberID)
	if err != nil {
		log.Printf("[MEMBERS] Ledger total failed for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to fetch member", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MemberDetail{Member: m, ConfirmedTotal: confirmedTotal})
}

// UpdateMember updates member data from the admin side
// @Summary Update member
// @Tags members
// @Accept json
// @Produce json
// @Param memberId path string true "Member ID"
// @Param request body UpdateMemberRequest true "Fields to update"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /members/{memberId} [put]
func (s *MemberService) UpdateMember(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")

	var req UpdateMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var birthDate *time.Time
	if req.BirthDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			SendErrorResponse(w, "Invalid birth date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		birthDate = &parsed
	}
	if req.Email != nil {
		lowered := strings.ToLower(*req.Email)
		req.Email = &lowered
	}

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE users SET
			name = COALESCE($1, name),
			email = COALESCE($2, email),
			birth_date = COALESCE($3, birth_date),
			gender = COALESCE($4, gender),
			phone = COALESCE($5, phone),
			address = COALESCE($6, address),
			emergency_contact_name = COALESCE($7, emergency_contact_name),
			emergency_contact_phone = COALESCE($8, emergency_contact_phone),
			medical_notes = COALESCE($9, medical_notes),
			updated_at = NOW()
		WHERE id = $10`,
		req.Name, req.Email, birthDate, req.Gender, req.Phone, req.Address,
		req.EmergencyContactName, req.EmergencyContactPhone, req.MedicalNotes, memberID)
	if err != nil {
		log.Printf("[MEMBERS] Update failed for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to update member", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Member updated"})
}

// SetMemberStatus activates or deactivates a member
// @Summary Set member status
// @Description Toggle a member between active and inactive. Inactive members keep their balance and history but are skipped by fee batches.
// @Tags members
// @Accept json
// @Produce json
// @Param memberId path string true "Member ID"
// @Param request body object{status=string} true "active or inactive"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /members/{memberId}/status [put]
func (s *MemberService) SetMemberStatus(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberId")

	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status != models.MemberStatusActive && req.Status != models.MemberStatusInactive {
		SendErrorResponse(w, "Status must be active or inactive", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.ExecContext(r.Context(),
		"UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2", req.Status, memberID)
	if err != nil {
		log.Printf("[MEMBERS] Status update failed for %s: %v", memberID, err)
		SendErrorResponse(w, "Failed to update status", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "Member not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[MEMBERS] Member %s set to %s", memberID, req.Status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Status updated", "status": req.Status})
}

// UpdateOwnProfile lets an authenticated member edit their own contact data
// @Summary Update own profile
// @Description Members may change contact details but not their name, CUIL or birth date
// @Tags portal
// @Accept json
// @Produce json
// @Param request body object{email=string,phone=string,address=string} true "Contact fields"
// @Success 200 {object} map[string]string
// @Router /portal/profile [put]
func (s *MemberService) UpdateOwnProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Email                 *string `json:"email,omitempty" validate:"omitempty,email"`
		Phone                 *string `json:"phone,omitempty"`
		Address               *string `json:"address,omitempty"`
		EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
		EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Email != nil {
		lowered := strings.ToLower(*req.Email)
		req.Email = &lowered
	}

	_, err := s.db.ExecContext(r.Context(), `
		UPDATE users SET
			email = COALESCE($1, email),
			phone = COALESCE($2, phone),
			address = COALESCE($3, address),
			emergency_contact_name = COALESCE($4, emergency_contact_name),
			emergency_contact_phone = COALESCE($5, emergency_contact_phone),
			updated_at = NOW()
		WHERE id = $6`,
		req.Email, req.Phone, req.Address, req.EmergencyContactName, req.EmergencyContactPhone, userID)
	if err != nil {
		log.Printf("[MEMBERS] Profile update failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to update profile", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Profile updated"})
}
