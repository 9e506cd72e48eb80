package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/clubsocios/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"socio@example.com"`
	Password string `json:"password" validate:"required,min=6" example:"password123"`
}

// RegisterRequest represents the self-service member registration payload
// @Description Registration request structure
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email" example:"socio@example.com"`
	Password  string `json:"password" validate:"required,min=6" example:"password123"`
	Name      string `json:"name" validate:"required,min=2" example:"Juan Pérez"`
	CUIL      string `json:"cuil" validate:"required,cuil" example:"20345678901"` // 11 digits, no separators
	Phone     string `json:"phone" example:"+5491122334455"`
	BirthDate string `json:"birth_date" example:"2010-04-23"` // YYYY-MM-DD
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Token  string        `json:"token"`
	Member models.Member `json:"member"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Register handles self-service member registration
// @Summary Register a new member
// @Description Register a club member with email, password, CUIL and birth date
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 200 {object} AuthResponse "Registration successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 409 {string} string "CUIL or email already registered"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			SendErrorResponse(w, "Invalid birth_date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		birthDate = &parsed
	}

	log.Printf("[AUTH] Registration request for email: %s", req.Email)

	// Duplicate CUIL is a validation failure: detected before any write
	var existingID string
	err := s.db.QueryRow("SELECT id FROM users WHERE cuil = $1", req.CUIL).Scan(&existingID)
	if err == nil {
		log.Printf("[AUTH] Duplicate CUIL on registration: %s", req.CUIL)
		SendErrorResponse(w, "CUIL Already Registered", http.StatusConflict, nil)
		return
	}
	if err != sql.ErrNoRows {
		log.Printf("[AUTH] CUIL lookup failed: %v", err)
		SendErrorResponse(w, "Failed to create member", http.StatusInternalServerError, nil)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	member := models.Member{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     strings.ToLower(req.Email),
		CUIL:      req.CUIL,
		Role:      models.RolePlayer,
		Status:    models.MemberStatusActive,
		Phone:     req.Phone,
		BirthDate: birthDate,
		Category:  models.ClassifyCategory(birthDate, time.Now()),
	}

	_, err = s.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, cuil, role, status, account_balance, version, category, birth_date, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 1, $8, $9, $10)`,
		member.ID, member.Email, hashedPassword, member.Name, member.CUIL,
		member.Role, member.Status, member.Category, member.BirthDate, member.Phone)
	if err != nil {
		log.Printf("[AUTH] Member creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Email Already Exists", http.StatusConflict, nil)
		return
	}

	log.Printf("[AUTH] Member created successfully - ID: %s, Email: %s", member.ID, member.Email)

	token, err := generateJWT(member.ID, member.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for member %s: %v", member.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Member: member})
}

// Login handles member authentication
// @Summary Login member
// @Description Authenticate a member with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {string} string "Invalid request"
// @Failure 401 {string} string "Invalid credentials"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LoginRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Login failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		log.Printf("[AUTH] Multiple JSON objects detected")
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var member models.Member
	var hashedPassword string
	err := s.db.QueryRow(`
		SELECT id, email, name, cuil, role, status, account_balance, password_hash
		FROM users WHERE email = $1`, strings.ToLower(req.Email)).
		Scan(&member.ID, &member.Email, &member.Name, &member.CUIL, &member.Role,
			&member.Status, &member.AccountBalance, &hashedPassword)
	if err != nil {
		log.Printf("[AUTH] Member not found for email: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for member: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(member.ID, member.Role)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for member %s: %v", member.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for member %s", member.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, Member: member})
}

// Logout handles member logout
// @Summary Logout member
// @Description Logout member and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its expiration
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetAccount retrieves the authenticated member's profile
// @Summary Get member account
// @Description Get authenticated member's profile and balance
// @Tags auth
// @Produce json
// @Success 200 {object} models.Member "Member profile"
// @Failure 401 {string} string "Unauthorized"
// @Failure 500 {string} string "Internal server error"
// @Router /auth/account [get]
func (s *AuthService) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var member models.Member
	err := s.db.QueryRow(`
		SELECT id, email, name, cuil, role, status, account_balance, category, birth_date,
		       COALESCE(gender, ''), COALESCE(phone, ''), COALESCE(address, ''),
		       COALESCE(emergency_contact_name, ''), COALESCE(emergency_contact_phone, ''),
		       COALESCE(medical_notes, '')
		FROM users WHERE id = $1`, userID).
		Scan(&member.ID, &member.Email, &member.Name, &member.CUIL, &member.Role,
			&member.Status, &member.AccountBalance, &member.Category, &member.BirthDate,
			&member.Gender, &member.Phone, &member.Address,
			&member.EmergencyContactName, &member.EmergencyContactPhone, &member.MedicalNotes)
	if err != nil {
		if err == sql.ErrNoRows {
			http.Error(w, "Member not found", http.StatusNotFound)
		} else {
			log.Printf("[AUTH] Failed to fetch member %s: %v", userID, err)
			http.Error(w, "Failed to fetch member details", http.StatusInternalServerError)
		}
		return
	}

	// Category on the row may be stale; classify fresh from the birth date
	member.Category = models.ClassifyCategory(member.BirthDate, time.Now())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

func generateJWT(userID, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
