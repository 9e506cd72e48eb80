package models

import "time"

// Member represents a club member ("socio")
type Member struct {
	ID                    string     `json:"id" db:"id"`
	Name                  string     `json:"name" db:"name"`
	Email                 string     `json:"email" db:"email"`
	CUIL                  string     `json:"cuil" db:"cuil"` // 11 digits, no separators
	Role                  string     `json:"role" db:"role"`
	Status                string     `json:"status" db:"status"`
	AccountBalance        int64      `json:"account_balance" db:"account_balance"` // signed centavos; negative = debt
	Version               int        `json:"version" db:"version"`
	Category              string     `json:"category" db:"category"`
	BirthDate             *time.Time `json:"birth_date" db:"birth_date"`
	Gender                string     `json:"gender" db:"gender"`
	Phone                 string     `json:"phone" db:"phone"`
	Address               string     `json:"address" db:"address"`
	EmergencyContactName  string     `json:"emergency_contact_name" db:"emergency_contact_name"`
	EmergencyContactPhone string     `json:"emergency_contact_phone" db:"emergency_contact_phone"`
	MedicalNotes          string     `json:"medical_notes" db:"medical_notes"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// Member roles
const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// Member status; inactive members are excluded from fee batches
const (
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// DeletedMemberName is shown when a payment references a member that no longer exists
const DeletedMemberName = "Usuario Eliminado"
