package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the account's role
type Role = string

const (
	// RoleStandard is a regular marketplace account
	RoleStandard Role = "standard"
	// RoleAdmin is an administrative account
	RoleAdmin Role = "admin"
)

// ParseRole validates a raw role string, falling back to RoleStandard
func ParseRole(raw string) (Role, bool) {
	switch raw {
	case RoleStandard, RoleAdmin:
		return raw, true
	default:
		return RoleStandard, false
	}
}

// Account is the persisted identity record. Credential material and
// outstanding secrets never leave this package; callers get a View.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	Verified     bool      `bun:"verified" json:"verified"`
	Role         Role      `bun:"role,notnull" json:"role,omitempty"`

	VerificationCode      *string    `bun:"verification_code,nullzero" json:"-"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at,nullzero" json:"-"`

	RecoveryToken     *string    `bun:"recovery_token,nullzero" json:"-"`
	RecoveryExpiresAt *time.Time `bun:"recovery_expires_at,nullzero" json:"-"`

	LastLoginAt *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt   *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// View returns the redacted projection that is safe to serialize outward.
func (a *Account) View() *AccountView {
	if a == nil {
		return nil
	}
	return &AccountView{
		ID:          a.ID.String(),
		Email:       a.Email,
		Verified:    a.Verified,
		Role:        a.Role,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

// IsAdmin reports whether the account carries the admin role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// AccountView is the outward identity snapshot: no credential material,
// no outstanding secrets.
type AccountView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Verified    bool       `json:"verified"`
	Role        Role       `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// GetID satisfies Identity
func (v *AccountView) GetID() string { return v.ID }

// GetRole satisfies Identity
func (v *AccountView) GetRole() string { return string(v.Role) }

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// case-insensitive, so every write path goes through here.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
