package models

import (
	"time"

	"github.com/google/uuid"
)

type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Account is the global identity: credentials and email, independent of any
// tenant. Membership in tenants is modeled by User rows.
type Account struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	Name              string        `json:"name" db:"name"`
	Email             string        `json:"email" db:"email"`
	PasswordHash      *string       `json:"-" db:"password_hash"` // nil for OAuth-only accounts
	Status            AccountStatus `json:"status" db:"status"`
	Language          string        `json:"language" db:"language"`
	LastLoginAt       *time.Time    `json:"last_login_at,omitempty" db:"last_login_at"`
	LastLoginIP       string        `json:"last_login_ip,omitempty" db:"last_login_ip"`
	LastLoginTenantID *uuid.UUID    `json:"last_login_tenant_id,omitempty" db:"last_login_tenant_id"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}
