package models

import (
	"time"

	"github.com/google/uuid"
)

type TenantUserRole string

const (
	RoleOwner  TenantUserRole = "owner"
	RoleAdmin  TenantUserRole = "admin"
	RoleMember TenantUserRole = "member"
	RoleGuest  TenantUserRole = "guest"
)

// Valid reports whether the role is one of the known tenant roles.
func (r TenantUserRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

// CanManage reports whether the role may perform owner/admin-gated
// membership operations.
func (r TenantUserRole) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

type TenantInviteStatus string

const (
	InviteStatusPending TenantInviteStatus = "pending"
	InviteStatusUsed    TenantInviteStatus = "used"
	InviteStatusExpired TenantInviteStatus = "expired"
)

type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User joins an Account to a Tenant with a role. Exactly one row per
// (account_id, tenant_id) pair.
type User struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	AccountID  uuid.UUID      `json:"account_id" db:"account_id"`
	TenantID   uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	Role       TenantUserRole `json:"role" db:"role"`
	InviteCode *string        `json:"invite_code,omitempty" db:"invite_code"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

type TenantInvite struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	Code      string             `json:"code" db:"code"`
	TenantID  uuid.UUID          `json:"tenant_id" db:"tenant_id"`
	Role      TenantUserRole     `json:"role" db:"role"`
	CreatedBy uuid.UUID          `json:"created_by" db:"created_by"`
	Status    TenantInviteStatus `json:"status" db:"status"`
	ExpiresAt time.Time          `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time         `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// Redeemable reports whether the invite can still grant membership.
// Past-expiry invites are treated as expired without being mutated.
func (i *TenantInvite) Redeemable(now time.Time) bool {
	return i.Status == InviteStatusPending && now.Before(i.ExpiresAt)
}
