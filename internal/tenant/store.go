package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

// Store persists tenants, memberships and invites. Lookup methods return
// (nil, nil) when the row does not exist.
type Store interface {
	// CreateTenantWithOwner creates the tenant and its first OWNER
	// membership in one unit of work.
	CreateTenantWithOwner(ctx context.Context, tenant *models.Tenant, accountID uuid.UUID) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	UpdateTenantName(ctx context.Context, id uuid.UUID, name string) error
	// DeleteTenant removes the tenant together with its memberships and
	// invites.
	DeleteTenant(ctx context.Context, id uuid.UUID) error

	GetMembership(ctx context.Context, tenantID, accountID uuid.UUID) (*models.User, error)
	GetMembershipByID(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error)
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.User, error)
	CountOwners(ctx context.Context, tenantID uuid.UUID) (int, error)
	CreateMembership(ctx context.Context, user *models.User) error
	UpdateMembershipRole(ctx context.Context, userID uuid.UUID, role models.TenantUserRole) error
	DeleteMembership(ctx context.Context, userID uuid.UUID) error

	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)

	CreateInvite(ctx context.Context, invite *models.TenantInvite) error
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	ListInvites(ctx context.Context, tenantID uuid.UUID) ([]models.TenantInvite, error)
}
