package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

// LoginInfo is the typed update applied to an account on a successful login.
type LoginInfo struct {
	At       time.Time
	IP       string
	TenantID uuid.UUID
	Language string
}

// ProfileUpdate lists the only account fields a caller may change directly.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name     *string
	Language *string
}

// Store persists accounts, invites and OAuth links. Lookup methods return
// (nil, nil) when the row does not exist. Compound methods are atomic: they
// either apply all of their writes or none.
type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByEmailOrName(ctx context.Context, email, name string) (*models.Account, error)

	CreateAccount(ctx context.Context, account *models.Account) error
	// CreateAccountWithInvite creates the account, a membership row in the
	// invite's tenant with the invite's role, and flips the invite to USED,
	// all in one unit of work.
	CreateAccountWithInvite(ctx context.Context, account *models.Account, invite *models.TenantInvite) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	RecordLogin(ctx context.Context, id uuid.UUID, info LoginInfo) error
	UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error

	FindInviteByCode(ctx context.Context, code string) (*models.TenantInvite, error)
	// RedeemInvite adds a membership for an existing account and marks the
	// invite used, atomically. Used by the OAuth flow.
	RedeemInvite(ctx context.Context, accountID uuid.UUID, invite *models.TenantInvite) error

	// MembershipsByAccount returns the account's membership rows ordered by
	// creation time, earliest first.
	MembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.User, error)
	TenantsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Tenant, error)

	FindOAuthProvider(ctx context.Context, providerName, providerID string) (*models.OAuthProvider, error)
	CreateOAuthProvider(ctx context.Context, provider *models.OAuthProvider) error
	UpdateOAuthProvider(ctx context.Context, provider *models.OAuthProvider) error
}
