// Package tenant implements role-gated management of tenants, their
// memberships and invite codes.
//
// Role rules: OWNER and ADMIN manage membership; only OWNER may delete the
// tenant, grant ADMIN, or touch another OWNER/ADMIN row. A tenant always
// keeps at least one OWNER; removing or demoting the last one is rejected.
package tenant

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

const inviteCodeBytes = 16

type Service struct {
	store     Store
	inviteTTL time.Duration
}

func NewService(store Store, inviteTTL time.Duration) *Service {
	return &Service{store: store, inviteTTL: inviteTTL}
}

// CreateTenant creates a tenant with the caller as its OWNER.
func (s *Service) CreateTenant(ctx context.Context, name string, accountID uuid.UUID) (*models.Tenant, error) {
	t := &models.Tenant{ID: uuid.New(), Name: name}
	if err := s.store.CreateTenantWithOwner(ctx, t, accountID); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return t, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if t == nil {
		return nil, apperr.ErrTenantNotFound.WithData(map[string]any{"tenant_id": tenantID.String()})
	}
	return t, nil
}

// UpdateTenant renames the tenant. Requires OWNER or ADMIN.
func (s *Service) UpdateTenant(ctx context.Context, tenantID, accountID uuid.UUID, name string) (*models.Tenant, error) {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManage() {
		return nil, apperr.ErrPermissionDenied
	}

	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTenantName(ctx, tenantID, name); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return s.GetTenant(ctx, tenantID)
}

// DeleteTenant removes the tenant and everything under it. OWNER only.
func (s *Service) DeleteTenant(ctx context.Context, tenantID, accountID uuid.UUID) error {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return err
	}
	if caller.Role != models.RoleOwner {
		return apperr.ErrPermissionDenied
	}

	if _, err := s.GetTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := s.store.DeleteTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	return nil
}

// Membership resolves the caller's membership row in the tenant.
func (s *Service) Membership(ctx context.Context, tenantID, accountID uuid.UUID) (*models.User, error) {
	u, err := s.store.GetMembership(ctx, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if u == nil {
		return nil, apperr.ErrUserNotInTenant.WithData(map[string]any{"tenant_id": tenantID.String()})
	}
	return u, nil
}

// ListMembers lists the tenant's membership rows. Any member may view.
func (s *Service) ListMembers(ctx context.Context, tenantID, accountID uuid.UUID) ([]models.User, error) {
	if _, err := s.Membership(ctx, tenantID, accountID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// GenerateInvite mints a redeemable invite code granting the given role.
// OWNER/ADMIN may invite; only OWNER may mint an invite granting ADMIN or
// OWNER.
func (s *Service) GenerateInvite(ctx context.Context, tenantID, accountID uuid.UUID, role models.TenantUserRole) (*models.TenantInvite, error) {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManage() {
		return nil, apperr.ErrPermissionDenied
	}
	if !role.Valid() {
		return nil, apperr.ErrInvalidArgument.WithData(map[string]any{"role": string(role)})
	}
	if (role == models.RoleAdmin || role == models.RoleOwner) && caller.Role != models.RoleOwner {
		return nil, apperr.ErrPermissionDenied
	}

	code, err := s.newInviteCode(ctx)
	if err != nil {
		return nil, err
	}

	invite := &models.TenantInvite{
		ID:        uuid.New(),
		Code:      code,
		TenantID:  tenantID,
		Role:      role,
		CreatedBy: caller.ID,
		Status:    models.InviteStatusPending,
		ExpiresAt: time.Now().Add(s.inviteTTL),
	}
	if err := s.store.CreateInvite(ctx, invite); err != nil {
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return invite, nil
}

// ListInvites lists the tenant's invites. OWNER/ADMIN only.
func (s *Service) ListInvites(ctx context.Context, tenantID, accountID uuid.UUID) ([]models.TenantInvite, error) {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManage() {
		return nil, apperr.ErrPermissionDenied
	}
	invites, err := s.store.ListInvites(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}

// AddUser adds an existing account to the tenant by email. OWNER/ADMIN may
// add; only OWNER may grant ADMIN or OWNER.
func (s *Service) AddUser(ctx context.Context, tenantID, accountID uuid.UUID, newEmail string, role models.TenantUserRole) (*models.User, error) {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManage() {
		return nil, apperr.ErrPermissionDenied
	}
	if !role.Valid() {
		return nil, apperr.ErrInvalidArgument.WithData(map[string]any{"role": string(role)})
	}
	if (role == models.RoleAdmin || role == models.RoleOwner) && caller.Role != models.RoleOwner {
		return nil, apperr.ErrPermissionDenied
	}

	acct, err := s.store.FindAccountByEmail(ctx, newEmail)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return nil, apperr.ErrEmailNotRegistered.WithData(map[string]any{"email": newEmail})
	}

	existing, err := s.store.GetMembership(ctx, tenantID, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if existing != nil {
		return nil, apperr.ErrUserAlreadyInTenant.WithData(map[string]any{"email": newEmail})
	}

	user := &models.User{
		ID:        uuid.New(),
		AccountID: acct.ID,
		TenantID:  tenantID,
		Role:      role,
	}
	if err := s.store.CreateMembership(ctx, user); err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}
	return user, nil
}

// UpdateUserRole changes a member's role. ADMIN callers may neither touch
// OWNER/ADMIN rows nor assign OWNER/ADMIN. Demoting the last OWNER is
// rejected.
func (s *Service) UpdateUserRole(ctx context.Context, tenantID, accountID, targetUserID uuid.UUID, newRole models.TenantUserRole) (*models.User, error) {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.CanManage() {
		return nil, apperr.ErrPermissionDenied
	}
	if !newRole.Valid() {
		return nil, apperr.ErrInvalidArgument.WithData(map[string]any{"role": string(newRole)})
	}

	target, err := s.targetMembership(ctx, tenantID, targetUserID)
	if err != nil {
		return nil, err
	}

	if caller.Role == models.RoleAdmin {
		if target.Role == models.RoleOwner || target.Role == models.RoleAdmin ||
			newRole == models.RoleOwner || newRole == models.RoleAdmin {
			return nil, apperr.ErrPermissionDenied
		}
	}

	if target.Role == models.RoleOwner && newRole != models.RoleOwner {
		if err := s.ensureNotLastOwner(ctx, tenantID); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateMembershipRole(ctx, target.ID, newRole); err != nil {
		return nil, fmt.Errorf("update membership role: %w", err)
	}
	target.Role = newRole
	return target, nil
}

// RemoveUser deletes a membership row. ADMIN callers cannot remove
// OWNER/ADMIN rows. Removing the last OWNER is rejected.
func (s *Service) RemoveUser(ctx context.Context, tenantID, accountID, targetUserID uuid.UUID) error {
	caller, err := s.Membership(ctx, tenantID, accountID)
	if err != nil {
		return err
	}
	if !caller.Role.CanManage() {
		return apperr.ErrPermissionDenied
	}

	target, err := s.targetMembership(ctx, tenantID, targetUserID)
	if err != nil {
		return err
	}

	if caller.Role == models.RoleAdmin && (target.Role == models.RoleOwner || target.Role == models.RoleAdmin) {
		return apperr.ErrPermissionDenied
	}

	if target.Role == models.RoleOwner {
		if err := s.ensureNotLastOwner(ctx, tenantID); err != nil {
			return err
		}
	}

	if err := s.store.DeleteMembership(ctx, target.ID); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *Service) targetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	target, err := s.store.GetMembershipByID(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("get target membership: %w", err)
	}
	if target == nil {
		return nil, apperr.ErrUserNotInTenant.WithData(map[string]any{"user_id": userID.String()})
	}
	return target, nil
}

// ensureNotLastOwner counts OWNER rows at the moment of the operation.
func (s *Service) ensureNotLastOwner(ctx context.Context, tenantID uuid.UUID) error {
	owners, err := s.store.CountOwners(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if owners <= 1 {
		return apperr.ErrCannotRemoveLastOwner
	}
	return nil
}

// newInviteCode generates a URL-safe high-entropy code, retrying on the
// unlikely collision.
func (s *Service) newInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		raw := make([]byte, inviteCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		code := base64.RawURLEncoding.EncodeToString(raw)

		exists, err := s.store.InviteCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check invite code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate invite code: exhausted attempts")
}
