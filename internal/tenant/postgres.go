package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateTenantWithOwner(ctx context.Context, t *models.Tenant, accountID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2)`, t.ID, t.Name,
	); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, account_id, tenant_id, role) VALUES ($1, $2, $3, $4)`,
		uuid.New(), accountID, t.ID, models.RoleOwner,
	); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTenantName(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.db.Exec(ctx, `UPDATE tenants SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("update tenant name: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	// Memberships and invites go with the tenant via ON DELETE CASCADE.
	_, err := s.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.AccountID, &u.TenantID, &u.Role, &u.InviteCode, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetMembership(ctx context.Context, tenantID, accountID uuid.UUID) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT id, account_id, tenant_id, role, invite_code, created_at
		 FROM users WHERE tenant_id = $1 AND account_id = $2`, tenantID, accountID))
}

func (s *PostgresStore) GetMembershipByID(ctx context.Context, tenantID, userID uuid.UUID) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx,
		`SELECT id, account_id, tenant_id, role, invite_code, created_at
		 FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, userID))
}

func (s *PostgresStore) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, tenant_id, role, invite_code, created_at
		 FROM users WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.AccountID, &u.TenantID, &u.Role, &u.InviteCode, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) CountOwners(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role = $2`,
		tenantID, models.RoleOwner,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateMembership(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, account_id, tenant_id, role, invite_code) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.AccountID, u.TenantID, u.Role, u.InviteCode,
	)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMembershipRole(ctx context.Context, userID uuid.UUID, role models.TenantUserRole) error {
	_, err := s.db.Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, userID, role)
	if err != nil {
		return fmt.Errorf("update membership role: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMembership(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, password_hash, status, language, last_login_at, last_login_ip, last_login_tenant_id, created_at
		 FROM accounts WHERE email = $1`, email,
	).Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Status, &a.Language,
		&a.LastLoginAt, &a.LastLoginIP, &a.LastLoginTenantID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateInvite(ctx context.Context, inv *models.TenantInvite) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_invites (id, code, tenant_id, role, created_by, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.Code, inv.TenantID, inv.Role, inv.CreatedBy, inv.Status, inv.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenant_invites WHERE code = $1)`, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListInvites(ctx context.Context, tenantID uuid.UUID) ([]models.TenantInvite, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, code, tenant_id, role, created_by, status, expires_at, used_at, created_at
		 FROM tenant_invites WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query invites: %w", err)
	}
	defer rows.Close()

	var invites []models.TenantInvite
	for rows.Next() {
		var inv models.TenantInvite
		if err := rows.Scan(&inv.ID, &inv.Code, &inv.TenantID, &inv.Role, &inv.CreatedBy, &inv.Status, &inv.ExpiresAt, &inv.UsedAt, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}
