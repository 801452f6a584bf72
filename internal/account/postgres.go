package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/tenantauth/internal/models"
)

const accountColumns = `id, name, email, password_hash, status, language, last_login_at, last_login_ip, last_login_tenant_id, created_at`

// PostgresStore is the pgx-backed Store implementation.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Status, &a.Language,
		&a.LastLoginAt, &a.LastLoginIP, &a.LastLoginTenantID, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (s *PostgresStore) FindByEmailOrName(ctx context.Context, email, name string) (*models.Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1 OR name = $2 LIMIT 1`, email, name))
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (id, name, email, password_hash, status, language, last_login_ip, last_login_tenant_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Name, a.Email, a.PasswordHash, a.Status, a.Language, a.LastLoginIP, a.LastLoginTenantID,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAccountWithInvite(ctx context.Context, a *models.Account, invite *models.TenantInvite) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO accounts (id, name, email, password_hash, status, language, last_login_ip, last_login_tenant_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.Name, a.Email, a.PasswordHash, a.Status, a.Language, a.LastLoginIP, a.LastLoginTenantID,
		); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return redeemInviteTx(ctx, tx, a.ID, invite)
	})
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE accounts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := s.db.Exec(ctx, `UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordLogin(ctx context.Context, id uuid.UUID, info LoginInfo) error {
	_, err := s.db.Exec(ctx,
		`UPDATE accounts
		 SET last_login_at = $2, last_login_ip = $3, last_login_tenant_id = $4, language = $5
		 WHERE id = $1`,
		id, info.At, info.IP, info.TenantID, info.Language,
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, update ProfileUpdate) error {
	_, err := s.db.Exec(ctx,
		`UPDATE accounts
		 SET name = COALESCE($2, name), language = COALESCE($3, language)
		 WHERE id = $1`,
		id, update.Name, update.Language,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindInviteByCode(ctx context.Context, code string) (*models.TenantInvite, error) {
	var inv models.TenantInvite
	err := s.db.QueryRow(ctx,
		`SELECT id, code, tenant_id, role, created_by, status, expires_at, used_at, created_at
		 FROM tenant_invites WHERE code = $1`, code,
	).Scan(&inv.ID, &inv.Code, &inv.TenantID, &inv.Role, &inv.CreatedBy, &inv.Status, &inv.ExpiresAt, &inv.UsedAt, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invite: %w", err)
	}
	return &inv, nil
}

func (s *PostgresStore) RedeemInvite(ctx context.Context, accountID uuid.UUID, invite *models.TenantInvite) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return redeemInviteTx(ctx, tx, accountID, invite)
	})
}

func (s *PostgresStore) MembershipsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, account_id, tenant_id, role, invite_code, created_at
		 FROM users WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
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

func (s *PostgresStore) TenantsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Tenant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.name, t.created_at
		 FROM tenants t JOIN users u ON u.tenant_id = t.id
		 WHERE u.account_id = $1 ORDER BY u.created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query account tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *PostgresStore) FindOAuthProvider(ctx context.Context, providerName, providerID string) (*models.OAuthProvider, error) {
	var p models.OAuthProvider
	err := s.db.QueryRow(ctx,
		`SELECT id, provider_name, provider_id, access_token, refresh_token, profile_data, account_id, created_at
		 FROM oauth_providers WHERE provider_name = $1 AND provider_id = $2`,
		providerName, providerID,
	).Scan(&p.ID, &p.ProviderName, &p.ProviderID, &p.AccessToken, &p.RefreshToken, &p.ProfileData, &p.AccountID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find oauth provider: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) CreateOAuthProvider(ctx context.Context, p *models.OAuthProvider) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_providers (id, provider_name, provider_id, access_token, refresh_token, profile_data, account_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ProviderName, p.ProviderID, p.AccessToken, p.RefreshToken, p.ProfileData, p.AccountID,
	)
	if err != nil {
		return fmt.Errorf("insert oauth provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOAuthProvider(ctx context.Context, p *models.OAuthProvider) error {
	_, err := s.db.Exec(ctx,
		`UPDATE oauth_providers SET access_token = $2, refresh_token = $3, profile_data = $4 WHERE id = $1`,
		p.ID, p.AccessToken, p.RefreshToken, p.ProfileData,
	)
	if err != nil {
		return fmt.Errorf("update oauth provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// redeemInviteTx creates the membership row with the invite's role and flips
// the invite to USED within the caller's transaction.
func redeemInviteTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, invite *models.TenantInvite) error {
	role := invite.Role
	if role == "" {
		role = models.RoleMember
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO users (id, account_id, tenant_id, role, invite_code)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), accountID, invite.TenantID, role, invite.Code,
	); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tenant_invites SET status = $2, used_at = $3 WHERE id = $1`,
		invite.ID, models.InviteStatusUsed, time.Now(),
	); err != nil {
		return fmt.Errorf("mark invite used: %w", err)
	}
	return nil
}
