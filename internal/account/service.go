// Package account implements the account lifecycle: signup, verification,
// login, password reset and OAuth linking. Accounts move PENDING -> ACTIVE
// through verification-code-gated transitions; INACTIVE and DISABLED are
// administrative states no flow here transitions into.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/password"
	"github.com/nikhilbhutani/tenantauth/internal/ratelimit"
	"github.com/nikhilbhutani/tenantauth/internal/token"
	"github.com/nikhilbhutani/tenantauth/internal/verification"
)

// Mailer enqueues a verification email for asynchronous delivery.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, purpose verification.Purpose, language, to, code string) error
}

// RequestMeta carries per-request facts the flows record on the account.
type RequestMeta struct {
	IP       string
	Language string
	// TenantID is the explicitly requested tenant (X-Tenant-ID), if any.
	TenantID *uuid.UUID
}

// Session is the result of a completed login.
type Session struct {
	AccessToken  string
	RefreshToken string
	TenantID     uuid.UUID
}

type SignupRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Language   string `json:"language"`
	InviteCode string `json:"invite_code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type VerifyRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type OAuthLoginRequest struct {
	Provider       string          `json:"provider"`
	ProviderUserID string          `json:"provider_user_id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Language       string          `json:"language"`
	AccessToken    string          `json:"access_token"`
	RefreshToken   string          `json:"refresh_token"`
	ProfileData    json.RawMessage `json:"profile_data"`
	InviteCode     string          `json:"invite_code"`
}

type UpdateRequest struct {
	Name     *string `json:"name"`
	Language *string `json:"language"`
}

type Service struct {
	store  Store
	hasher *password.Hasher
	issuer *token.Issuer
	codes  *verification.Store
	mailer Mailer
	limits map[verification.Purpose]*ratelimit.Limiter
}

func NewService(
	store Store,
	hasher *password.Hasher,
	issuer *token.Issuer,
	codes *verification.Store,
	mailer Mailer,
	limits map[verification.Purpose]*ratelimit.Limiter,
) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		issuer: issuer,
		codes:  codes,
		mailer: mailer,
		limits: limits,
	}
}

// Signup registers a new PENDING account. With an invite code, the
// membership row is created and the invite consumed in the same unit of
// work. Concludes by sending a signup verification email; the returned
// token round-trips through the client to the verify call.
func (s *Service) Signup(ctx context.Context, req SignupRequest, meta RequestMeta) (string, error) {
	existing, err := s.store.FindByEmailOrName(ctx, req.Email, req.Name)
	if err != nil {
		return "", fmt.Errorf("check existing account: %w", err)
	}
	if existing != nil {
		if existing.Email == req.Email {
			return "", apperr.ErrEmailAlreadyRegistered.WithData(map[string]any{"email": req.Email})
		}
		return "", apperr.ErrNameAlreadyRegistered.WithData(map[string]any{"name": req.Name})
	}

	var invite *models.TenantInvite
	if req.InviteCode != "" {
		invite, err = s.resolveInvite(ctx, req.InviteCode)
		if err != nil {
			return "", err
		}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", err
	}

	language := req.Language
	if language == "" {
		language = meta.Language
	}
	if language == "" {
		language = "en"
	}

	acct := &models.Account{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: &hash,
		Status:       models.AccountStatusPending,
		Language:     language,
		LastLoginIP:  meta.IP,
	}
	if invite != nil {
		acct.LastLoginTenantID = &invite.TenantID
	}

	if invite != nil {
		err = s.store.CreateAccountWithInvite(ctx, acct, invite)
	} else {
		err = s.store.CreateAccount(ctx, acct)
	}
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}

	slog.Info("account created", "email", acct.Email, "invited", invite != nil)
	return s.sendVerification(ctx, verification.PurposeSignupEmail, acct)
}

// VerifySignup consumes a signup verification token. A missing or expired
// token and a wrong code are distinct failures. On success the account
// becomes ACTIVE and a session is minted.
func (s *Service) VerifySignup(ctx context.Context, req VerifyRequest, meta RequestMeta) (*Session, error) {
	return s.verifyAndActivate(ctx, verification.PurposeSignupEmail, req, meta)
}

// ActivateRequest sends an activation verification email to an existing
// non-active account.
func (s *Service) ActivateRequest(ctx context.Context, email string, meta RequestMeta) (string, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return "", apperr.ErrEmailNotRegistered.WithData(map[string]any{"email": email})
	}
	if acct.Status == models.AccountStatusActive {
		return "", apperr.ErrAccountAlreadyActive.WithData(map[string]any{"email": email})
	}
	return s.sendVerification(ctx, verification.PurposeActivateAccount, acct)
}

// ActivateVerify consumes an activation token, mirrors VerifySignup.
func (s *Service) ActivateVerify(ctx context.Context, req VerifyRequest, meta RequestMeta) (*Session, error) {
	return s.verifyAndActivate(ctx, verification.PurposeActivateAccount, req, meta)
}

// Login authenticates by email and password. Unknown email and wrong
// password produce the same error so the response does not reveal which
// accounts exist.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta RequestMeta) (*Session, error) {
	acct, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	if acct == nil || acct.PasswordHash == nil {
		slog.Warn("login rejected", "email", req.Email)
		return nil, apperr.ErrInvalidEmailPassword
	}
	ok, err := s.hasher.Verify(req.Password, *acct.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("login rejected", "email", req.Email)
		return nil, apperr.ErrInvalidEmailPassword
	}

	if acct.Status != models.AccountStatusActive {
		return nil, apperr.ErrAccountNotActive
	}

	session, err := s.completeLogin(ctx, acct, meta)
	if err != nil {
		return nil, err
	}
	slog.Info("login succeeded", "email", req.Email)
	return session, nil
}

// OAuthLogin links or creates an account from an external identity and logs
// it in. New OAuth-only accounts are created ACTIVE with no password hash.
// Tenant selection is the same completeLogin path password login uses.
func (s *Service) OAuthLogin(ctx context.Context, req OAuthLoginRequest, meta RequestMeta) (*Session, error) {
	provider, err := s.store.FindOAuthProvider(ctx, req.Provider, req.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("find oauth provider: %w", err)
	}

	var invite *models.TenantInvite
	if req.InviteCode != "" {
		invite, err = s.resolveInvite(ctx, req.InviteCode)
		if err != nil {
			return nil, err
		}
	}

	var acct *models.Account
	if provider != nil {
		provider.AccessToken = req.AccessToken
		provider.RefreshToken = req.RefreshToken
		provider.ProfileData = req.ProfileData
		if err := s.store.UpdateOAuthProvider(ctx, provider); err != nil {
			return nil, fmt.Errorf("update oauth provider: %w", err)
		}

		acct, err = s.store.FindByID(ctx, provider.AccountID)
		if err != nil {
			return nil, fmt.Errorf("find linked account: %w", err)
		}
		if acct == nil {
			return nil, apperr.ErrAccountNotFound
		}

		if invite != nil {
			if err := s.redeemInviteIfNotMember(ctx, acct.ID, invite); err != nil {
				return nil, err
			}
		}
	} else {
		acct, err = s.store.FindByEmail(ctx, req.Email)
		if err != nil {
			return nil, fmt.Errorf("find account: %w", err)
		}

		if acct == nil {
			language := req.Language
			if language == "" {
				language = "en"
			}
			acct = &models.Account{
				ID:          uuid.New(),
				Name:        req.Name,
				Email:       req.Email,
				Status:      models.AccountStatusActive,
				Language:    language,
				LastLoginIP: meta.IP,
			}
			if invite != nil {
				acct.LastLoginTenantID = &invite.TenantID
				err = s.store.CreateAccountWithInvite(ctx, acct, invite)
			} else {
				err = s.store.CreateAccount(ctx, acct)
			}
			if err != nil {
				return nil, fmt.Errorf("create oauth account: %w", err)
			}
		} else if invite != nil {
			if err := s.redeemInviteIfNotMember(ctx, acct.ID, invite); err != nil {
				return nil, err
			}
		}

		if err := s.store.CreateOAuthProvider(ctx, &models.OAuthProvider{
			ID:           uuid.New(),
			ProviderName: req.Provider,
			ProviderID:   req.ProviderUserID,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			ProfileData:  req.ProfileData,
			AccountID:    acct.ID,
		}); err != nil {
			return nil, fmt.Errorf("create oauth provider: %w", err)
		}
	}

	session, err := s.completeLogin(ctx, acct, meta)
	if err != nil {
		return nil, err
	}
	slog.Info("oauth login succeeded", "provider", req.Provider, "email", acct.Email)
	return session, nil
}

// ForgotPassword sends a password-reset verification email.
func (s *Service) ForgotPassword(ctx context.Context, email string, meta RequestMeta) (string, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return "", apperr.ErrEmailNotRegistered.WithData(map[string]any{"email": email})
	}
	return s.sendVerification(ctx, verification.PurposeResetPassword, acct)
}

// ResetPassword sets a new password after code verification and invalidates
// the account's refresh token so every session must log in again.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	data, err := s.codes.GetData(ctx, verification.PurposeResetPassword, req.Token)
	if err != nil {
		return err
	}
	if data == nil {
		return apperr.ErrVerificationCodeExpired
	}
	if !verification.CodeMatches(req.Code, data.Code) {
		return apperr.ErrInvalidVerificationCode.WithData(map[string]any{"email": data.Email})
	}

	acct, err := s.store.FindByEmail(ctx, data.Email)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return apperr.ErrEmailNotRegistered.WithData(map[string]any{"email": data.Email})
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.issuer.Invalidate(ctx, acct.ID); err != nil {
		return err
	}
	slog.Info("password reset", "email", data.Email)

	// Cleanup after the committed state change; a failure here only leaves a
	// token that expires by TTL and can no longer be replayed usefully.
	if err := s.codes.Revoke(ctx, verification.PurposeResetPassword, data.Email); err != nil {
		slog.Warn("reset token revoke failed", "email", data.Email, "error", err)
	}
	return nil
}

// ResendVerification re-sends the verification email for the given purpose.
func (s *Service) ResendVerification(ctx context.Context, email string, purpose verification.Purpose, meta RequestMeta) (string, error) {
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return "", apperr.ErrEmailNotRegistered.WithData(map[string]any{"email": email})
	}

	switch purpose {
	case verification.PurposeSignupEmail, verification.PurposeActivateAccount, verification.PurposeResetPassword:
		return s.sendVerification(ctx, purpose, acct)
	default:
		return "", apperr.ErrInvalidArgument.WithData(map[string]any{"purpose": string(purpose)})
	}
}

// Logout drops the account's refresh token. The current access token stays
// valid until it expires.
func (s *Service) Logout(ctx context.Context, accountID uuid.UUID) error {
	return s.issuer.Invalidate(ctx, accountID)
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return nil, apperr.ErrAccountNotFound
	}
	return acct, nil
}

// UpdateAccount applies an explicit partial update; only listed fields can
// change.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateRequest) (*models.Account, error) {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProfile(ctx, id, ProfileUpdate{Name: req.Name, Language: req.Language}); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return s.GetAccount(ctx, id)
}

// Tenants lists the tenants the account belongs to.
func (s *Service) Tenants(ctx context.Context, accountID uuid.UUID) ([]models.Tenant, error) {
	tenants, err := s.store.TenantsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account tenants: %w", err)
	}
	return tenants, nil
}

func (s *Service) resolveInvite(ctx context.Context, code string) (*models.TenantInvite, error) {
	invite, err := s.store.FindInviteByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("find invite: %w", err)
	}
	if invite == nil || !invite.Redeemable(time.Now()) {
		return nil, apperr.ErrInvalidInviteCode.WithData(map[string]any{"invite_code": code})
	}
	return invite, nil
}

func (s *Service) redeemInviteIfNotMember(ctx context.Context, accountID uuid.UUID, invite *models.TenantInvite) error {
	memberships, err := s.store.MembershipsByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list memberships: %w", err)
	}
	for _, m := range memberships {
		if m.TenantID == invite.TenantID {
			return nil
		}
	}
	if err := s.store.RedeemInvite(ctx, accountID, invite); err != nil {
		return fmt.Errorf("redeem invite: %w", err)
	}
	return nil
}

// sendVerification is the shared send step: cooldown check, code and token
// generation, email enqueue, attempt record. The enqueue is fire-and-forget;
// its failure is logged but does not fail the operation.
func (s *Service) sendVerification(ctx context.Context, purpose verification.Purpose, acct *models.Account) (string, error) {
	limiter := s.limits[purpose]
	if limiter != nil {
		exceeded, err := limiter.Exceeded(ctx, acct.Email)
		if err != nil {
			return "", err
		}
		if exceeded {
			return "", apperr.ErrVerificationTooFrequent.WithData(map[string]any{"email": acct.Email})
		}
	}

	code, err := verification.NewCode()
	if err != nil {
		return "", err
	}

	tok, err := s.codes.Generate(ctx, purpose, acct.Email, code, nil)
	if err != nil {
		return "", err
	}

	language := acct.Language
	if language == "" {
		language = "en"
	}
	if err := s.mailer.SendVerificationEmail(ctx, purpose, language, acct.Email, code); err != nil {
		slog.Error("verification email enqueue failed", "purpose", purpose, "email", acct.Email, "error", err)
	}

	if limiter != nil {
		if err := limiter.Record(ctx, acct.Email); err != nil {
			return "", err
		}
	}
	return tok, nil
}

// verifyAndActivate is the shared verify step for signup and activation:
// token lookup, code comparison, PENDING -> ACTIVE transition, session mint,
// then token revoke as idempotent cleanup.
func (s *Service) verifyAndActivate(ctx context.Context, purpose verification.Purpose, req VerifyRequest, meta RequestMeta) (*Session, error) {
	data, err := s.codes.GetData(ctx, purpose, req.Token)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, apperr.ErrVerificationCodeExpired
	}
	if !verification.CodeMatches(req.Code, data.Code) {
		return nil, apperr.ErrInvalidVerificationCode.WithData(map[string]any{"email": data.Email})
	}

	acct, err := s.store.FindByEmail(ctx, data.Email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return nil, apperr.ErrEmailNotRegistered.WithData(map[string]any{"email": data.Email})
	}

	if err := s.store.UpdateStatus(ctx, acct.ID, models.AccountStatusActive); err != nil {
		return nil, fmt.Errorf("activate account: %w", err)
	}
	acct.Status = models.AccountStatusActive

	session, err := s.completeLogin(ctx, acct, meta)
	if err != nil {
		return nil, err
	}

	if err := s.codes.Revoke(ctx, purpose, data.Email); err != nil {
		slog.Warn("verification token revoke failed", "purpose", purpose, "email", data.Email, "error", err)
	}
	return session, nil
}

// completeLogin selects the session tenant, records the login on the
// account and mints the token pair. Tenant precedence: explicitly requested
// tenant (must be a membership), then the last login tenant if still a
// member, then the earliest-created membership.
func (s *Service) completeLogin(ctx context.Context, acct *models.Account, meta RequestMeta) (*Session, error) {
	memberships, err := s.store.MembershipsByAccount(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if len(memberships) == 0 {
		return nil, apperr.ErrNoTenantAssociated
	}

	isMember := func(tenantID uuid.UUID) bool {
		for _, m := range memberships {
			if m.TenantID == tenantID {
				return true
			}
		}
		return false
	}

	var tenantID uuid.UUID
	switch {
	case meta.TenantID != nil:
		if !isMember(*meta.TenantID) {
			return nil, apperr.ErrInvalidTenant
		}
		tenantID = *meta.TenantID
	case acct.LastLoginTenantID != nil && isMember(*acct.LastLoginTenantID):
		tenantID = *acct.LastLoginTenantID
	default:
		tenantID = memberships[0].TenantID
	}

	language := meta.Language
	if language == "" {
		language = acct.Language
	}
	if err := s.store.RecordLogin(ctx, acct.ID, LoginInfo{
		At:       time.Now(),
		IP:       meta.IP,
		TenantID: tenantID,
		Language: language,
	}); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	access, refresh, err := s.issuer.CreateTokenPair(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	return &Session{AccessToken: access, RefreshToken: refresh, TenantID: tenantID}, nil
}
