package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/password"
	"github.com/nikhilbhutani/tenantauth/internal/ratelimit"
	"github.com/nikhilbhutani/tenantauth/internal/token"
	"github.com/nikhilbhutani/tenantauth/internal/verification"
)

// memStore is an in-memory Store for exercising the service flows.
type memStore struct {
	accounts    map[uuid.UUID]*models.Account
	memberships []models.User
	tenants     map[uuid.UUID]*models.Tenant
	invites     map[string]*models.TenantInvite
	oauth       []*models.OAuthProvider
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[uuid.UUID]*models.Account{},
		tenants:  map[uuid.UUID]*models.Tenant{},
		invites:  map[string]*models.TenantInvite{},
	}
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByEmailOrName(_ context.Context, email, name string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.Email == email || a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateAccount(_ context.Context, account *models.Account) error {
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *memStore) CreateAccountWithInvite(ctx context.Context, account *models.Account, invite *models.TenantInvite) error {
	if err := m.CreateAccount(ctx, account); err != nil {
		return err
	}
	return m.RedeemInvite(ctx, account.ID, invite)
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.AccountStatus) error {
	a, ok := m.accounts[id]
	if !ok {
		return errors.New("account not found")
	}
	a.Status = status
	return nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	a, ok := m.accounts[id]
	if !ok {
		return errors.New("account not found")
	}
	a.PasswordHash = &hash
	return nil
}

func (m *memStore) RecordLogin(_ context.Context, id uuid.UUID, info LoginInfo) error {
	a, ok := m.accounts[id]
	if !ok {
		return errors.New("account not found")
	}
	at := info.At
	a.LastLoginAt = &at
	a.LastLoginIP = info.IP
	tid := info.TenantID
	a.LastLoginTenantID = &tid
	if info.Language != "" {
		a.Language = info.Language
	}
	return nil
}

func (m *memStore) UpdateProfile(_ context.Context, id uuid.UUID, update ProfileUpdate) error {
	a, ok := m.accounts[id]
	if !ok {
		return errors.New("account not found")
	}
	if update.Name != nil {
		a.Name = *update.Name
	}
	if update.Language != nil {
		a.Language = *update.Language
	}
	return nil
}

func (m *memStore) FindInviteByCode(_ context.Context, code string) (*models.TenantInvite, error) {
	if inv, ok := m.invites[code]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) RedeemInvite(_ context.Context, accountID uuid.UUID, invite *models.TenantInvite) error {
	code := invite.Code
	m.memberships = append(m.memberships, models.User{
		ID:         uuid.New(),
		AccountID:  accountID,
		TenantID:   invite.TenantID,
		Role:       invite.Role,
		InviteCode: &code,
		CreatedAt:  time.Now(),
	})
	if stored, ok := m.invites[invite.Code]; ok {
		now := time.Now()
		stored.Status = models.InviteStatusUsed
		stored.UsedAt = &now
	}
	return nil
}

func (m *memStore) MembershipsByAccount(_ context.Context, accountID uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, u := range m.memberships {
		if u.AccountID == accountID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) TenantsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Tenant, error) {
	memberships, _ := m.MembershipsByAccount(ctx, accountID)
	var out []models.Tenant
	for _, u := range memberships {
		if t, ok := m.tenants[u.TenantID]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memStore) FindOAuthProvider(_ context.Context, providerName, providerID string) (*models.OAuthProvider, error) {
	for _, p := range m.oauth {
		if p.ProviderName == providerName && p.ProviderID == providerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateOAuthProvider(_ context.Context, provider *models.OAuthProvider) error {
	cp := *provider
	m.oauth = append(m.oauth, &cp)
	return nil
}

func (m *memStore) UpdateOAuthProvider(_ context.Context, provider *models.OAuthProvider) error {
	for i, p := range m.oauth {
		if p.ID == provider.ID {
			cp := *provider
			m.oauth[i] = &cp
			return nil
		}
	}
	return errors.New("oauth provider not found")
}

// memMailer records enqueued verification emails.
type memMailer struct {
	sent []sentMail
}

type sentMail struct {
	purpose verification.Purpose
	to      string
	code    string
}

func (m *memMailer) SendVerificationEmail(_ context.Context, purpose verification.Purpose, _, to, code string) error {
	m.sent = append(m.sent, sentMail{purpose: purpose, to: to, code: code})
	return nil
}

type testEnv struct {
	mr     *miniredis.Miniredis
	store  *memStore
	mailer *memMailer
	issuer *token.Issuer
	codes  *verification.Store
	svc    *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := newMemStore()
	mailer := &memMailer{}
	issuer := token.NewIssuer("test-secret", rdb, 30*time.Minute, 7*24*time.Hour)
	codes := verification.New(rdb, nil)

	limits := map[verification.Purpose]*ratelimit.Limiter{}
	for _, p := range []verification.Purpose{
		verification.PurposeSignupEmail,
		verification.PurposeActivateAccount,
		verification.PurposeResetPassword,
	} {
		limits[p] = ratelimit.New(rdb, "verify_send:"+string(p), 1, time.Minute)
	}

	svc := NewService(store, password.NewHasher(), issuer, codes, mailer, limits)
	return &testEnv{mr: mr, store: store, mailer: mailer, issuer: issuer, codes: codes, svc: svc}
}

// addTenant seeds a tenant and a membership for the account.
func (e *testEnv) addTenant(accountID uuid.UUID, role models.TenantUserRole) uuid.UUID {
	tenantID := uuid.New()
	e.store.tenants[tenantID] = &models.Tenant{ID: tenantID, Name: "t", CreatedAt: time.Now()}
	e.store.memberships = append(e.store.memberships, models.User{
		ID:        uuid.New(),
		AccountID: accountID,
		TenantID:  tenantID,
		Role:      role,
		CreatedAt: time.Now(),
	})
	return tenantID
}

func (e *testEnv) signupVerified(t *testing.T, name, email, pass string) *models.Account {
	t.Helper()
	ctx := context.Background()

	tok, err := e.svc.Signup(ctx, SignupRequest{Name: name, Email: email, Password: pass}, RequestMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	acct, err := e.store.FindByEmail(ctx, email)
	if err != nil || acct == nil {
		t.Fatalf("account missing after signup: %v", err)
	}
	e.addTenant(acct.ID, models.RoleOwner)

	code := e.mailer.sent[len(e.mailer.sent)-1].code
	if _, err := e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{}); err != nil {
		t.Fatalf("VerifySignup failed: %v", err)
	}

	acct, _ = e.store.FindByEmail(ctx, email)
	return acct
}

func TestSignupCreatesPendingAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tok, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{IP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if tok == "" {
		t.Fatal("expected verification token")
	}

	acct, _ := e.store.FindByEmail(ctx, "alice@example.com")
	if acct == nil {
		t.Fatal("account not created")
	}
	if acct.Status != models.AccountStatusPending {
		t.Fatalf("expected pending status, got %s", acct.Status)
	}
	if acct.PasswordHash == nil || *acct.PasswordHash == "pw123456" {
		t.Fatal("password must be stored hashed")
	}

	if len(e.mailer.sent) != 1 || e.mailer.sent[0].purpose != verification.PurposeSignupEmail {
		t.Fatalf("expected one signup email, got %+v", e.mailer.sent)
	}
}

func TestSignupDuplicateEmailAndName(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	_, err := e.svc.Signup(ctx, SignupRequest{Name: "other", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrEmailAlreadyRegistered) {
		t.Fatalf("expected ErrEmailAlreadyRegistered, got %v", err)
	}

	_, err = e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "other@example.com", Password: "pw123456"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrNameAlreadyRegistered) {
		t.Fatalf("expected ErrNameAlreadyRegistered, got %v", err)
	}
}

func TestSignupWithInvite(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tenantID := uuid.New()
	e.store.tenants[tenantID] = &models.Tenant{ID: tenantID, Name: "acme"}
	e.store.invites["INV1"] = &models.TenantInvite{
		ID:        uuid.New(),
		Code:      "INV1",
		TenantID:  tenantID,
		Role:      models.RoleMember,
		Status:    models.InviteStatusPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	tok, err := e.svc.Signup(ctx, SignupRequest{Name: "bob", Email: "bob@example.com", Password: "pw123456", InviteCode: "INV1"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	acct, _ := e.store.FindByEmail(ctx, "bob@example.com")
	memberships, _ := e.store.MembershipsByAccount(ctx, acct.ID)
	if len(memberships) != 1 || memberships[0].TenantID != tenantID {
		t.Fatalf("expected membership in invite tenant, got %+v", memberships)
	}
	if e.store.invites["INV1"].Status != models.InviteStatusUsed {
		t.Fatal("invite should be marked used")
	}

	// The invited tenant becomes the session tenant on verification.
	code := e.mailer.sent[0].code
	session, err := e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{})
	if err != nil {
		t.Fatalf("VerifySignup failed: %v", err)
	}
	if session.TenantID != tenantID {
		t.Fatalf("expected session tenant %s, got %s", tenantID, session.TenantID)
	}
}

func TestSignupExpiredInvite(t *testing.T) {
	e := newTestEnv(t)

	e.store.invites["OLD"] = &models.TenantInvite{
		ID:        uuid.New(),
		Code:      "OLD",
		TenantID:  uuid.New(),
		Role:      models.RoleMember,
		Status:    models.InviteStatusPending,
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	_, err := e.svc.Signup(context.Background(), SignupRequest{Name: "c", Email: "c@example.com", Password: "pw123456", InviteCode: "OLD"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrInvalidInviteCode) {
		t.Fatalf("expected ErrInvalidInviteCode, got %v", err)
	}
}

func TestVerifySignupActivatesAndMintsSession(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tok, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	acct, _ := e.store.FindByEmail(ctx, "alice@example.com")
	tenantID := e.addTenant(acct.ID, models.RoleOwner)

	code := e.mailer.sent[0].code
	session, err := e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{})
	if err != nil {
		t.Fatalf("VerifySignup failed: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected a full session")
	}
	if session.TenantID != tenantID {
		t.Fatalf("expected tenant %s, got %s", tenantID, session.TenantID)
	}

	acct, _ = e.store.FindByEmail(ctx, "alice@example.com")
	if acct.Status != models.AccountStatusActive {
		t.Fatalf("expected active status, got %s", acct.Status)
	}

	// Token is single use.
	if _, err := e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{}); !errors.Is(err, apperr.ErrVerificationCodeExpired) {
		t.Fatalf("reused token should fail with ErrVerificationCodeExpired, got %v", err)
	}
}

func TestVerifySignupWrongCode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tok, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	_, err = e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: "000000"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrInvalidVerificationCode) {
		t.Fatalf("expected ErrInvalidVerificationCode, got %v", err)
	}

	// Wrong code does not consume the token.
	code := e.mailer.sent[0].code
	acct, _ := e.store.FindByEmail(ctx, "alice@example.com")
	e.addTenant(acct.ID, models.RoleOwner)
	if _, err := e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{}); err != nil {
		t.Fatalf("correct code after a wrong attempt should work, got %v", err)
	}
}

func TestVerifySignupUnknownToken(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.svc.VerifySignup(context.Background(), VerifyRequest{Token: "bogus", Code: "123456"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrVerificationCodeExpired) {
		t.Fatalf("expected ErrVerificationCodeExpired, got %v", err)
	}
}

func TestLoginSuccess(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")

	session, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{IP: "5.6.7.8"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	got, err := e.issuer.VerifyRefreshToken(ctx, session.RefreshToken)
	if err != nil || got != acct.ID {
		t.Fatalf("refresh token should resolve to the account: %v", err)
	}

	stored, _ := e.store.FindByID(ctx, acct.ID)
	if stored.LastLoginIP != "5.6.7.8" {
		t.Fatalf("login IP not recorded: %q", stored.LastLoginIP)
	}
	if stored.LastLoginAt == nil {
		t.Fatal("login time not recorded")
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")

	// Wrong password and unknown email are indistinguishable.
	_, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrInvalidEmailPassword) {
		t.Fatalf("expected ErrInvalidEmailPassword, got %v", err)
	}
	_, err = e.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "pw123456"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrInvalidEmailPassword) {
		t.Fatalf("expected ErrInvalidEmailPassword, got %v", err)
	}
}

func TestLoginPendingAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	_, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if !errors.Is(err, apperr.ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
}

func TestLoginWithoutTenant(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tok, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	// No tenant seeded: verification itself cannot complete a login.
	code := e.mailer.sent[0].code
	if _, err := e.svc.VerifySignup(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{}); !errors.Is(err, apperr.ErrNoTenantAssociated) {
		t.Fatalf("expected ErrNoTenantAssociated, got %v", err)
	}
}

func TestLoginTenantPrecedence(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	first := e.store.memberships[0].TenantID
	second := e.addTenant(acct.ID, models.RoleMember)

	// Explicitly requested tenant wins.
	session, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{TenantID: &second})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.TenantID != second {
		t.Fatalf("expected requested tenant %s, got %s", second, session.TenantID)
	}

	// Without an explicit request, the last-login tenant is reused.
	session, err = e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.TenantID != second {
		t.Fatalf("expected last-login tenant %s, got %s", second, session.TenantID)
	}

	// A requested tenant without membership is rejected.
	foreign := uuid.New()
	_, err = e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{TenantID: &foreign})
	if !errors.Is(err, apperr.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
	_ = first
}

func TestLoginReplacesRefreshToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")

	s1, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	s2, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}

	if _, err := e.issuer.VerifyRefreshToken(ctx, s1.RefreshToken); !errors.Is(err, token.ErrRefreshTokenExpired) {
		t.Fatalf("first session's refresh token should be dead, got %v", err)
	}
	if _, err := e.issuer.VerifyRefreshToken(ctx, s2.RefreshToken); err != nil {
		t.Fatalf("second session's refresh token should live, got %v", err)
	}
}

func TestFailedLoginKeepsCurrentSession(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")

	s1, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// A correct password with a tenant the account does not belong to fails
	// after the credential check. The live session must survive it.
	foreign := uuid.New()
	if _, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{TenantID: &foreign}); !errors.Is(err, apperr.ErrInvalidTenant) {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}

	if _, err := e.issuer.VerifyRefreshToken(ctx, s1.RefreshToken); err != nil {
		t.Fatalf("refresh token should survive a failed login, got %v", err)
	}
}

func TestActivateRequestAndVerify(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	acct, _ := e.store.FindByEmail(ctx, "alice@example.com")
	e.addTenant(acct.ID, models.RoleOwner)

	// Cooldown: the signup email counted against the activate limiter's
	// sibling only; the activate purpose has its own budget.
	tok, err := e.svc.ActivateRequest(ctx, "alice@example.com", RequestMeta{})
	if err != nil {
		t.Fatalf("ActivateRequest failed: %v", err)
	}

	code := e.mailer.sent[len(e.mailer.sent)-1].code
	session, err := e.svc.ActivateVerify(ctx, VerifyRequest{Token: tok, Code: code}, RequestMeta{})
	if err != nil {
		t.Fatalf("ActivateVerify failed: %v", err)
	}
	if session.AccessToken == "" {
		t.Fatal("expected a session")
	}

	acct, _ = e.store.FindByEmail(ctx, "alice@example.com")
	if acct.Status != models.AccountStatusActive {
		t.Fatalf("expected active status, got %s", acct.Status)
	}
}

func TestActivateRequestGuards(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.svc.ActivateRequest(ctx, "nobody@example.com", RequestMeta{})
	if !errors.Is(err, apperr.ErrEmailNotRegistered) {
		t.Fatalf("expected ErrEmailNotRegistered, got %v", err)
	}

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	_, err = e.svc.ActivateRequest(ctx, "alice@example.com", RequestMeta{})
	if !errors.Is(err, apperr.ErrAccountAlreadyActive) {
		t.Fatalf("expected ErrAccountAlreadyActive, got %v", err)
	}
}

func TestSendCooldown(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Signup(ctx, SignupRequest{Name: "alice", Email: "alice@example.com", Password: "pw123456"}, RequestMeta{}); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	// The signup send used this purpose's budget for the window.
	_, err := e.svc.ResendVerification(ctx, "alice@example.com", verification.PurposeSignupEmail, RequestMeta{})
	if !errors.Is(err, apperr.ErrVerificationTooFrequent) {
		t.Fatalf("expected ErrVerificationTooFrequent, got %v", err)
	}

	// After the window passes the resend goes through and the old code dies.
	e.mr.FastForward(2 * time.Minute)
	tok2, err := e.svc.ResendVerification(ctx, "alice@example.com", verification.PurposeSignupEmail, RequestMeta{})
	if err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	if tok2 == "" {
		t.Fatal("expected a fresh token")
	}
}

func TestResendVerificationUnknownPurpose(t *testing.T) {
	e := newTestEnv(t)

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	_, err := e.svc.ResendVerification(context.Background(), "alice@example.com", verification.Purpose("bogus"), RequestMeta{})
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	session, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	tok, err := e.svc.ForgotPassword(ctx, "alice@example.com", RequestMeta{})
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	code := e.mailer.sent[len(e.mailer.sent)-1].code

	if err := e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: tok, Code: code, NewPassword: "newpw9999"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// Old password dead, new one works.
	if _, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{}); !errors.Is(err, apperr.ErrInvalidEmailPassword) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "newpw9999"}, RequestMeta{}); err != nil {
		t.Fatalf("new password should work, got %v", err)
	}

	// The pre-reset session's refresh token is revoked.
	if _, err := e.issuer.VerifyRefreshToken(ctx, session.RefreshToken); !errors.Is(err, token.ErrRefreshTokenExpired) {
		t.Fatalf("expected dead refresh token after reset, got %v", err)
	}
	_ = acct
}

func TestResetPasswordWrongCode(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	tok, err := e.svc.ForgotPassword(ctx, "alice@example.com", RequestMeta{})
	if err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	err = e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: tok, Code: "000000", NewPassword: "newpw9999"})
	if !errors.Is(err, apperr.ErrInvalidVerificationCode) {
		t.Fatalf("expected ErrInvalidVerificationCode, got %v", err)
	}
	err = e.svc.ResetPassword(ctx, ResetPasswordRequest{Token: "bogus", Code: "000000", NewPassword: "newpw9999"})
	if !errors.Is(err, apperr.ErrVerificationCodeExpired) {
		t.Fatalf("expected ErrVerificationCodeExpired, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	session, err := e.svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "pw123456"}, RequestMeta{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := e.svc.Logout(ctx, acct.ID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := e.issuer.VerifyRefreshToken(ctx, session.RefreshToken); !errors.Is(err, token.ErrRefreshTokenExpired) {
		t.Fatalf("expected dead refresh token after logout, got %v", err)
	}
}

func TestOAuthLoginNewAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	tenantID := uuid.New()
	e.store.tenants[tenantID] = &models.Tenant{ID: tenantID, Name: "acme"}
	e.store.invites["INV1"] = &models.TenantInvite{
		ID:        uuid.New(),
		Code:      "INV1",
		TenantID:  tenantID,
		Role:      models.RoleMember,
		Status:    models.InviteStatusPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	session, err := e.svc.OAuthLogin(ctx, OAuthLoginRequest{
		Provider:       "github",
		ProviderUserID: "gh-1",
		Email:          "carol@example.com",
		Name:           "carol",
		InviteCode:     "INV1",
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("OAuthLogin failed: %v", err)
	}
	if session.TenantID != tenantID {
		t.Fatalf("expected invite tenant, got %s", session.TenantID)
	}

	acct, _ := e.store.FindByEmail(ctx, "carol@example.com")
	if acct == nil {
		t.Fatal("account not created")
	}
	if acct.Status != models.AccountStatusActive {
		t.Fatalf("oauth accounts are created active, got %s", acct.Status)
	}
	if acct.PasswordHash != nil {
		t.Fatal("oauth-only accounts carry no password hash")
	}
}

func TestOAuthLoginLinksExistingEmail(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")

	session, err := e.svc.OAuthLogin(ctx, OAuthLoginRequest{
		Provider:       "google",
		ProviderUserID: "g-1",
		Email:          "alice@example.com",
		Name:           "alice",
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("OAuthLogin failed: %v", err)
	}

	got, err := e.issuer.VerifyRefreshToken(ctx, session.RefreshToken)
	if err != nil || got != acct.ID {
		t.Fatalf("session should belong to the existing account: %v", err)
	}

	p, _ := e.store.FindOAuthProvider(ctx, "google", "g-1")
	if p == nil || p.AccountID != acct.ID {
		t.Fatalf("provider link missing or wrong: %+v", p)
	}
}

func TestOAuthLoginExistingLinkUpdatesTokens(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	if _, err := e.svc.OAuthLogin(ctx, OAuthLoginRequest{
		Provider: "google", ProviderUserID: "g-1", Email: "alice@example.com", Name: "alice", AccessToken: "old",
	}, RequestMeta{}); err != nil {
		t.Fatalf("first OAuthLogin failed: %v", err)
	}

	if _, err := e.svc.OAuthLogin(ctx, OAuthLoginRequest{
		Provider: "google", ProviderUserID: "g-1", Email: "alice@example.com", Name: "alice", AccessToken: "new",
	}, RequestMeta{}); err != nil {
		t.Fatalf("second OAuthLogin failed: %v", err)
	}

	p, _ := e.store.FindOAuthProvider(ctx, "google", "g-1")
	if p.AccessToken != "new" {
		t.Fatalf("provider tokens should be refreshed, got %q", p.AccessToken)
	}
	if len(e.store.oauth) != 1 {
		t.Fatalf("expected a single provider link, got %d", len(e.store.oauth))
	}
}

func TestUpdateAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")

	newName := "alicia"
	updated, err := e.svc.UpdateAccount(ctx, acct.ID, UpdateRequest{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if updated.Name != "alicia" {
		t.Fatalf("name not updated: %q", updated.Name)
	}
	if updated.Email != "alice@example.com" {
		t.Fatalf("email must be untouched: %q", updated.Email)
	}

	if _, err := e.svc.UpdateAccount(ctx, uuid.New(), UpdateRequest{Name: &newName}); !errors.Is(err, apperr.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestTenantsListing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	acct := e.signupVerified(t, "alice", "alice@example.com", "pw123456")
	e.addTenant(acct.ID, models.RoleMember)

	tenants, err := e.svc.Tenants(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Tenants failed: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %d", len(tenants))
	}
}
