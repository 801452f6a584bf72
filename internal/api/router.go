package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/tenantauth/internal/account"
	"github.com/nikhilbhutani/tenantauth/internal/api/handlers"
	"github.com/nikhilbhutani/tenantauth/internal/api/middleware"
	"github.com/nikhilbhutani/tenantauth/internal/config"
	"github.com/nikhilbhutani/tenantauth/internal/mailer"
	"github.com/nikhilbhutani/tenantauth/internal/password"
	"github.com/nikhilbhutani/tenantauth/internal/queue"
	"github.com/nikhilbhutani/tenantauth/internal/ratelimit"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
	"github.com/nikhilbhutani/tenantauth/internal/token"
	"github.com/nikhilbhutani/tenantauth/internal/verification"
)

// publicPrefixes are reachable without session credentials. Everything
// else passes through the auth middleware.
var publicPrefixes = []string{"/api/v1/auth", "/healthz", "/readyz"}

type Router struct {
	mux    *chi.Mux
	db     *pgxpool.Pool
	redis  *redis.Client
	cfg    *config.Config
	issuer *token.Issuer
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		issuer: token.NewIssuer(cfg.Auth.JWTSecret, rdb, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Session auth with transparent access-token renewal. Public prefixes
	// pass through unauthenticated.
	auth := middleware.NewAuth(rt.issuer, publicPrefixes)
	r.Use(auth.Middleware)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	codes := verification.New(rt.redis, map[verification.Purpose]time.Duration{
		verification.PurposeSignupEmail:     rt.cfg.Auth.SignupTokenTTL,
		verification.PurposeActivateAccount: rt.cfg.Auth.ActivateTokenTTL,
		verification.PurposeResetPassword:   rt.cfg.Auth.ResetTokenTTL,
	})

	limits := map[verification.Purpose]*ratelimit.Limiter{}
	for _, p := range []verification.Purpose{
		verification.PurposeSignupEmail,
		verification.PurposeActivateAccount,
		verification.PurposeResetPassword,
	} {
		limits[p] = ratelimit.New(rt.redis, "verify_send:"+string(p), rt.cfg.Auth.SendMaxAttempts, rt.cfg.Auth.SendWindow)
	}

	queueClient := queue.NewClient(rt.cfg.Redis)
	mail := mailer.New(queueClient)

	accountStore := account.NewPostgresStore(rt.db)
	accountSvc := account.NewService(accountStore, password.NewHasher(), rt.issuer, codes, mail, limits)

	tenantStore := tenant.NewPostgresStore(rt.db)
	tenantSvc := tenant.NewService(tenantStore, rt.cfg.Auth.InviteTTL)

	authH := handlers.NewAuthHandler(accountSvc)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/signup", authH.Signup)
		r.Post("/signup/verify", authH.SignupVerify)
		r.Post("/login", authH.Login)
		r.Post("/activate", authH.ActivateRequest)
		r.Post("/activate/verify", authH.ActivateVerify)
		r.Post("/password/forgot", authH.ForgotPassword)
		r.Post("/password/reset", authH.ResetPassword)
		r.Post("/verification/resend", authH.ResendVerification)
		r.Post("/oauth", authH.OAuthLogin)
	})

	acctH := handlers.NewAccountHandler(accountSvc, tenantSvc)
	r.Route("/api/v1/account", func(r chi.Router) {
		r.Get("/me", acctH.Me)
		r.Put("/me", acctH.Update)
		r.Get("/tenants", acctH.Tenants)
		r.Post("/logout", authH.Logout)
	})

	tenantH := handlers.NewTenantHandler(tenantSvc)
	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Post("/", tenantH.Create)
		r.Route("/{tenantID}", func(r chi.Router) {
			r.Get("/", tenantH.Get)
			r.Put("/", tenantH.Update)
			r.Delete("/", tenantH.Delete)
			r.Get("/users", tenantH.ListMembers)
			r.Post("/users", tenantH.AddUser)
			r.Put("/users/{userID}", tenantH.UpdateUserRole)
			r.Delete("/users/{userID}", tenantH.RemoveUser)
			r.Post("/invites", tenantH.GenerateInvite)
			r.Get("/invites", tenantH.ListInvites)
		})
	})

	return r
}
