package middleware

import (
	"net/http"
	"strings"

	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/token"
)

const (
	// HeaderRefreshToken carries the client's refresh token on every
	// authenticated request.
	HeaderRefreshToken = "X-Refresh-Token"
	// HeaderNewAccessToken returns a replacement access token minted when
	// the presented one had expired. Clients must adopt it when present.
	HeaderNewAccessToken = "X-New-Access-Token"
)

// Auth validates the dual session credentials and transparently renews
// expired access tokens.
//
// Every protected request must carry both a bearer access token and a
// refresh token. The refresh token is checked first; without a live one
// the session is over regardless of the access token's state. A valid
// access token passes through untouched. An invalid or expired one is
// replaced with a freshly minted token, which is also substituted into
// the request so downstream handlers never see the stale credential.
type Auth struct {
	issuer *token.Issuer
	public []string
}

func NewAuth(issuer *token.Issuer, publicPrefixes []string) *Auth {
	return &Auth{issuer: issuer, public: publicPrefixes}
}

func (a *Auth) isPublic(path string) bool {
	for _, p := range a.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		access := bearerToken(r)
		refresh := r.Header.Get(HeaderRefreshToken)
		if access == "" || refresh == "" {
			unauthorized(w)
			return
		}

		accountID, err := a.issuer.VerifyRefreshToken(r.Context(), refresh)
		if err != nil {
			unauthorized(w)
			return
		}

		if id, err := a.issuer.VerifyAccessToken(access); err == nil {
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), id)))
			return
		}

		newAccess, err := a.issuer.CreateAccessToken(accountID)
		if err != nil {
			unauthorized(w)
			return
		}

		// Headers must go out before the handler writes its status line.
		w.Header().Set(HeaderNewAccessToken, newAccess)
		r.Header.Set("Authorization", "Bearer "+newAccess)
		next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func unauthorized(w http.ResponseWriter) {
	apperr.WriteJSON(w, apperr.ErrUnauthorized)
}
