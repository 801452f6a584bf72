// Package token issues the dual credentials of a session: stateless signed
// access tokens and opaque server-tracked refresh tokens.
//
// Refresh tokens are per-account singletons. Issuing a new pair overwrites
// the account's previous refresh token, so logging in elsewhere revokes the
// other session's refresh capability (its access token keeps working until
// expiry). Lookup uses a direct reverse index (token value -> account id)
// rather than a key scan.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	refreshAccountPrefix = "refresh:account:"
	refreshTokenPrefix   = "refresh:token:"
	refreshTokenBytes    = 32
)

// ErrInvalidAccessToken covers every access-token failure: bad signature,
// malformed token, expiry. Callers must not distinguish them.
var ErrInvalidAccessToken = errors.New("access token invalid")

// ErrRefreshTokenExpired covers a refresh token that is absent, mismatched
// or past its TTL.
var ErrRefreshTokenExpired = errors.New("refresh token invalid or expired")

type Claims struct {
	AccountID string `json:"aid"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret     []byte
	redis      *redis.Client
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewIssuer(secret string, rdb *redis.Client, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		redis:      rdb,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// CreateAccessToken mints a signed, time-limited bearer token carrying the
// account id.
func (i *Issuer) CreateAccessToken(accountID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: accountID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature and expiry and returns the account id.
// All failure modes collapse to ErrInvalidAccessToken.
func (i *Issuer) VerifyAccessToken(tokenStr string) (uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidAccessToken
	}

	accountID, err := uuid.Parse(claims.AccountID)
	if err != nil {
		return uuid.Nil, ErrInvalidAccessToken
	}
	return accountID, nil
}

// CreateTokenPair mints an access token and a fresh opaque refresh token,
// overwriting any refresh token the account already holds.
func (i *Issuer) CreateTokenPair(ctx context.Context, accountID uuid.UUID) (access, refresh string, err error) {
	access, err = i.CreateAccessToken(accountID)
	if err != nil {
		return "", "", err
	}

	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate refresh token: %w", err)
	}
	refresh = base64.RawURLEncoding.EncodeToString(raw)

	accountKey := refreshAccountPrefix + accountID.String()

	// Drop the previous reverse-index entry before overwriting, otherwise a
	// rotated-out token would keep validating until its TTL ran out.
	old, err := i.redis.Get(ctx, accountKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", "", fmt.Errorf("lookup current refresh token: %w", err)
	}

	pipe := i.redis.TxPipeline()
	if old != "" {
		pipe.Del(ctx, refreshTokenPrefix+old)
	}
	pipe.Set(ctx, accountKey, refresh, i.refreshTTL)
	pipe.Set(ctx, refreshTokenPrefix+refresh, accountID.String(), i.refreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", fmt.Errorf("store refresh token: %w", err)
	}

	return access, refresh, nil
}

// VerifyRefreshToken resolves a refresh token to its account id via the
// reverse index, confirming it is still the account's current token.
func (i *Issuer) VerifyRefreshToken(ctx context.Context, refresh string) (uuid.UUID, error) {
	if refresh == "" {
		return uuid.Nil, ErrRefreshTokenExpired
	}

	accountStr, err := i.redis.Get(ctx, refreshTokenPrefix+refresh).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrRefreshTokenExpired
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	current, err := i.redis.Get(ctx, refreshAccountPrefix+accountStr).Result()
	if errors.Is(err, redis.Nil) || (err == nil && current != refresh) {
		return uuid.Nil, ErrRefreshTokenExpired
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("lookup account refresh token: %w", err)
	}

	accountID, err := uuid.Parse(accountStr)
	if err != nil {
		return uuid.Nil, ErrRefreshTokenExpired
	}
	return accountID, nil
}

// RefreshAccessToken mints a new access token from a valid refresh token.
// The refresh token itself is not rotated on use.
func (i *Issuer) RefreshAccessToken(ctx context.Context, refresh string) (string, error) {
	accountID, err := i.VerifyRefreshToken(ctx, refresh)
	if err != nil {
		return "", err
	}
	return i.CreateAccessToken(accountID)
}

// Invalidate deletes the account's refresh token. Called on logout and on
// password reset; login does not need it since CreateTokenPair overwrites.
func (i *Issuer) Invalidate(ctx context.Context, accountID uuid.UUID) error {
	accountKey := refreshAccountPrefix + accountID.String()

	current, err := i.redis.Get(ctx, accountKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	if err := i.redis.Del(ctx, accountKey, refreshTokenPrefix+current).Err(); err != nil {
		return fmt.Errorf("invalidate refresh token: %w", err)
	}
	return nil
}
