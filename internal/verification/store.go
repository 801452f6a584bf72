// Package verification stores short-lived, single-use verification tokens in
// redis. Tokens are scoped by purpose, and at most one token is live per
// (email, purpose): generating a new one revokes the previous one through a
// secondary index keyed by purpose and email.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Purpose string

const (
	PurposeSignupEmail     Purpose = "signup_email_verification"
	PurposeActivateAccount Purpose = "activate_account_verification"
	PurposeResetPassword   Purpose = "reset_password_verification"
)

const codeLength = 6

// Data is the payload stored under a verification token.
type Data struct {
	Email   string            `json:"email"`
	Code    string            `json:"code"`
	Purpose Purpose           `json:"purpose"`
	Extra   map[string]string `json:"extra,omitempty"`
}

type Store struct {
	redis *redis.Client
	ttl   map[Purpose]time.Duration
}

// New creates a Store with a TTL per purpose. Purposes absent from ttl fall
// back to ten minutes.
func New(rdb *redis.Client, ttl map[Purpose]time.Duration) *Store {
	return &Store{redis: rdb, ttl: ttl}
}

func (s *Store) tokenKey(purpose Purpose, token string) string {
	return string(purpose) + ":token:" + token
}

func (s *Store) accountKey(purpose Purpose, email string) string {
	return string(purpose) + ":account:" + email
}

func (s *Store) ttlFor(purpose Purpose) time.Duration {
	if d, ok := s.ttl[purpose]; ok {
		return d
	}
	return 10 * time.Minute
}

// Generate revokes any live token for (email, purpose), then stores a new
// opaque token carrying the payload and updates the secondary index. Both
// keys share the purpose-specific TTL.
func (s *Store) Generate(ctx context.Context, purpose Purpose, email, code string, extra map[string]string) (string, error) {
	if err := s.Revoke(ctx, purpose, email); err != nil {
		return "", err
	}

	token := uuid.NewString()
	payload, err := json.Marshal(Data{Email: email, Code: code, Purpose: purpose, Extra: extra})
	if err != nil {
		return "", fmt.Errorf("marshal verification data: %w", err)
	}

	ttl := s.ttlFor(purpose)
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.tokenKey(purpose, token), payload, ttl)
	pipe.Set(ctx, s.accountKey(purpose, email), token, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}
	return token, nil
}

// GetData returns the payload for a token, or nil if the token is missing or
// expired. The two cases are deliberately indistinguishable to the caller.
func (s *Store) GetData(ctx context.Context, purpose Purpose, token string) (*Data, error) {
	raw, err := s.redis.Get(ctx, s.tokenKey(purpose, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification token: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("unmarshal verification data: %w", err)
	}
	return &data, nil
}

// Revoke deletes the live token for (email, purpose) via the secondary
// index. Revoking an already-consumed or expired token is a no-op.
func (s *Store) Revoke(ctx context.Context, purpose Purpose, email string) error {
	accountKey := s.accountKey(purpose, email)
	token, err := s.redis.Get(ctx, accountKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup current verification token: %w", err)
	}

	if err := s.redis.Del(ctx, s.tokenKey(purpose, token), accountKey).Err(); err != nil {
		return fmt.Errorf("revoke verification token: %w", err)
	}
	return nil
}

// NewCode returns a 6-digit numeric code from a cryptographically secure
// source.
func NewCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate verification code: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}

// CodeMatches compares codes in constant time.
func CodeMatches(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
