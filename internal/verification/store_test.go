package verification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestGenerateAndGetData(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := New(rdb, map[Purpose]time.Duration{PurposeSignupEmail: 10 * time.Minute})

	token, err := store.Generate(ctx, PurposeSignupEmail, "a@example.com", "123456", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	data, err := store.GetData(ctx, PurposeSignupEmail, token)
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	if data == nil {
		t.Fatal("expected data for live token")
	}
	if data.Email != "a@example.com" || data.Code != "123456" || data.Purpose != PurposeSignupEmail {
		t.Fatalf("unexpected data: %+v", data)
	}
	if data.Extra["k"] != "v" {
		t.Fatalf("extra payload lost: %+v", data.Extra)
	}
}

func TestGetDataUnknownToken(t *testing.T) {
	_, rdb := newTestRedis(t)

	store := New(rdb, nil)
	data, err := store.GetData(context.Background(), PurposeSignupEmail, "no-such-token")
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil data for unknown token, got %+v", data)
	}
}

func TestGenerateRevokesPreviousToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := New(rdb, nil)

	first, err := store.Generate(ctx, PurposeResetPassword, "a@example.com", "111111", nil)
	if err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	second, err := store.Generate(ctx, PurposeResetPassword, "a@example.com", "222222", nil)
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}

	if data, _ := store.GetData(ctx, PurposeResetPassword, first); data != nil {
		t.Fatal("first token should be revoked after regeneration")
	}
	data, err := store.GetData(ctx, PurposeResetPassword, second)
	if err != nil || data == nil {
		t.Fatalf("second token should be live, data=%v err=%v", data, err)
	}
	if data.Code != "222222" {
		t.Fatalf("expected latest code, got %q", data.Code)
	}
}

func TestPurposesAreIsolated(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := New(rdb, nil)

	signup, err := store.Generate(ctx, PurposeSignupEmail, "a@example.com", "111111", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := store.Generate(ctx, PurposeResetPassword, "a@example.com", "222222", nil); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// A reset token for the same email must not revoke the signup token.
	data, err := store.GetData(ctx, PurposeSignupEmail, signup)
	if err != nil || data == nil {
		t.Fatalf("signup token should survive, data=%v err=%v", data, err)
	}

	// Nor can a token be redeemed under a different purpose.
	if data, _ := store.GetData(ctx, PurposeResetPassword, signup); data != nil {
		t.Fatal("token must not resolve under a foreign purpose")
	}
}

func TestTokenExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	store := New(rdb, map[Purpose]time.Duration{PurposeSignupEmail: time.Minute})

	token, err := store.Generate(ctx, PurposeSignupEmail, "a@example.com", "123456", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	data, err := store.GetData(ctx, PurposeSignupEmail, token)
	if err != nil {
		t.Fatalf("GetData failed: %v", err)
	}
	if data != nil {
		t.Fatal("expected expired token to be gone")
	}
}

func TestRevoke(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	store := New(rdb, nil)

	token, err := store.Generate(ctx, PurposeActivateAccount, "a@example.com", "123456", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := store.Revoke(ctx, PurposeActivateAccount, "a@example.com"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if data, _ := store.GetData(ctx, PurposeActivateAccount, token); data != nil {
		t.Fatal("token should be gone after revoke")
	}

	// Revoking again is a no-op.
	if err := store.Revoke(ctx, PurposeActivateAccount, "a@example.com"); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
}

func TestNewCode(t *testing.T) {
	code, err := NewCode()
	if err != nil {
		t.Fatalf("NewCode failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}
}

func TestCodeMatches(t *testing.T) {
	if !CodeMatches("123456", "123456") {
		t.Fatal("equal codes should match")
	}
	if CodeMatches("123456", "654321") {
		t.Fatal("different codes must not match")
	}
	if CodeMatches("", "123456") {
		t.Fatal("empty code must not match")
	}
}
