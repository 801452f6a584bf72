package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrEmailAlreadyRegistered.WithData(map[string]any{"email": "a@example.com"})
	if !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatal("WithData copy should match its sentinel")
	}
	if errors.Is(err, ErrNameAlreadyRegistered) {
		t.Fatal("distinct codes must not match")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("check account: %w", ErrAccountNotFound)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatal("wrapped error should match its sentinel")
	}
}

func TestWithDataDoesNotMutateSentinel(t *testing.T) {
	_ = ErrInvalidTenant.WithData(map[string]any{"tenant_id": "x"})
	if ErrInvalidTenant.Data != nil {
		t.Fatal("sentinel must stay data-free")
	}
}

func TestFrom(t *testing.T) {
	if got := From(ErrUnauthorized); got != ErrUnauthorized {
		t.Fatalf("expected sentinel back, got %v", got)
	}
	if got := From(fmt.Errorf("wrap: %w", ErrTenantNotFound)); got.Code != "TENANT_NOT_FOUND" {
		t.Fatalf("expected wrapped sentinel, got %v", got)
	}
	if got := From(errors.New("database on fire")); got != ErrInternal {
		t.Fatalf("unknown errors must collapse to ErrInternal, got %v", got)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, ErrVerificationTooFrequent.WithData(map[string]any{"email": "a@example.com"}))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	var body struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Code != "EMAIL_VERIFICATION_TOO_FREQUENT" {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if body.Data["email"] != "a@example.com" {
		t.Fatalf("data lost: %+v", body.Data)
	}
}

func TestWriteJSONUnknownError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, errors.New("pg: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := rec.Body.String(); len(got) > 0 && (got[0] != '{') {
		t.Fatalf("expected JSON body, got %q", got)
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Message != "Internal server error" {
		t.Fatalf("internals leaked: %q", body.Message)
	}
}
