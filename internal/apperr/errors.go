// Package apperr defines the typed domain errors shared by all services.
// Each error carries a stable code, a human message and an HTTP status;
// handlers serialize them verbatim at the boundary.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches by code so that WithData copies compare equal to their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithData returns a copy of the error carrying structured context.
func (e *Error) WithData(data map[string]any) *Error {
	cp := *e
	cp.Data = data
	return &cp
}

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

var (
	ErrUnauthorized     = newError("UNAUTHORIZED", "Unauthorized", http.StatusUnauthorized)
	ErrPermissionDenied = newError("PERMISSION_DENIED", "Permission denied", http.StatusForbidden)
	ErrInvalidArgument  = newError("INVALID_ARGUMENT", "Invalid argument", http.StatusBadRequest)
	ErrInternal         = newError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
	ErrTooManyRequests  = newError("TOO_MANY_REQUESTS", "Too many requests", http.StatusTooManyRequests)

	ErrEmailAlreadyRegistered = newError("EMAIL_ALREADY_REGISTERED", "The email address is already registered", http.StatusBadRequest)
	ErrNameAlreadyRegistered  = newError("NAME_ALREADY_REGISTERED", "The username is already registered", http.StatusBadRequest)
	ErrInvalidEmailPassword   = newError("INVALID_EMAIL_PASSWORD", "Invalid email or password", http.StatusUnauthorized)
	ErrAccountNotActive       = newError("ACCOUNT_NOT_ACTIVE", "Account is not active", http.StatusForbidden)
	ErrEmailNotRegistered     = newError("EMAIL_NOT_REGISTERED", "The email address is not registered", http.StatusNotFound)
	ErrAccountAlreadyActive   = newError("ACCOUNT_ALREADY_ACTIVE", "The account is already active", http.StatusBadRequest)
	ErrAccountNotFound        = newError("ACCOUNT_NOT_FOUND", "The account is not found", http.StatusNotFound)
	ErrNoTenantAssociated     = newError("NO_TENANT_ASSOCIATED", "The account does not belong to any tenant", http.StatusForbidden)
	ErrInvalidTenant          = newError("INVALID_TENANT", "The account is not a member of the requested tenant", http.StatusForbidden)

	ErrInvalidInviteCode        = newError("INVALID_INVITE_CODE", "The invite code is invalid or expired", http.StatusBadRequest)
	ErrInvalidVerificationCode  = newError("INVALID_VERIFICATION_CODE", "The verification code is incorrect", http.StatusBadRequest)
	ErrVerificationCodeExpired  = newError("EMAIL_VERIFICATION_CODE_EXPIRED", "The verification code is expired or invalid", http.StatusBadRequest)
	ErrVerificationTooFrequent  = newError("EMAIL_VERIFICATION_TOO_FREQUENT", "Verification emails are sent too frequently", http.StatusTooManyRequests)
	ErrRefreshTokenExpired      = newError("REFRESH_TOKEN_EXPIRED", "The refresh token is invalid or expired", http.StatusUnauthorized)

	ErrTenantNotFound        = newError("TENANT_NOT_FOUND", "The tenant is not found", http.StatusNotFound)
	ErrUserNotInTenant       = newError("USER_NOT_IN_TENANT", "The user is not in the tenant", http.StatusNotFound)
	ErrUserAlreadyInTenant   = newError("USER_ALREADY_IN_TENANT", "The user is already in the tenant", http.StatusBadRequest)
	ErrCannotRemoveLastOwner = newError("CANNOT_REMOVE_LAST_OWNER", "Cannot remove or demote the last owner", http.StatusBadRequest)
)

// From maps any error to the *Error to serialize at the boundary. Unknown
// errors collapse to INTERNAL_SERVER_ERROR with no leaked internals.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal
}

// WriteJSON serializes the error to the response with its HTTP status.
func WriteJSON(w http.ResponseWriter, err error) {
	e := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}
