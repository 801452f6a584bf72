package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/account"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/api/middleware"
	"github.com/nikhilbhutani/tenantauth/internal/verification"
)

type AuthHandler struct {
	svc *account.Service
}

func NewAuthHandler(svc *account.Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// requestMeta collects the per-request facts the account flows record:
// client IP, preferred language, and the explicitly requested tenant.
func requestMeta(r *http.Request) account.RequestMeta {
	meta := account.RequestMeta{
		IP:       r.RemoteAddr,
		Language: r.Header.Get("Accept-Language"),
	}
	if raw := r.Header.Get("X-Tenant-ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			meta.TenantID = &id
		}
	}
	return meta
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid request body"})
	}
	return nil
}

func sessionResponse(s *account.Session) map[string]interface{} {
	return map[string]interface{}{
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"token_type":    "bearer",
		"tenant_id":     s.TenantID,
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Email == "" || req.Name == "" || req.Password == "" {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "name, email and password required"}))
		return
	}

	token, err := h.svc.Signup(r.Context(), req, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"verification_token": token})
}

func (h *AuthHandler) SignupVerify(w http.ResponseWriter, r *http.Request) {
	var req account.VerifyRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	session, err := h.svc.VerifySignup(r.Context(), req, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req account.LoginRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	session, err := h.svc.Login(r.Context(), req, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.ErrUnauthorized)
		return
	}

	if err := h.svc.Logout(r.Context(), accountID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ActivateRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	token, err := h.svc.ActivateRequest(r.Context(), req.Email, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"verification_token": token})
}

func (h *AuthHandler) ActivateVerify(w http.ResponseWriter, r *http.Request) {
	var req account.VerifyRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	session, err := h.svc.ActivateVerify(r.Context(), req, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(session))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	token, err := h.svc.ForgotPassword(r.Context(), req.Email, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"verification_token": token})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req account.ResetPasswordRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.NewPassword == "" {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "new_password required"}))
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
}

type resendRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	token, err := h.svc.ResendVerification(r.Context(), req.Email, verification.Purpose(req.Purpose), requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"verification_token": token})
}

func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req account.OAuthLoginRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Provider == "" || req.ProviderUserID == "" || req.Email == "" {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "provider, provider_user_id and email required"}))
		return
	}

	session, err := h.svc.OAuthLogin(r.Context(), req, requestMeta(r))
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse(session))
}
