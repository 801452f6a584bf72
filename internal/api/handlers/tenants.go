package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/api/middleware"
	"github.com/nikhilbhutani/tenantauth/internal/models"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

type TenantHandler struct {
	svc *tenant.Service
}

func NewTenantHandler(svc *tenant.Service) *TenantHandler {
	return &TenantHandler{svc: svc}
}

func callerAndTenant(r *http.Request) (accountID, tenantID uuid.UUID, err error) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, apperr.ErrUnauthorized
	}
	tenantID, parseErr := uuid.Parse(chi.URLParam(r, "tenantID"))
	if parseErr != nil {
		return uuid.Nil, uuid.Nil, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid tenant ID"})
	}
	return accountID, tenantID, nil
}

type tenantRequest struct {
	Name string `json:"name"`
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.ErrUnauthorized)
		return
	}

	var req tenantRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Name == "" {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "name required"}))
		return
	}

	t, err := h.svc.CreateTenant(r.Context(), req.Name, accountID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"tenant": t})
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	// Membership-gated so non-members cannot probe tenant names.
	if _, err := h.svc.Membership(r.Context(), tenantID, accountID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	t, err := h.svc.GetTenant(r.Context(), tenantID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tenant": t})
}

func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	var req tenantRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Name == "" {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "name required"}))
		return
	}

	t, err := h.svc.UpdateTenant(r.Context(), tenantID, accountID, req.Name)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tenant": t})
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	if err := h.svc.DeleteTenant(r.Context(), tenantID, accountID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *TenantHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	members, err := h.svc.ListMembers(r.Context(), tenantID, accountID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": members, "count": len(members)})
}

type inviteRequest struct {
	Role models.TenantUserRole `json:"role"`
}

func (h *TenantHandler) GenerateInvite(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	var req inviteRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if !req.Role.Valid() {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid role"}))
		return
	}

	invite, err := h.svc.GenerateInvite(r.Context(), tenantID, accountID, req.Role)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"invite": invite})
}

func (h *TenantHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	invites, err := h.svc.ListInvites(r.Context(), tenantID, accountID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"invites": invites, "count": len(invites)})
}

type addUserRequest struct {
	Email string                `json:"email"`
	Role  models.TenantUserRole `json:"role"`
}

func (h *TenantHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	var req addUserRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if req.Email == "" {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "email required"}))
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if !req.Role.Valid() {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid role"}))
		return
	}

	user, err := h.svc.AddUser(r.Context(), tenantID, accountID, req.Email, req.Role)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

type updateRoleRequest struct {
	Role models.TenantUserRole `json:"role"`
}

func (h *TenantHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid user ID"}))
		return
	}

	var req updateRoleRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	if !req.Role.Valid() {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid role"}))
		return
	}

	user, err := h.svc.UpdateUserRole(r.Context(), tenantID, accountID, userID, req.Role)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *TenantHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	accountID, tenantID, err := callerAndTenant(r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid user ID"}))
		return
	}

	if err := h.svc.RemoveUser(r.Context(), tenantID, accountID, userID); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
