package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/tenantauth/internal/account"
	"github.com/nikhilbhutani/tenantauth/internal/apperr"
	"github.com/nikhilbhutani/tenantauth/internal/api/middleware"
	"github.com/nikhilbhutani/tenantauth/internal/tenant"
)

type AccountHandler struct {
	accounts *account.Service
	tenants  *tenant.Service
}

func NewAccountHandler(accounts *account.Service, tenants *tenant.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts, tenants: tenants}
}

// Me returns the authenticated account. When the request names a tenant,
// the account's role in it is included.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.ErrUnauthorized)
		return
	}

	acct, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	resp := map[string]interface{}{"account": acct}
	if raw := r.Header.Get("X-Tenant-ID"); raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			apperr.WriteJSON(w, apperr.ErrInvalidArgument.WithData(map[string]any{"reason": "invalid tenant ID"}))
			return
		}
		membership, err := h.tenants.Membership(r.Context(), tenantID, accountID)
		if err != nil {
			apperr.WriteJSON(w, err)
			return
		}
		resp["role"] = membership.Role
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.ErrUnauthorized)
		return
	}

	var req account.UpdateRequest
	if err := decode(r, &req); err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	acct, err := h.accounts.UpdateAccount(r.Context(), accountID, req)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"account": acct})
}

func (h *AccountHandler) Tenants(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.ErrUnauthorized)
		return
	}

	tenants, err := h.accounts.Tenants(r.Context(), accountID)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants, "count": len(tenants)})
}
