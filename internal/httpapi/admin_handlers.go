package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"auditgate.io/internal/adminauth"
	"auditgate.io/internal/audit"
	"auditgate.io/internal/portal"
)

type tokenRequest struct {
	User           string   `json:"user"`
	OrganizationID string   `json:"organization_id"`
	Roles          []string `json:"roles"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}
	org := strings.TrimSpace(req.OrganizationID)
	if org == "" {
		writeError(w, r, http.StatusBadRequest, "organization_id is required")
		return
	}
	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		writeError(w, r, http.StatusBadRequest, "roles are required")
		return
	}

	token, err := adminauth.GenerateToken(user, org, roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user":            user,
		"organization_id": org,
		"roles":           roles,
		"expires_at":      expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// handleAuditScoped routes /v1/audits/{auditID}/... management paths.
func (a *API) handleAuditScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/audits/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	auditID := parts[0]

	id, ok := a.adminIdentity(w, r)
	if !ok {
		return
	}
	ctx := adminauth.ContextWithIdentity(r.Context(), id)
	r = r.WithContext(ctx)

	if parts[1] != "portal" || len(parts) < 3 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[2] {
	case "users":
		switch {
		case len(parts) == 3:
			a.handlePortalUsers(w, r, id, auditID)
		case len(parts) == 4 && parts[3] == "bulk":
			a.handlePortalUsersBulk(w, r, id, auditID)
		case len(parts) == 4:
			a.handlePortalUser(w, r, id, auditID, parts[3])
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	case "logs":
		if len(parts) != 3 {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.handleAccessLogs(w, r, id, auditID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

type createPortalUserResponse struct {
	User       *portal.PortalUser `json:"user"`
	AccessCode string             `json:"access_code"`
}

func (a *API) handlePortalUsers(w http.ResponseWriter, r *http.Request, id adminauth.Identity, auditID string) {
	switch r.Method {
	case http.MethodGet:
		users, err := a.portal.ListPortalUsers(r.Context(), id.OrganizationID, auditID)
		if err != nil {
			handlePortalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req portal.NewPortalUser
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u, code, err := a.portal.CreatePortalUser(r.Context(), id.OrganizationID, auditID, id.UserID, req)
		if err != nil {
			handlePortalError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "portal.user.create", map[string]any{
			"audit_id":       auditID,
			"portal_user_id": u.ID,
			"email":          u.Email,
		})
		writeJSON(w, http.StatusCreated, createPortalUserResponse{User: u, AccessCode: code})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePortalUsersBulk(w http.ResponseWriter, r *http.Request, id adminauth.Identity, auditID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Users []portal.NewPortalUser `json:"users"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Users) == 0 {
		writeError(w, r, http.StatusBadRequest, "users are required")
		return
	}
	results := a.portal.BulkCreatePortalUsers(r.Context(), id.OrganizationID, auditID, id.UserID, req.Users)
	created := 0
	for _, res := range results {
		if res.Error == "" {
			created++
		}
	}
	_ = audit.LogEvent(r.Context(), "portal.user.bulk_create", map[string]any{
		"audit_id":  auditID,
		"requested": len(results),
		"created":   created,
	})
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *API) handlePortalUser(w http.ResponseWriter, r *http.Request, id adminauth.Identity, auditID, userID string) {
	switch r.Method {
	case http.MethodGet:
		u, err := a.portal.GetPortalUser(r.Context(), id.OrganizationID, auditID, userID)
		if err != nil {
			handlePortalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	case http.MethodPut, http.MethodPatch:
		var req portal.PortalUserUpdate
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		u, err := a.portal.UpdatePortalUser(r.Context(), id.OrganizationID, auditID, userID, req)
		if err != nil {
			handlePortalError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "portal.user.update", map[string]any{
			"audit_id":       auditID,
			"portal_user_id": u.ID,
		})
		writeJSON(w, http.StatusOK, u)
	case http.MethodDelete:
		if err := a.portal.DeletePortalUser(r.Context(), id.OrganizationID, auditID, userID); err != nil {
			handlePortalError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "portal.user.delete", map[string]any{
			"audit_id":       auditID,
			"portal_user_id": userID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleAccessLogs(w http.ResponseWriter, r *http.Request, id adminauth.Identity, auditID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := a.portal.AccessLogs(r.Context(), id.OrganizationID, auditID, limit)
	if err != nil {
		handlePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
