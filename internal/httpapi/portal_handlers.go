package httpapi

import (
	"net/http"
	"strings"

	"auditgate.io/internal/obs"
)

type portalAuthRequest struct {
	AccessCode string `json:"access_code"`
}

func (a *API) handlePortalAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req portalAuthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := a.portal.Authenticate(r.Context(), req.AccessCode, clientIP(r), r.UserAgent())
	if err != nil {
		obs.ObservePortalAuth("failure")
		handlePortalError(w, r, err)
		return
	}
	obs.ObservePortalAuth("success")
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handlePortalLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	if err := a.portal.InvalidateSession(r.Context(), sess); err != nil {
		handlePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handlePortalSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handlePortalRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	reqs, err := a.portal.ListRequests(r.Context(), sess, r.URL.Query().Get("status"))
	if err != nil {
		handlePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (a *API) handlePortalRequestScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/audit-portal/requests/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	requestID := parts[0]

	switch {
	case len(parts) == 1:
		a.handlePortalRequestGet(w, r, requestID)
	case len(parts) == 2 && parts[1] == "evidence":
		a.handlePortalRequestEvidence(w, r, requestID)
	case len(parts) == 2 && parts[1] == "comments":
		a.handlePortalRequestComments(w, r, requestID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePortalRequestGet(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	detail, err := a.portal.GetRequest(r.Context(), sess, requestID)
	if err != nil {
		handlePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handlePortalRequestEvidence(w http.ResponseWriter, r *http.Request, requestID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	evidence, err := a.portal.ListEvidence(r.Context(), sess, requestID)
	if err != nil {
		handlePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": evidence})
}

type addCommentRequest struct {
	Body string `json:"body"`
}

func (a *API) handlePortalRequestComments(w http.ResponseWriter, r *http.Request, requestID string) {
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		comments, err := a.portal.ListComments(r.Context(), sess, requestID)
		if err != nil {
			handlePortalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
	case http.MethodPost:
		var req addCommentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.portal.AddComment(r.Context(), sess, requestID, req.Body)
		if err != nil {
			handlePortalError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePortalEvidenceScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/audit-portal/evidence/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "download" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, ok := a.portalSession(w, r)
	if !ok {
		return
	}
	dl, err := a.portal.DownloadEvidence(r.Context(), sess, parts[0])
	if err != nil {
		handlePortalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dl)
}
