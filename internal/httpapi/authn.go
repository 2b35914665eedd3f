package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"auditgate.io/internal/adminauth"
	"auditgate.io/internal/portal"
)

const (
	authHeader       = "Authorization"
	bearer           = "Bearer "
	portalCodeHeader = "X-Portal-Code"
)

// adminRole is required on every management endpoint.
const adminRole = "portal_admin"

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// adminIdentity authenticates a management request. On failure a response
// is already written and ok is false.
func (a *API) adminIdentity(w http.ResponseWriter, r *http.Request) (adminauth.Identity, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return adminauth.Identity{}, false
	}
	claims, err := adminauth.ParseAndValidate(token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return adminauth.Identity{}, false
	}
	id := adminauth.Identity{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Roles:          claims.Roles,
	}
	if !id.HasRole(adminRole) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return adminauth.Identity{}, false
	}
	return id, true
}

// portalSession resolves the caller's portal session. Bearer tokens are
// preferred; the legacy code header is accepted for audit-level codes. On
// failure a response is already written and ok is false.
func (a *API) portalSession(w http.ResponseWriter, r *http.Request) (portal.Session, bool) {
	ip := clientIP(r)
	ua := r.UserAgent()

	if header := strings.TrimSpace(r.Header.Get(authHeader)); header != "" {
		token, err := extractBearerToken(header)
		if err != nil {
			handlePortalError(w, r, a.portal.RejectRequest(r.Context(), ip, ua, err.Error()))
			return portal.Session{}, false
		}
		sess, err := a.portal.ValidateSession(r.Context(), token, ip, ua)
		if err != nil {
			handlePortalError(w, r, err)
			return portal.Session{}, false
		}
		return sess, true
	}

	if code := strings.TrimSpace(r.Header.Get(portalCodeHeader)); code != "" {
		sess, err := a.portal.SessionFromLegacyCode(r.Context(), code, ip, ua)
		if err != nil {
			handlePortalError(w, r, err)
			return portal.Session{}, false
		}
		return sess, true
	}

	handlePortalError(w, r, a.portal.RejectRequest(r.Context(), ip, ua, "missing credentials"))
	return portal.Session{}, false
}
