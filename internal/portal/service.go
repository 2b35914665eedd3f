package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auditgate.io/internal/cidr"
	"auditgate.io/internal/ids"
)

const (
	defaultSessionTTL = 24 * time.Hour
	defaultCodeTTL    = 30 * 24 * time.Hour
	quotaResetWindow  = 24 * time.Hour

	defaultLogLimit = 50
	maxLogLimit     = 500
)

// Access log action names, fixed per operation.
const (
	ActionAuth             = "portal.auth"
	ActionLogout           = "portal.logout"
	ActionRequestsList     = "portal.requests.list"
	ActionRequestGet       = "portal.request.get"
	ActionEvidenceList     = "portal.evidence.list"
	ActionEvidenceDownload = "portal.evidence.download"
	ActionCommentAdd       = "portal.comment.add"
	ActionCommentsList     = "portal.comments.list"
)

// AuthorTypeExternal marks comments written through the portal.
const AuthorTypeExternal = "external_auditor"

// Service implements the portal access-control layer: credential
// verification, session lifecycle, policy checks, quota enforcement and the
// scoped request/evidence/comment surface. Every authentication attempt and
// portal action produces exactly one access-log entry.
type Service struct {
	store      Store
	now        func() time.Time
	sessionTTL time.Duration
	codeTTL    time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithSessionTTL configures session token lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		return nil
	}
}

// WithCodeTTL configures the default access-code lifetime applied when a
// create request does not set an expiry.
func WithCodeTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.codeTTL = ttl
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("portal store is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		sessionTTL: defaultSessionTTL,
		codeTTL:    defaultCodeTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// credentialSubject is the common shape both credential kinds resolve to,
// so expiry/status/IP checks run once instead of per branch.
type credentialSubject struct {
	auditID      string
	portalUserID *string
	name         string
	active       bool
	inactiveWhy  string
	expiresAt    *time.Time
	enforceIP    bool
	ipRanges     []string
	permissions  Permissions
}

// check evaluates status, expiry and IP policy in that order and returns
// the failure reason plus the error kind to surface.
func (c credentialSubject) check(now time.Time, ip string) (string, error) {
	if !c.active {
		return c.inactiveWhy, fmt.Errorf("%w: %s", ErrUnauthorized, c.inactiveWhy)
	}
	if c.expiresAt != nil && now.After(*c.expiresAt) {
		reason := "access code expired"
		if c.portalUserID == nil {
			reason = "portal access expired"
		}
		return reason, fmt.Errorf("%w: %s", ErrUnauthorized, reason)
	}
	if c.enforceIP && len(c.ipRanges) > 0 && !cidr.Allowed(ip, c.ipRanges) {
		reason := "ip address not in allowed ranges"
		return reason, fmt.Errorf("%w: %s", ErrForbidden, reason)
	}
	return "", nil
}

// Authenticate exchanges an access code for a session descriptor. The audit
// legacy code is tried first, then every stored per-user hash is compared.
// Exactly one access-log row is written per call, success or failure, with
// the presented code redacted.
func (s *Service) Authenticate(ctx context.Context, code, ip, userAgent string) (Session, error) {
	code = strings.TrimSpace(code)
	now := s.now().UTC()

	if code == "" {
		s.logAttempt(ctx, "", nil, code, ip, userAgent, false, "missing access code")
		return Session{}, fmt.Errorf("%w: missing access code", ErrUnauthorized)
	}

	// Legacy audit-level code: stored in plaintext on the audit record and
	// matched by equality. Pre-dates per-user credentials.
	aud, err := s.store.Audits(ctx).FindByAccessCode(ctx, code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	if aud != nil {
		subject := credentialSubject{
			auditID:     aud.ID,
			name:        "External Auditor",
			active:      aud.PortalEnabled,
			inactiveWhy: "Portal access is not enabled for this audit",
			expiresAt:   aud.PortalExpiresAt,
			permissions: Permissions{CanViewAll: true, CanUpload: false, CanComment: true},
		}
		if reason, cerr := subject.check(now, ip); cerr != nil {
			s.logAttempt(ctx, aud.ID, nil, code, ip, userAgent, false, reason)
			return Session{}, cerr
		}
		// Legacy sessions are sessionless: the token is minted for the
		// response shape but no per-user state exists to bind it to, so
		// later calls re-present the audit code instead.
		secret, err := newSessionSecret()
		if err != nil {
			return Session{}, err
		}
		s.logAttempt(ctx, aud.ID, nil, code, ip, userAgent, true, "")
		return Session{
			Token:        LegacyUserID + "." + secret,
			AuditID:      aud.ID,
			PortalUserID: LegacyUserID,
			Name:         subject.name,
			Permissions:  subject.permissions,
			IPAddress:    ip,
			UserAgent:    userAgent,
			ExpiresAt:    now.Add(s.sessionTTL),
		}, nil
	}

	// Per-user codes are salted bcrypt hashes, so lookup is a scan over all
	// stored hashes. O(portal users) per login; acceptable at the scale of
	// external auditors per audit.
	users, err := s.store.PortalUsers(ctx).ListForAuth(ctx)
	if err != nil {
		return Session{}, err
	}
	var matched *PortalUser
	for _, u := range users {
		if VerifyAccessCode(u.AccessCodeHash, code) == nil {
			matched = u
			break
		}
	}
	if matched == nil {
		s.logAttempt(ctx, "", nil, code, ip, userAgent, false, "invalid access code")
		return Session{}, fmt.Errorf("%w: invalid access code", ErrUnauthorized)
	}

	subject := credentialSubject{
		auditID:      matched.AuditID,
		portalUserID: &matched.ID,
		name:         matched.Name,
		active:       matched.Active,
		inactiveWhy:  "account deactivated",
		expiresAt:    &matched.ExpiresAt,
		enforceIP:    matched.EnforceIPRestriction,
		ipRanges:     matched.AllowedIPRanges,
		permissions: Permissions{
			CanViewAll: matched.CanViewAll,
			CanUpload:  matched.CanUpload,
			CanComment: matched.CanComment,
		},
	}
	if reason, cerr := subject.check(now, ip); cerr != nil {
		s.logAttempt(ctx, matched.AuditID, &matched.ID, code, ip, userAgent, false, reason)
		return Session{}, cerr
	}

	secret, err := newSessionSecret()
	if err != nil {
		return Session{}, err
	}
	expiresAt := now.Add(s.sessionTTL)
	// A new login supersedes any previous session; last write wins.
	if err := s.store.PortalUsers(ctx).SetSession(ctx, matched.ID, HashSessionToken(secret), expiresAt, now); err != nil {
		return Session{}, err
	}
	s.logAttempt(ctx, matched.AuditID, &matched.ID, code, ip, userAgent, true, "")

	return Session{
		Token:        matched.ID + "." + secret,
		AuditID:      matched.AuditID,
		PortalUserID: matched.ID,
		Name:         matched.Name,
		Permissions:  subject.permissions,
		IPAddress:    ip,
		UserAgent:    userAgent,
		ExpiresAt:    expiresAt,
	}, nil
}

// ValidateSession authorizes continued use of an established session from a
// presented bearer token. It fails closed: any missing piece of state is an
// authorization failure, never an internal error.
func (s *Service) ValidateSession(ctx context.Context, token, ip, userAgent string) (Session, error) {
	userID, secret, err := splitSessionToken(strings.TrimSpace(token))
	if err != nil {
		return Session{}, s.rejectSession(ctx, "", nil, ip, userAgent, "invalid session token")
	}
	if userID == LegacyUserID {
		// Legacy tokens are never persisted, so they cannot be validated.
		return Session{}, s.rejectSession(ctx, "", nil, ip, userAgent, "legacy sessions must re-present the access code")
	}
	u, err := s.store.PortalUsers(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, s.rejectSession(ctx, "", nil, ip, userAgent, "invalid session token")
		}
		return Session{}, err
	}
	now := s.now().UTC()
	var reason string
	switch {
	case u.SessionTokenHash == nil || u.SessionExpiresAt == nil:
		reason = "no active session"
	case now.After(*u.SessionExpiresAt):
		reason = "session expired"
	case !u.Active:
		reason = "account deactivated"
	case now.After(u.ExpiresAt):
		reason = "access code expired"
	case !secureCompareHash(*u.SessionTokenHash, secret):
		reason = "invalid session token"
	}
	if reason != "" {
		return Session{}, s.rejectSession(ctx, u.AuditID, &u.ID, ip, userAgent, reason)
	}
	return Session{
		AuditID:      u.AuditID,
		PortalUserID: u.ID,
		Name:         u.Name,
		Permissions: Permissions{
			CanViewAll: u.CanViewAll,
			CanUpload:  u.CanUpload,
			CanComment: u.CanComment,
		},
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: *u.SessionExpiresAt,
	}, nil
}

// SessionFromLegacyCode resolves a sessionless legacy session for a request
// that re-presents the audit access code. No state is written and no log
// entry is appended here; the calling operation logs its own action.
func (s *Service) SessionFromLegacyCode(ctx context.Context, code, ip, userAgent string) (Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Session{}, fmt.Errorf("%w: missing access code", ErrUnauthorized)
	}
	aud, err := s.store.Audits(ctx).FindByAccessCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, fmt.Errorf("%w: invalid access code", ErrUnauthorized)
		}
		return Session{}, err
	}
	subject := credentialSubject{
		auditID:     aud.ID,
		name:        "External Auditor",
		active:      aud.PortalEnabled,
		inactiveWhy: "Portal access is not enabled for this audit",
		expiresAt:   aud.PortalExpiresAt,
		permissions: Permissions{CanViewAll: true, CanUpload: false, CanComment: true},
	}
	if _, cerr := subject.check(s.now().UTC(), ip); cerr != nil {
		return Session{}, cerr
	}
	return Session{
		AuditID:      aud.ID,
		PortalUserID: LegacyUserID,
		Name:         subject.name,
		Permissions:  subject.permissions,
		IPAddress:    ip,
		UserAgent:    userAgent,
		ExpiresAt:    s.now().UTC().Add(s.sessionTTL),
	}, nil
}

// InvalidateSession clears the stored session state (logout). Legacy
// sessions carry no stored state, so only the log entry is written.
func (s *Service) InvalidateSession(ctx context.Context, sess Session) error {
	if !sess.Legacy() {
		if err := s.store.PortalUsers(ctx).ClearSession(ctx, sess.PortalUserID); err != nil {
			return err
		}
	}
	s.logAction(ctx, sess, ActionLogout, "", "", "", true, "", nil)
	return nil
}

// CreatePortalUser provisions a new external identity. The plaintext access
// code is returned exactly once; only its hash is stored.
func (s *Service) CreatePortalUser(ctx context.Context, organizationID, auditID, invitedBy string, in NewPortalUser) (*PortalUser, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Role = strings.TrimSpace(in.Role)
	if in.Name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if in.DownloadLimit != nil && *in.DownloadLimit < 0 {
		return nil, "", fmt.Errorf("%w: download_limit must be >= 0", ErrInvalidInput)
	}
	if err := cidr.ValidateList(in.AllowedIPRanges); err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}

	aud, err := s.store.Audits(ctx).FindScoped(ctx, auditID, organizationID)
	if err != nil {
		return nil, "", err
	}

	code, err := NewAccessCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashAccessCode(code)
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.codeTTL)
	if in.ExpiresAt != nil {
		expiresAt = in.ExpiresAt.UTC()
	}

	u := &PortalUser{
		ID:                   ids.New(),
		AuditID:              aud.ID,
		Name:                 in.Name,
		Email:                in.Email,
		Role:                 in.Role,
		AccessCodeHash:       hash,
		Active:               true,
		CanViewAll:           in.CanViewAll,
		CanUpload:            in.CanUpload,
		CanComment:           in.CanComment,
		AllowedIPRanges:      in.AllowedIPRanges,
		EnforceIPRestriction: in.EnforceIPRestriction,
		DownloadLimit:        in.DownloadLimit,
		Watermark:            in.Watermark,
		WatermarkText:        strings.TrimSpace(in.WatermarkText),
		ExpiresAt:            expiresAt,
		InvitedBy:            invitedBy,
		CreatedAt:            now,
	}
	if err := s.store.PortalUsers(ctx).Create(ctx, u); err != nil {
		return nil, "", err
	}

	// First portal user turns the audit's portal on.
	if !aud.PortalEnabled {
		if err := s.store.Audits(ctx).SetPortalEnabled(ctx, aud.ID, true); err != nil {
			return nil, "", err
		}
	}
	return u, code, nil
}

// BulkCreatePortalUsers is a best-effort batch invite. It never aborts on
// the first failure; each item reports its own outcome.
func (s *Service) BulkCreatePortalUsers(ctx context.Context, organizationID, auditID, invitedBy string, items []NewPortalUser) []BulkCreateResult {
	results := make([]BulkCreateResult, 0, len(items))
	for _, in := range items {
		res := BulkCreateResult{Email: strings.TrimSpace(strings.ToLower(in.Email))}
		u, code, err := s.CreatePortalUser(ctx, organizationID, auditID, invitedBy, in)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.UserID = u.ID
			res.AccessCode = code
		}
		results = append(results, res)
	}
	return results
}

// UpdatePortalUser mutates user attributes. The access code itself is not
// updatable; a compromised code means a new user record.
func (s *Service) UpdatePortalUser(ctx context.Context, organizationID, auditID, userID string, upd PortalUserUpdate) (*PortalUser, error) {
	u, err := s.findScopedUser(ctx, organizationID, auditID, userID)
	if err != nil {
		return nil, err
	}
	if upd.AllowedIPRanges != nil {
		if err := cidr.ValidateList(*upd.AllowedIPRanges); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
		}
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.DownloadLimit != nil && *upd.DownloadLimit < 0 {
		return nil, fmt.Errorf("%w: download_limit must be >= 0", ErrInvalidInput)
	}
	return s.store.PortalUsers(ctx).Update(ctx, u.ID, upd)
}

// DeletePortalUser hard-deletes the identity. Access log rows referencing
// it remain; the log is append-only.
func (s *Service) DeletePortalUser(ctx context.Context, organizationID, auditID, userID string) error {
	u, err := s.findScopedUser(ctx, organizationID, auditID, userID)
	if err != nil {
		return err
	}
	return s.store.PortalUsers(ctx).Delete(ctx, u.ID)
}

// GetPortalUser returns one user within the caller's scope.
func (s *Service) GetPortalUser(ctx context.Context, organizationID, auditID, userID string) (*PortalUser, error) {
	return s.findScopedUser(ctx, organizationID, auditID, userID)
}

// ListPortalUsers returns all portal users of an audit within the org.
func (s *Service) ListPortalUsers(ctx context.Context, organizationID, auditID string) ([]*PortalUser, error) {
	if _, err := s.store.Audits(ctx).FindScoped(ctx, auditID, organizationID); err != nil {
		return nil, err
	}
	return s.store.PortalUsers(ctx).ListByAudit(ctx, auditID)
}

// AccessLogs reads the newest access-log entries for an audit.
func (s *Service) AccessLogs(ctx context.Context, organizationID, auditID string, limit int) ([]AccessLogEntry, error) {
	if _, err := s.store.Audits(ctx).FindScoped(ctx, auditID, organizationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return s.store.AccessLogs(ctx).ListByAudit(ctx, auditID, limit)
}

// CheckAndIncrementDownload applies the fixed-window download quota for one
// portal user. The window anchors to whenever the limit was first
// exhausted, not to a calendar boundary.
func (s *Service) CheckAndIncrementDownload(ctx context.Context, portalUserID string) (bool, error) {
	now := s.now().UTC()
	return s.store.PortalUsers(ctx).ConsumeDownload(ctx, portalUserID, now, now.Add(quotaResetWindow))
}

// ListRequests returns the audit's evidence requests, optionally filtered
// by status.
func (s *Service) ListRequests(ctx context.Context, sess Session, status string) ([]Request, error) {
	reqs, err := s.store.Requests(ctx).ListByAudit(ctx, sess.AuditID, strings.TrimSpace(status))
	if err != nil {
		s.logAction(ctx, sess, ActionRequestsList, "", "", "", false, "internal error", nil)
		return nil, err
	}
	meta := map[string]string{"count": fmt.Sprintf("%d", len(reqs))}
	if status != "" {
		meta["status"] = status
	}
	s.logAction(ctx, sess, ActionRequestsList, "", "", "", true, "", meta)
	return reqs, nil
}

// GetRequest returns one request with its evidence and externally visible
// comments. Requests outside the session's audit surface as not-found.
func (s *Service) GetRequest(ctx context.Context, sess Session, requestID string) (*RequestDetail, error) {
	req, err := s.store.Requests(ctx).Find(ctx, sess.AuditID, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logAction(ctx, sess, ActionRequestGet, "request", requestID, "", false, "request not found", nil)
		}
		return nil, err
	}
	evidence, err := s.store.Evidence(ctx).ListByRequest(ctx, sess.AuditID, req.ID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.Comments(ctx).ListExternal(ctx, sess.AuditID, req.ID)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, sess, ActionRequestGet, "request", req.ID, req.Title, true, "", nil)
	return &RequestDetail{Request: *req, Evidence: evidence, Comments: comments}, nil
}

// ListEvidence returns evidence metadata for one request.
func (s *Service) ListEvidence(ctx context.Context, sess Session, requestID string) ([]Evidence, error) {
	req, err := s.store.Requests(ctx).Find(ctx, sess.AuditID, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logAction(ctx, sess, ActionEvidenceList, "request", requestID, "", false, "request not found", nil)
		}
		return nil, err
	}
	evidence, err := s.store.Evidence(ctx).ListByRequest(ctx, sess.AuditID, req.ID)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, sess, ActionEvidenceList, "request", req.ID, req.Title, true, "", nil)
	return evidence, nil
}

// AddComment appends an external comment to a request. Requires the
// canComment capability; the comment is attributed to the session's auditor
// name and is never internal.
func (s *Service) AddComment(ctx context.Context, sess Session, requestID, body string) (*Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: comment body is required", ErrInvalidInput)
	}
	if !sess.Permissions.CanComment {
		s.logAction(ctx, sess, ActionCommentAdd, "request", requestID, "", false, "comment permission denied", nil)
		return nil, fmt.Errorf("%w: comment permission denied", ErrForbidden)
	}
	req, err := s.store.Requests(ctx).Find(ctx, sess.AuditID, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logAction(ctx, sess, ActionCommentAdd, "request", requestID, "", false, "request not found", nil)
		}
		return nil, err
	}
	c := &Comment{
		ID:         ids.New(),
		RequestID:  req.ID,
		AuditID:    sess.AuditID,
		AuthorType: AuthorTypeExternal,
		AuthorName: sess.Name,
		Body:       body,
		Internal:   false,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Comments(ctx).Create(ctx, c); err != nil {
		return nil, err
	}
	s.logAction(ctx, sess, ActionCommentAdd, "comment", c.ID, req.Title, true, "", nil)
	return c, nil
}

// ListComments returns the externally visible comments of a request.
// Internal deliberation never crosses the portal boundary.
func (s *Service) ListComments(ctx context.Context, sess Session, requestID string) ([]Comment, error) {
	req, err := s.store.Requests(ctx).Find(ctx, sess.AuditID, requestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logAction(ctx, sess, ActionCommentsList, "request", requestID, "", false, "request not found", nil)
		}
		return nil, err
	}
	comments, err := s.store.Comments(ctx).ListExternal(ctx, sess.AuditID, req.ID)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, sess, ActionCommentsList, "request", req.ID, req.Title, true, "", nil)
	return comments, nil
}

// DownloadEvidence answers a quota-checked download. Legacy sessions carry
// no identity to rate-limit or watermark, so both are skipped for them.
func (s *Service) DownloadEvidence(ctx context.Context, sess Session, evidenceID string) (*Download, error) {
	ev, err := s.store.Evidence(ctx).Find(ctx, sess.AuditID, evidenceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logAction(ctx, sess, ActionEvidenceDownload, "evidence", evidenceID, "", false, "evidence not found", nil)
		}
		return nil, err
	}

	dl := &Download{Evidence: *ev}
	if !sess.Legacy() {
		allowed, err := s.CheckAndIncrementDownload(ctx, sess.PortalUserID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			s.logAction(ctx, sess, ActionEvidenceDownload, "evidence", ev.ID, ev.FileName, false, "download limit exceeded", nil)
			return nil, ErrLimitExceeded
		}
		u, err := s.store.PortalUsers(ctx).Find(ctx, sess.PortalUserID)
		if err != nil {
			return nil, err
		}
		dl.Watermark = u.Watermark
		dl.WatermarkText = u.WatermarkText
		if dl.Watermark && dl.WatermarkText == "" {
			dl.WatermarkText = fmt.Sprintf("Downloaded by %s (%s)", u.Name, u.Email)
		}
	}
	s.logAction(ctx, sess, ActionEvidenceDownload, "evidence", ev.ID, ev.FileName, true, "", nil)
	return dl, nil
}

func (s *Service) findScopedUser(ctx context.Context, organizationID, auditID, userID string) (*PortalUser, error) {
	if _, err := s.store.Audits(ctx).FindScoped(ctx, auditID, organizationID); err != nil {
		return nil, err
	}
	u, err := s.store.PortalUsers(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	// A user id from another audit is indistinguishable from a missing one.
	if u.AuditID != auditID {
		return nil, ErrNotFound
	}
	return u, nil
}

// logAttempt records one authentication attempt. Append failures are
// swallowed; authentication outcome must not depend on log availability.
func (s *Service) logAttempt(ctx context.Context, auditID string, portalUserID *string, code, ip, userAgent string, success bool, reason string) {
	_ = s.store.AccessLogs(ctx).Append(ctx, &AccessLogEntry{
		ID:            ids.New(),
		AuditID:       auditID,
		PortalUserID:  portalUserID,
		AccessCode:    RedactCode(code),
		Action:        ActionAuth,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: reason,
		CreatedAt:     s.now().UTC(),
	})
}

// rejectSession records a rejected session credential and returns the
// Unauthorized error to surface. The code column carries only the redaction
// placeholder: tokens are never logged, even partially.
func (s *Service) rejectSession(ctx context.Context, auditID string, portalUserID *string, ip, userAgent, reason string) error {
	_ = s.store.AccessLogs(ctx).Append(ctx, &AccessLogEntry{
		ID:            ids.New(),
		AuditID:       auditID,
		PortalUserID:  portalUserID,
		AccessCode:    RedactCode(""),
		Action:        ActionAuth,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       false,
		FailureReason: reason,
		CreatedAt:     s.now().UTC(),
	})
	return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
}

// RejectRequest records a portal request that carried no usable credential
// and returns the Unauthorized error for the transport to surface.
func (s *Service) RejectRequest(ctx context.Context, ip, userAgent, reason string) error {
	return s.rejectSession(ctx, "", nil, ip, userAgent, reason)
}

// logAction records one authenticated portal action.
func (s *Service) logAction(ctx context.Context, sess Session, action, entityType, entityID, entityName string, success bool, reason string, metadata map[string]string) {
	entry := &AccessLogEntry{
		ID:            ids.New(),
		AuditID:       sess.AuditID,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		EntityName:    entityName,
		IPAddress:     sess.IPAddress,
		UserAgent:     sess.UserAgent,
		Success:       success,
		FailureReason: reason,
		Metadata:      metadata,
		CreatedAt:     s.now().UTC(),
	}
	if !sess.Legacy() {
		id := sess.PortalUserID
		entry.PortalUserID = &id
	}
	_ = s.store.AccessLogs(ctx).Append(ctx, entry)
}
