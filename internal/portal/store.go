package portal

import (
	"context"
	"time"
)

// Store describes persistence operations required by the portal subsystem.
type Store interface {
	Audits(ctx context.Context) AuditStore
	PortalUsers(ctx context.Context) PortalUserStore
	AccessLogs(ctx context.Context) AccessLogStore
	Requests(ctx context.Context) RequestStore
	Evidence(ctx context.Context) EvidenceStore
	Comments(ctx context.Context) CommentStore
}

// AuditStore reads and flags audits. Audits are owned elsewhere; the portal
// only needs lookup and the portal-enabled toggle.
type AuditStore interface {
	Find(ctx context.Context, id string) (*Audit, error)
	FindScoped(ctx context.Context, id, organizationID string) (*Audit, error)
	FindByAccessCode(ctx context.Context, code string) (*Audit, error)
	SetPortalEnabled(ctx context.Context, id string, enabled bool) error
}

// PortalUserStore manages portal user records.
type PortalUserStore interface {
	Create(ctx context.Context, u *PortalUser) error
	Find(ctx context.Context, id string) (*PortalUser, error)
	ListByAudit(ctx context.Context, auditID string) ([]*PortalUser, error)
	// ListForAuth returns every user that still carries a credential hash,
	// active or not, so failed logins can be attributed and logged with the
	// right reason.
	ListForAuth(ctx context.Context) ([]*PortalUser, error)
	Update(ctx context.Context, id string, upd PortalUserUpdate) (*PortalUser, error)
	Delete(ctx context.Context, id string) error
	SetSession(ctx context.Context, id, tokenHash string, expiresAt, lastLoginAt time.Time) error
	ClearSession(ctx context.Context, id string) error
	// ConsumeDownload atomically applies the fixed-window quota rules and
	// reports whether the download is permitted. It must not leave a race
	// window between the limit check and the counter write.
	ConsumeDownload(ctx context.Context, id string, now, nextReset time.Time) (bool, error)
}

// AccessLogStore appends immutable entries. There is deliberately no update
// or delete.
type AccessLogStore interface {
	Append(ctx context.Context, entry *AccessLogEntry) error
	ListByAudit(ctx context.Context, auditID string, limit int) ([]AccessLogEntry, error)
}

// RequestStore reads audit requests for the portal surface.
type RequestStore interface {
	ListByAudit(ctx context.Context, auditID, status string) ([]Request, error)
	// Find scopes by audit in the query itself so out-of-scope ids surface
	// as not-found rather than confirming existence.
	Find(ctx context.Context, auditID, id string) (*Request, error)
}

// EvidenceStore reads evidence metadata.
type EvidenceStore interface {
	ListByRequest(ctx context.Context, auditID, requestID string) ([]Evidence, error)
	Find(ctx context.Context, auditID, id string) (*Evidence, error)
}

// CommentStore persists request comments.
type CommentStore interface {
	Create(ctx context.Context, c *Comment) error
	// ListExternal returns only comments visible to external auditors,
	// filtering internal deliberation at the query level.
	ListExternal(ctx context.Context, auditID, requestID string) ([]Comment, error)
}
