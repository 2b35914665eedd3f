package portal

import "time"

// LegacyUserID is the sentinel portal user id carried by sessions that were
// established with an audit-level legacy access code.
const LegacyUserID = "legacy"

// Audit is the owning entity portal access is scoped to. The wider GRC
// system owns its lifecycle; this subsystem only reads it and flips the
// portal flag.
type Audit struct {
	ID              string     `json:"id"`
	OrganizationID  string     `json:"organization_id"`
	Name            string     `json:"name"`
	AccessCode      string     `json:"-"`
	PortalEnabled   bool       `json:"portal_enabled"`
	PortalExpiresAt *time.Time `json:"portal_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// PortalUser is one named external-auditor identity with scoped, time-boxed
// access to a single audit.
type PortalUser struct {
	ID                   string     `json:"id"`
	AuditID              string     `json:"audit_id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Role                 string     `json:"role"`
	AccessCodeHash       string     `json:"-"`
	Active               bool       `json:"active"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
	CanViewAll           bool       `json:"can_view_all"`
	CanUpload            bool       `json:"can_upload"`
	CanComment           bool       `json:"can_comment"`
	AllowedIPRanges      []string   `json:"allowed_ip_ranges,omitempty"`
	EnforceIPRestriction bool       `json:"enforce_ip_restriction"`
	DownloadLimit        *int       `json:"download_limit,omitempty"`
	DownloadsUsed        int        `json:"downloads_used"`
	DownloadLimitResetAt *time.Time `json:"download_limit_reset_at,omitempty"`
	Watermark            bool       `json:"watermark"`
	WatermarkText        string     `json:"watermark_text,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
	SessionTokenHash     *string    `json:"-"`
	SessionExpiresAt     *time.Time `json:"-"`
	InvitedBy            string     `json:"invited_by"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Permissions are the per-action capability flags evaluated before every
// portal operation.
type Permissions struct {
	CanViewAll bool `json:"can_view_all"`
	CanUpload  bool `json:"can_upload"`
	CanComment bool `json:"can_comment"`
}

// Session describes an established portal session. Token is plaintext and
// only populated at mint time; it is never persisted.
type Session struct {
	Token        string      `json:"token,omitempty"`
	AuditID      string      `json:"audit_id"`
	PortalUserID string      `json:"portal_user_id"`
	Name         string      `json:"name"`
	Permissions  Permissions `json:"permissions"`
	IPAddress    string      `json:"-"`
	UserAgent    string      `json:"-"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// Legacy reports whether the session was established with an audit-level
// legacy code rather than a per-user credential.
func (s Session) Legacy() bool {
	return s.PortalUserID == LegacyUserID
}

// AccessLogEntry is one immutable record of an authentication attempt or an
// authenticated portal action. The access code is stored redacted, never in
// plaintext.
type AccessLogEntry struct {
	ID            string            `json:"id"`
	AuditID       string            `json:"audit_id,omitempty"`
	PortalUserID  *string           `json:"portal_user_id,omitempty"`
	AccessCode    string            `json:"access_code"`
	Action        string            `json:"action"`
	EntityType    string            `json:"entity_type,omitempty"`
	EntityID      string            `json:"entity_id,omitempty"`
	EntityName    string            `json:"entity_name,omitempty"`
	IPAddress     string            `json:"ip_address"`
	UserAgent     string            `json:"user_agent"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Request is an audit evidence request visible through the portal.
type Request struct {
	ID          string     `json:"id"`
	AuditID     string     `json:"audit_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Evidence is an uploaded artifact linked to a request. Binary storage is
// an external collaborator; only metadata lives here.
type Evidence struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	AuditID     string    `json:"audit_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"-"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Comment is a discussion entry on a request. Internal comments are never
// exposed through the portal.
type Comment struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	AuditID    string    `json:"audit_id"`
	AuthorType string    `json:"author_type"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	Internal   bool      `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestDetail is a request joined with its evidence and the comments an
// external auditor may see.
type RequestDetail struct {
	Request  Request    `json:"request"`
	Evidence []Evidence `json:"evidence"`
	Comments []Comment  `json:"comments"`
}

// Download is the quota-checked answer to an evidence download. The service
// hands back metadata plus watermark instructions; fetching bytes from blob
// storage happens elsewhere.
type Download struct {
	Evidence      Evidence `json:"evidence"`
	Watermark     bool     `json:"watermark"`
	WatermarkText string   `json:"watermark_text,omitempty"`
}

// NewPortalUser carries the admin-supplied attributes for creating a portal
// user. The access code is generated server-side, never chosen.
type NewPortalUser struct {
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Role                 string     `json:"role"`
	CanViewAll           bool       `json:"can_view_all"`
	CanUpload            bool       `json:"can_upload"`
	CanComment           bool       `json:"can_comment"`
	AllowedIPRanges      []string   `json:"allowed_ip_ranges"`
	EnforceIPRestriction bool       `json:"enforce_ip_restriction"`
	DownloadLimit        *int       `json:"download_limit"`
	Watermark            bool       `json:"watermark"`
	WatermarkText        string     `json:"watermark_text"`
	ExpiresAt            *time.Time `json:"expires_at"`
}

// PortalUserUpdate mutates attributes of an existing portal user. Nil
// fields are left untouched; the access code is never updatable.
type PortalUserUpdate struct {
	Name                 *string    `json:"name"`
	Email                *string    `json:"email"`
	Role                 *string    `json:"role"`
	Active               *bool      `json:"active"`
	CanViewAll           *bool      `json:"can_view_all"`
	CanUpload            *bool      `json:"can_upload"`
	CanComment           *bool      `json:"can_comment"`
	AllowedIPRanges      *[]string  `json:"allowed_ip_ranges"`
	EnforceIPRestriction *bool      `json:"enforce_ip_restriction"`
	DownloadLimit        *int       `json:"download_limit"`
	Watermark            *bool      `json:"watermark"`
	WatermarkText        *string    `json:"watermark_text"`
	ExpiresAt            *time.Time `json:"expires_at"`
}

// BulkCreateResult reports the per-item outcome of a best-effort batch
// invite. AccessCode is plaintext and only present on success.
type BulkCreateResult struct {
	Email      string `json:"email"`
	UserID     string `json:"user_id,omitempty"`
	AccessCode string `json:"access_code,omitempty"`
	Error      string `json:"error,omitempty"`
}
