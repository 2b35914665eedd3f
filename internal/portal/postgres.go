package portal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"auditgate.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Audits(context.Context) AuditStore           { return &pgAudits{db: s.db} }
func (s *PGStore) PortalUsers(context.Context) PortalUserStore { return &pgUsers{db: s.db} }
func (s *PGStore) AccessLogs(context.Context) AccessLogStore   { return &pgLogs{db: s.db} }
func (s *PGStore) Requests(context.Context) RequestStore       { return &pgRequests{db: s.db} }
func (s *PGStore) Evidence(context.Context) EvidenceStore      { return &pgEvidence{db: s.db} }
func (s *PGStore) Comments(context.Context) CommentStore       { return &pgComments{db: s.db} }

// Audit store --------------------------------------------------------------

type pgAudits struct{ db *sql.DB }

const auditColumns = `id, organization_id, name, coalesce(access_code, ''), portal_enabled, portal_expires_at, created_at, updated_at`

func scanAudit(row interface{ Scan(...any) error }) (*Audit, error) {
	var (
		a       Audit
		expires sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.AccessCode, &a.PortalEnabled,
		&expires, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		a.PortalExpiresAt = &t
	}
	return &a, nil
}

func (s *pgAudits) Find(ctx context.Context, id string) (*Audit, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+auditColumns+` from audits where id=$1`, id)
	return scanAudit(row)
}

func (s *pgAudits) FindScoped(ctx context.Context, id, organizationID string) (*Audit, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+auditColumns+` from audits where id=$1 and organization_id=$2`, id, organizationID)
	return scanAudit(row)
}

func (s *pgAudits) FindByAccessCode(ctx context.Context, code string) (*Audit, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+auditColumns+` from audits where access_code=$1`, code)
	return scanAudit(row)
}

func (s *pgAudits) SetPortalEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update audits set portal_enabled=$2, updated_at=now() where id=$1`, id, enabled)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Portal user store --------------------------------------------------------

type pgUsers struct{ db *sql.DB }

const userColumns = `id, audit_id, name, email, role, access_code_hash, active, last_login_at,
	can_view_all, can_upload, can_comment, allowed_ip_ranges, enforce_ip_restriction,
	download_limit, downloads_used, download_limit_reset_at, watermark, coalesce(watermark_text, ''),
	expires_at, session_token_hash, session_expires_at, coalesce(invited_by, ''), created_at`

func scanUser(row interface{ Scan(...any) error }) (*PortalUser, error) {
	var (
		u         PortalUser
		lastLogin sql.NullTime
		ranges    []byte
		limit     sql.NullInt64
		reset     sql.NullTime
		sessHash  sql.NullString
		sessExp   sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.AuditID, &u.Name, &u.Email, &u.Role, &u.AccessCodeHash, &u.Active,
		&lastLogin, &u.CanViewAll, &u.CanUpload, &u.CanComment, &ranges, &u.EnforceIPRestriction,
		&limit, &u.DownloadsUsed, &reset, &u.Watermark, &u.WatermarkText,
		&u.ExpiresAt, &sessHash, &sessExp, &u.InvitedBy, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(ranges) > 0 {
		_ = json.Unmarshal(ranges, &u.AllowedIPRanges)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if limit.Valid {
		n := int(limit.Int64)
		u.DownloadLimit = &n
	}
	if reset.Valid {
		t := reset.Time
		u.DownloadLimitResetAt = &t
	}
	if sessHash.Valid {
		h := sessHash.String
		u.SessionTokenHash = &h
	}
	if sessExp.Valid {
		t := sessExp.Time
		u.SessionExpiresAt = &t
	}
	return &u, nil
}

func (s *pgUsers) Create(ctx context.Context, u *PortalUser) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	ranges, _ := json.Marshal(u.AllowedIPRanges)
	var limit any
	if u.DownloadLimit != nil {
		limit = *u.DownloadLimit
	}
	_, err := s.db.ExecContext(ctx,
		`insert into portal_users(id, audit_id, name, email, role, access_code_hash, active,
			can_view_all, can_upload, can_comment, allowed_ip_ranges, enforce_ip_restriction,
			download_limit, downloads_used, watermark, watermark_text, expires_at, invited_by, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,$14,$15,$16,$17,$18)`,
		u.ID, u.AuditID, u.Name, u.Email, u.Role, u.AccessCodeHash, u.Active,
		u.CanViewAll, u.CanUpload, u.CanComment, ranges, u.EnforceIPRestriction,
		limit, u.Watermark, u.WatermarkText, u.ExpiresAt, u.InvitedBy, u.CreatedAt,
	)
	return err
}

func (s *pgUsers) Find(ctx context.Context, id string) (*PortalUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from portal_users where id=$1`, id)
	return scanUser(row)
}

func (s *pgUsers) ListByAudit(ctx context.Context, auditID string) ([]*PortalUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from portal_users where audit_id=$1 order by created_at`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*PortalUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *pgUsers) ListForAuth(ctx context.Context) ([]*PortalUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from portal_users where access_code_hash <> '' order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*PortalUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *pgUsers) Update(ctx context.Context, id string, upd PortalUserUpdate) (*PortalUser, error) {
	u, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	if upd.CanViewAll != nil {
		u.CanViewAll = *upd.CanViewAll
	}
	if upd.CanUpload != nil {
		u.CanUpload = *upd.CanUpload
	}
	if upd.CanComment != nil {
		u.CanComment = *upd.CanComment
	}
	if upd.AllowedIPRanges != nil {
		u.AllowedIPRanges = *upd.AllowedIPRanges
	}
	if upd.EnforceIPRestriction != nil {
		u.EnforceIPRestriction = *upd.EnforceIPRestriction
	}
	if upd.DownloadLimit != nil {
		limit := *upd.DownloadLimit
		u.DownloadLimit = &limit
	}
	if upd.Watermark != nil {
		u.Watermark = *upd.Watermark
	}
	if upd.WatermarkText != nil {
		u.WatermarkText = *upd.WatermarkText
	}
	if upd.ExpiresAt != nil {
		u.ExpiresAt = upd.ExpiresAt.UTC()
	}

	ranges, _ := json.Marshal(u.AllowedIPRanges)
	var limit any
	if u.DownloadLimit != nil {
		limit = *u.DownloadLimit
	}
	_, err = s.db.ExecContext(ctx,
		`update portal_users set name=$2, email=$3, role=$4, active=$5,
			can_view_all=$6, can_upload=$7, can_comment=$8, allowed_ip_ranges=$9,
			enforce_ip_restriction=$10, download_limit=$11, watermark=$12,
			watermark_text=$13, expires_at=$14
		 where id=$1`,
		u.ID, u.Name, u.Email, u.Role, u.Active,
		u.CanViewAll, u.CanUpload, u.CanComment, ranges,
		u.EnforceIPRestriction, limit, u.Watermark,
		u.WatermarkText, u.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *pgUsers) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from portal_users where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUsers) SetSession(ctx context.Context, id, tokenHash string, expiresAt, lastLoginAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update portal_users set session_token_hash=$2, session_expires_at=$3, last_login_at=$4 where id=$1`,
		id, tokenHash, expiresAt, lastLoginAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgUsers) ClearSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update portal_users set session_token_hash=null, session_expires_at=null where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumeDownload applies the quota in a single conditional UPDATE so two
// concurrent downloads cannot both spend the last slot.
func (s *pgUsers) ConsumeDownload(ctx context.Context, id string, now, nextReset time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update portal_users set
			downloads_used = case
				when download_limit is null then downloads_used
				when downloads_used < download_limit then downloads_used + 1
				else 1 end,
			download_limit_reset_at = case
				when download_limit is null then download_limit_reset_at
				when downloads_used < download_limit then
					case when downloads_used + 1 = download_limit and download_limit_reset_at is null
						then $2 else download_limit_reset_at end
				else $2 end
		 where id = $1
		   and (download_limit is null
			or downloads_used < download_limit
			or (download_limit_reset_at is not null and download_limit_reset_at <= $3))`,
		id, nextReset, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	// Zero rows is either an exhausted quota or a missing user.
	if _, err := s.Find(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Access log store ---------------------------------------------------------

type pgLogs struct{ db *sql.DB }

// Append is the only write; the log has no update or delete path.
func (s *pgLogs) Append(ctx context.Context, entry *AccessLogEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	var userID any
	if entry.PortalUserID != nil {
		userID = *entry.PortalUserID
	}
	var auditID any
	if entry.AuditID != "" {
		auditID = entry.AuditID
	}
	_, err := s.db.ExecContext(ctx,
		`insert into portal_access_log(id, audit_id, portal_user_id, access_code, action,
			entity_type, entity_id, entity_name, ip_address, user_agent, success, failure_reason, metadata, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		entry.ID, auditID, userID, entry.AccessCode, entry.Action,
		entry.EntityType, entry.EntityID, entry.EntityName, entry.IPAddress, entry.UserAgent,
		entry.Success, entry.FailureReason, meta, entry.CreatedAt,
	)
	return err
}

func (s *pgLogs) ListByAudit(ctx context.Context, auditID string, limit int) ([]AccessLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, coalesce(audit_id, ''), portal_user_id, access_code, action,
			entity_type, entity_id, entity_name, ip_address, user_agent, success,
			failure_reason, metadata, created_at
		 from portal_access_log where audit_id=$1 order by created_at desc limit $2`,
		auditID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AccessLogEntry
	for rows.Next() {
		var (
			e      AccessLogEntry
			userID sql.NullString
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.AuditID, &userID, &e.AccessCode, &e.Action,
			&e.EntityType, &e.EntityID, &e.EntityName, &e.IPAddress, &e.UserAgent, &e.Success,
			&e.FailureReason, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			id := userID.String
			e.PortalUserID = &id
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Request store ------------------------------------------------------------

type pgRequests struct{ db *sql.DB }

const requestColumns = `id, audit_id, title, coalesce(description, ''), status, due_date, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	var (
		r   Request
		due sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.AuditID, &r.Title, &r.Description, &r.Status,
		&due, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if due.Valid {
		t := due.Time
		r.DueDate = &t
	}
	return &r, nil
}

func (s *pgRequests) ListByAudit(ctx context.Context, auditID, status string) ([]Request, error) {
	query := `select ` + requestColumns + ` from audit_requests where audit_id=$1`
	args := []any{auditID}
	if status != "" {
		query += ` and status=$2`
		args = append(args, status)
	}
	query += ` order by created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, rows.Err()
}

func (s *pgRequests) Find(ctx context.Context, auditID, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+requestColumns+` from audit_requests where id=$1 and audit_id=$2`, id, auditID)
	return scanRequest(row)
}

// Evidence store -----------------------------------------------------------

type pgEvidence struct{ db *sql.DB }

const evidenceColumns = `id, request_id, audit_id, file_name, coalesce(content_type, ''), size_bytes,
	coalesce(storage_key, ''), coalesce(uploaded_by, ''), created_at`

func scanEvidence(row interface{ Scan(...any) error }) (*Evidence, error) {
	var e Evidence
	if err := row.Scan(&e.ID, &e.RequestID, &e.AuditID, &e.FileName, &e.ContentType, &e.SizeBytes,
		&e.StorageKey, &e.UploadedBy, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *pgEvidence) ListByRequest(ctx context.Context, auditID, requestID string) ([]Evidence, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+evidenceColumns+` from request_evidence where audit_id=$1 and request_id=$2 order by created_at`,
		auditID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evidence []Evidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		evidence = append(evidence, *e)
	}
	return evidence, rows.Err()
}

func (s *pgEvidence) Find(ctx context.Context, auditID, id string) (*Evidence, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+evidenceColumns+` from request_evidence where id=$1 and audit_id=$2`, id, auditID)
	return scanEvidence(row)
}

// Comment store ------------------------------------------------------------

type pgComments struct{ db *sql.DB }

func (s *pgComments) Create(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into request_comments(id, request_id, audit_id, author_type, author_name, body, internal, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.RequestID, c.AuditID, c.AuthorType, c.AuthorName, c.Body, c.Internal, c.CreatedAt,
	)
	return err
}

func (s *pgComments) ListExternal(ctx context.Context, auditID, requestID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, request_id, audit_id, author_type, author_name, body, internal, created_at
		 from request_comments
		 where audit_id=$1 and request_id=$2 and internal=false order by created_at`,
		auditID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.RequestID, &c.AuditID, &c.AuthorType, &c.AuthorName,
			&c.Body, &c.Internal, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
