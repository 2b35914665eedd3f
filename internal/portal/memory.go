package portal

import (
	"context"
	"sort"
	"sync"
	"time"

	"auditgate.io/internal/ids"
)

// Memory implements Store with in-process concurrency safety. Used by unit
// tests and the DSN-less development mode; production runs on Postgres.
type Memory struct {
	mu       sync.RWMutex
	audits   map[string]*Audit
	users    map[string]*PortalUser
	logs     []AccessLogEntry
	requests map[string]*Request
	evidence map[string]*Evidence
	comments map[string]*Comment
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		audits:   make(map[string]*Audit),
		users:    make(map[string]*PortalUser),
		requests: make(map[string]*Request),
		evidence: make(map[string]*Evidence),
		comments: make(map[string]*Comment),
	}
}

func (m *Memory) Audits(context.Context) AuditStore           { return (*memAudits)(m) }
func (m *Memory) PortalUsers(context.Context) PortalUserStore { return (*memUsers)(m) }
func (m *Memory) AccessLogs(context.Context) AccessLogStore   { return (*memLogs)(m) }
func (m *Memory) Requests(context.Context) RequestStore       { return (*memRequests)(m) }
func (m *Memory) Evidence(context.Context) EvidenceStore      { return (*memEvidence)(m) }
func (m *Memory) Comments(context.Context) CommentStore       { return (*memComments)(m) }

// SeedAudit inserts an audit record for tests and dev mode.
func (m *Memory) SeedAudit(a Audit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = ids.New()
	}
	cp := a
	m.audits[a.ID] = &cp
}

// SeedRequest inserts a request record.
func (m *Memory) SeedRequest(r Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.New()
	}
	cp := r
	m.requests[r.ID] = &cp
}

// SeedEvidence inserts an evidence record.
func (m *Memory) SeedEvidence(e Evidence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	cp := e
	m.evidence[e.ID] = &cp
}

// SeedComment inserts a comment record (internal ones included, to exercise
// the external-only filter).
func (m *Memory) SeedComment(c Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	cp := c
	m.comments[c.ID] = &cp
}

// Audit store --------------------------------------------------------------

type memAudits Memory

func (m *memAudits) Find(_ context.Context, id string) (*Audit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.audits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAudits) FindScoped(_ context.Context, id, organizationID string) (*Audit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.audits[id]
	if !ok || a.OrganizationID != organizationID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAudits) FindByAccessCode(_ context.Context, code string) (*Audit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.audits {
		if a.AccessCode != "" && a.AccessCode == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memAudits) SetPortalEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[id]
	if !ok {
		return ErrNotFound
	}
	a.PortalEnabled = enabled
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Portal user store --------------------------------------------------------

type memUsers Memory

func (m *memUsers) Create(_ context.Context, u *PortalUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	cp := copyUser(u)
	m.users[u.ID] = cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*PortalUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *memUsers) ListByAudit(_ context.Context, auditID string) ([]*PortalUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PortalUser
	for _, u := range m.users {
		if u.AuditID == auditID {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memUsers) ListForAuth(_ context.Context) ([]*PortalUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*PortalUser
	for _, u := range m.users {
		if u.AccessCodeHash != "" {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memUsers) Update(_ context.Context, id string, upd PortalUserUpdate) (*PortalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
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
		u.AllowedIPRanges = append([]string(nil), (*upd.AllowedIPRanges)...)
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
	return copyUser(u), nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memUsers) SetSession(_ context.Context, id, tokenHash string, expiresAt, lastLoginAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	hash := tokenHash
	exp := expiresAt
	login := lastLoginAt
	u.SessionTokenHash = &hash
	u.SessionExpiresAt = &exp
	u.LastLoginAt = &login
	return nil
}

func (m *memUsers) ClearSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.SessionTokenHash = nil
	u.SessionExpiresAt = nil
	return nil
}

func (m *memUsers) ConsumeDownload(_ context.Context, id string, now, nextReset time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, ErrNotFound
	}
	if u.DownloadLimit == nil {
		return true, nil
	}
	limit := *u.DownloadLimit
	if u.DownloadsUsed < limit {
		u.DownloadsUsed++
		if u.DownloadsUsed == limit && u.DownloadLimitResetAt == nil {
			// The window anchors to the moment the limit is exhausted.
			reset := nextReset
			u.DownloadLimitResetAt = &reset
		}
		return true, nil
	}
	if u.DownloadLimitResetAt != nil && !u.DownloadLimitResetAt.After(now) {
		u.DownloadsUsed = 1
		reset := nextReset
		u.DownloadLimitResetAt = &reset
		return true, nil
	}
	return false, nil
}

// Access log store ---------------------------------------------------------

type memLogs Memory

func (m *memLogs) Append(_ context.Context, entry *AccessLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memLogs) ListByAudit(_ context.Context, auditID string, limit int) ([]AccessLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AccessLogEntry
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].AuditID == auditID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

// Entries returns a copy of every appended row, for tests.
func (m *Memory) Entries() []AccessLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AccessLogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

// Request store ------------------------------------------------------------

type memRequests Memory

func (m *memRequests) ListByAudit(_ context.Context, auditID, status string) ([]Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Request
	for _, r := range m.requests {
		if r.AuditID != auditID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memRequests) Find(_ context.Context, auditID, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok || r.AuditID != auditID {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// Evidence store -----------------------------------------------------------

type memEvidence Memory

func (m *memEvidence) ListByRequest(_ context.Context, auditID, requestID string) ([]Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Evidence
	for _, e := range m.evidence {
		if e.AuditID == auditID && e.RequestID == requestID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memEvidence) Find(_ context.Context, auditID, id string) (*Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.evidence[id]
	if !ok || e.AuditID != auditID {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Comment store ------------------------------------------------------------

type memComments Memory

func (m *memComments) Create(_ context.Context, c *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = ids.New()
	}
	cp := *c
	m.comments[c.ID] = &cp
	return nil
}

func (m *memComments) ListExternal(_ context.Context, auditID, requestID string) ([]Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Comment
	for _, c := range m.comments {
		if c.AuditID == auditID && c.RequestID == requestID && !c.Internal {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyUser(u *PortalUser) *PortalUser {
	cp := *u
	cp.AllowedIPRanges = append([]string(nil), u.AllowedIPRanges...)
	if u.DownloadLimit != nil {
		limit := *u.DownloadLimit
		cp.DownloadLimit = &limit
	}
	if u.DownloadLimitResetAt != nil {
		reset := *u.DownloadLimitResetAt
		cp.DownloadLimitResetAt = &reset
	}
	if u.SessionTokenHash != nil {
		hash := *u.SessionTokenHash
		cp.SessionTokenHash = &hash
	}
	if u.SessionExpiresAt != nil {
		exp := *u.SessionExpiresAt
		cp.SessionExpiresAt = &exp
	}
	if u.LastLoginAt != nil {
		login := *u.LastLoginAt
		cp.LastLoginAt = &login
	}
	return &cp
}
