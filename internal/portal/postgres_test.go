package portal

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGStore(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

var userRowColumns = []string{
	"id", "audit_id", "name", "email", "role", "access_code_hash", "active", "last_login_at",
	"can_view_all", "can_upload", "can_comment", "allowed_ip_ranges", "enforce_ip_restriction",
	"download_limit", "downloads_used", "download_limit_reset_at", "watermark", "watermark_text",
	"expires_at", "session_token_hash", "session_expires_at", "invited_by", "created_at",
}

func TestPGFindUser(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(userRowColumns).AddRow(
		"pu-1", "aud-1", "Jane", "jane@example.com", "auditor", "$2a$12$hash", true, nil,
		true, false, true, []byte(`["10.0.0.0/24"]`), true,
		int64(5), 2, nil, true, "CONFIDENTIAL",
		now.Add(30*24*time.Hour), "deadbeef", now.Add(24*time.Hour), "admin-1", now,
	)
	mock.ExpectQuery(regexp.QuoteMeta(`from portal_users where id=$1`)).
		WithArgs("pu-1").
		WillReturnRows(rows)

	u, err := store.PortalUsers(context.Background()).Find(context.Background(), "pu-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.ID != "pu-1" || u.Email != "jane@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if len(u.AllowedIPRanges) != 1 || u.AllowedIPRanges[0] != "10.0.0.0/24" {
		t.Fatalf("ip ranges not decoded: %+v", u.AllowedIPRanges)
	}
	if u.DownloadLimit == nil || *u.DownloadLimit != 5 || u.DownloadsUsed != 2 {
		t.Fatalf("quota fields not decoded: %+v", u)
	}
	if u.SessionTokenHash == nil || *u.SessionTokenHash != "deadbeef" {
		t.Fatalf("session hash not decoded: %+v", u.SessionTokenHash)
	}
	if u.LastLoginAt != nil || u.DownloadLimitResetAt != nil {
		t.Fatalf("null columns must decode to nil pointers")
	}
}

func TestPGFindUserNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`from portal_users where id=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.PortalUsers(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPGConsumeDownload(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	reset := now.Add(24 * time.Hour)

	t.Run("allowed", func(t *testing.T) {
		store, mock, done := newMockStore(t)
		defer done()

		mock.ExpectExec(regexp.QuoteMeta(`update portal_users set`)).
			WithArgs("pu-1", reset, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := store.PortalUsers(context.Background()).ConsumeDownload(context.Background(), "pu-1", now, reset)
		if err != nil || !ok {
			t.Fatalf("want allowed, got (%v, %v)", ok, err)
		}
	})

	t.Run("denied", func(t *testing.T) {
		store, mock, done := newMockStore(t)
		defer done()

		mock.ExpectExec(regexp.QuoteMeta(`update portal_users set`)).
			WithArgs("pu-1", reset, now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		rows := sqlmock.NewRows(userRowColumns).AddRow(
			"pu-1", "aud-1", "Jane", "jane@example.com", "", "$2a$12$hash", true, nil,
			true, false, true, []byte(`[]`), false,
			int64(2), 2, reset, false, "",
			now.Add(30*24*time.Hour), nil, nil, "", now,
		)
		mock.ExpectQuery(regexp.QuoteMeta(`from portal_users where id=$1`)).
			WithArgs("pu-1").
			WillReturnRows(rows)

		ok, err := store.PortalUsers(context.Background()).ConsumeDownload(context.Background(), "pu-1", now, reset)
		if err != nil || ok {
			t.Fatalf("want denied, got (%v, %v)", ok, err)
		}
	})

	t.Run("missing user", func(t *testing.T) {
		store, mock, done := newMockStore(t)
		defer done()

		mock.ExpectExec(regexp.QuoteMeta(`update portal_users set`)).
			WithArgs("missing", reset, now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`from portal_users where id=$1`)).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := store.PortalUsers(context.Background()).ConsumeDownload(context.Background(), "missing", now, reset)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}

func TestPGAppendAccessLog(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`insert into portal_access_log`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &AccessLogEntry{
		AuditID:    "aud-1",
		AccessCode: "AUD-****",
		Action:     ActionAuth,
		IPAddress:  "203.0.113.7",
		UserAgent:  "go-test",
		Success:    true,
		CreatedAt:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := store.AccessLogs(context.Background()).Append(context.Background(), entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.ID == "" {
		t.Fatalf("append must assign an id")
	}
}

func TestPGListExternalComments(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "request_id", "audit_id", "author_type", "author_name", "body", "internal", "created_at"}).
		AddRow("c-1", "req-1", "aud-1", AuthorTypeExternal, "Jane", "looks good", false, now)
	mock.ExpectQuery(regexp.QuoteMeta(`internal=false`)).
		WithArgs("aud-1", "req-1").
		WillReturnRows(rows)

	comments, err := store.Comments(context.Background()).ListExternal(context.Background(), "aud-1", "req-1")
	if err != nil {
		t.Fatalf("ListExternal: %v", err)
	}
	if len(comments) != 1 || comments[0].Internal {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestPGDeleteUserNotFound(t *testing.T) {
	store, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(regexp.QuoteMeta(`delete from portal_users where id=$1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.PortalUsers(context.Background()).Delete(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
