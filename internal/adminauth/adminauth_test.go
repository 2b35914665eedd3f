package adminauth

import (
	"context"
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("AUDITGATE_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidate(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("admin-1", "org-1", []string{"Portal_Admin", "viewer", "portal_admin"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "admin-1" || claims.OrganizationID != "org-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "portal_admin" || claims.Roles[1] != "viewer" {
		t.Fatalf("roles must be normalized and deduplicated: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("token must carry a jti")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	setSecret(t)

	if _, err := GenerateToken("", "org-1", nil, time.Minute); err == nil {
		t.Fatalf("empty user must fail")
	}
	if _, err := GenerateToken("admin-1", "", nil, time.Minute); err == nil {
		t.Fatalf("empty organization must fail")
	}
	if _, err := GenerateToken("admin-1", "org-1", nil, 0); err == nil {
		t.Fatalf("zero ttl must fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("admin-1", "org-1", nil, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	setSecret(t)
	token, err := GenerateToken("admin-1", "org-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	t.Setenv("AUDITGATE_AUTH_SECRET", "different-secret")
	ResetSecretForTests()
	if _, err := ParseAndValidate(token); err != ErrInvalidToken {
		t.Fatalf("wrong secret: want ErrInvalidToken, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("AUDITGATE_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken("admin-1", "org-1", nil, time.Minute); err == nil {
		t.Fatalf("missing secret must fail")
	}
}

func TestIdentityContextRoundTrip(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("empty context must not yield an identity")
	}

	id := Identity{UserID: "admin-1", OrganizationID: "org-1", Roles: []string{"portal_admin"}}
	ctx := ContextWithIdentity(context.Background(), id)
	got, ok := IdentityFromContext(ctx)
	if !ok || got.UserID != "admin-1" || got.OrganizationID != "org-1" {
		t.Fatalf("round trip failed: %+v %v", got, ok)
	}

	if !got.HasRole("Portal_Admin") {
		t.Fatalf("role check must be case-insensitive")
	}
	if got.HasRole("owner") {
		t.Fatalf("missing role must report false")
	}
}
