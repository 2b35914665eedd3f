package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                          "/",
		"/metrics":                                  "/metrics",
		"/v1/audit-portal/requests":                 "/v1/audit-portal/requests",
		"/v1/audit-portal/requests/abc":             "/v1/audit-portal/requests/:id",
		"/v1/audit-portal/requests/abc/comments":    "/v1/audit-portal/requests/:id/comments",
		"/v1/audit-portal/evidence/abc/download":    "/v1/audit-portal/evidence/:id/download",
		"/v1/audits/abc/portal/users":               "/v1/audits/:id/portal/users",
		"/v1/audits/abc/portal/users/def":           "/v1/audits/:id/portal/users/:id",
		"/v1/audits/abc/portal/users/bulk":          "/v1/audits/:id/portal/users/bulk",
		"/v1/audits/abc/portal/logs":                "/v1/audits/:id/portal/logs",
		"/v1/audits/abc/portal/logs?limit=10":       "/v1/audits/:id/portal/logs",
		"/v1/audit-portal/auth":                     "/v1/audit-portal/auth",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
