package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/api/auth/login":             "/api/auth/login",
		"/api/admin/apikeys":          "/api/admin/apikeys",
		"/api/admin/apikeys/abc":      "/api/admin/apikeys/:id",
		"/api/admin/apikeys/abc/x":    "/api/admin/apikeys/abc/x",
		"/api/v1/customers/42":        "/api/v1/customers/:id",
		"/api/admin/audit?limit=10":   "/api/admin/audit",
		"/api/v1/customers/42?full=1": "/api/v1/customers/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
