package httpapi

import "testing"

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"plain":            {"Bearer abc123", "abc123", true},
		"case insensitive": {"bearer abc123", "abc123", true},
		"padded":           {"  Bearer   abc123  ", "abc123", true},
		"empty":            {"", "", false},
		"wrong scheme":     {"Basic abc123", "", false},
		"scheme only":      {"Bearer ", "", false},
	}
	for name, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.ok && (err != nil || token != tc.token) {
			t.Errorf("%s: got %q, %v", name, token, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestIsPublicPath(t *testing.T) {
	public := []string{"/v1/auth/login", "/v1/auth/refresh", "/healthz", "/readyz", "/metrics", "/v1/info", "/"}
	for _, p := range public {
		if !isPublicPath(p) {
			t.Errorf("%s should be public", p)
		}
	}
	private := []string{"/v1/tasks", "/v1/auth/logout", "/v1/auth/profile", "/v1/users", "/v1/grids"}
	for _, p := range private {
		if isPublicPath(p) {
			t.Errorf("%s should require auth", p)
		}
	}
}
