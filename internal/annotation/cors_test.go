package annotation

import "testing"

func TestIsAllowedOrigin(t *testing.T) {
	cases := map[string]bool{
		"http://localhost:5173":  true,
		"https://127.0.0.1:8080": true,
		"http://[::1]:3000":      true,
		"http://evil.example.com": false,
		"https://example.com":    false,
		"":                       false,
		"not a url":              false,
		"ftp://localhost":        false,
	}
	for origin, want := range cases {
		if got := isAllowedOrigin(origin); got != want {
			t.Errorf("isAllowedOrigin(%q) = %v, want %v", origin, got, want)
		}
	}
}
