package tools

import "testing"

func TestSanitizeIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a1b2c3d4-e5f6-0000-0000-000000000000", "a1b2c3d4-e5f6-0000-0000-000000000000"},
		{"", ""},
		{"DROP TABLE", ""},
		{"abc'; alert(1)", ""},
		{"deadbeef", "deadbeef"},
	}
	for _, c := range cases {
		if got := sanitizeIdentifier(c.in); got != c.want {
			t.Errorf("sanitizeIdentifier(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncateBody(t *testing.T) {
	short := "hello"
	if got, truncated := truncateBody(short); got != short || truncated {
		t.Errorf("truncateBody(short) = (%q, %v), want (%q, false)", got, truncated, short)
	}

	long := make([]byte, maxBodyDump+100)
	for i := range long {
		long[i] = 'x'
	}
	got, truncated := truncateBody(string(long))
	if !truncated {
		t.Fatal("expected truncation for oversized body")
	}
	if len(got) != maxBodyDump {
		t.Errorf("truncated length = %d, want %d", len(got), maxBodyDump)
	}
}

func TestJSONResultEncodesValue(t *testing.T) {
	result := jsonResult(map[string]any{"ok": true})
	if result.IsError {
		t.Fatal("jsonResult of a valid value should not be an error result")
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(result.Content))
	}
}

func TestErrorResultIsMarkedError(t *testing.T) {
	result := errorResult("boom")
	if !result.IsError {
		t.Fatal("errorResult must set IsError")
	}
}
