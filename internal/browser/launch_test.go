package browser

import "testing"

func TestContainsFold(t *testing.T) {
	cases := []struct {
		haystack, needle string
		want             bool
	}{
		{"/usr/bin/Google Chrome --headless", "chrome", true},
		{"/usr/bin/chromium-browser", "Chromium", true},
		{"/usr/bin/firefox", "chrome", false},
		{"", "chrome", false},
		{"chrome", "", false},
		{"msedge.exe --remote-debugging-port=9222", "MSEDGE", true},
	}
	for _, c := range cases {
		if got := containsFold(c.haystack, c.needle); got != c.want {
			t.Errorf("containsFold(%q, %q) = %v, want %v", c.haystack, c.needle, got, c.want)
		}
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	const port = 19222
	defer RemovePIDFile(port)

	if got := ReadPIDFile(port); got != 0 {
		t.Fatalf("expected 0 for a missing pid file, got %d", got)
	}

	if err := WritePIDFile(port, 4242); err != nil {
		t.Fatalf("WritePIDFile failed: %v", err)
	}

	if got := ReadPIDFile(port); got != 4242 {
		t.Fatalf("ReadPIDFile = %d, want 4242", got)
	}

	if err := RemovePIDFile(port); err != nil {
		t.Fatalf("RemovePIDFile failed: %v", err)
	}
	if got := ReadPIDFile(port); got != 0 {
		t.Fatalf("expected 0 after removal, got %d", got)
	}
}

func TestRemovePIDFileIsIdempotent(t *testing.T) {
	const port = 19223
	if err := RemovePIDFile(port); err != nil {
		t.Fatalf("removing a never-created pid file should not error: %v", err)
	}
	if err := RemovePIDFile(port); err != nil {
		t.Fatalf("removing twice should not error: %v", err)
	}
}

func TestIsAliveRejectsNonPositivePID(t *testing.T) {
	if IsAlive(0) || IsAlive(-1) {
		t.Fatal("expected non-positive pids to be reported as not alive")
	}
}
