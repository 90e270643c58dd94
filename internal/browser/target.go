package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// PageTarget is one navigable tab discovered via the browser's HTTP
// inspection endpoint.
type PageTarget struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

var internalSchemes = []string{"devtools://", "chrome://", "edge://", "chrome-extension://", "about:"}

// isInternalURL reports whether a target URL is browser-internal and
// therefore should be de-prioritized during selection.
func isInternalURL(rawURL string) bool {
	for _, prefix := range internalSchemes {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

func isLoopbackHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return loopbackHosts[u.Hostname()]
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// listTargets fetches the page-type targets from the browser's HTTP
// inspection endpoint.
func listTargets(ctx context.Context, host string, port int) ([]PageTarget, error) {
	url := fmt.Sprintf("http://%s:%d/json/list", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("browser: list targets: status %d", resp.StatusCode)
	}

	var all []PageTarget
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, fmt.Errorf("browser: decode targets: %w", err)
	}

	pages := make([]PageTarget, 0, len(all))
	for _, t := range all {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

// chooseDefaultTarget applies the preference order: first non-internal
// loopback-HTTP target, else first non-internal HTTP(S) target, else first
// non-internal target, else the very first target.
func chooseDefaultTarget(targets []PageTarget) (PageTarget, bool) {
	if len(targets) == 0 {
		return PageTarget{}, false
	}

	var firstLoopback, firstHTTP, firstNonInternal *PageTarget
	for i := range targets {
		t := &targets[i]
		if isInternalURL(t.URL) {
			continue
		}
		if firstNonInternal == nil {
			firstNonInternal = t
		}
		if firstHTTP == nil && isHTTP(t.URL) {
			firstHTTP = t
		}
		if firstLoopback == nil && isLoopbackHTTP(t.URL) {
			firstLoopback = t
		}
	}

	switch {
	case firstLoopback != nil:
		return *firstLoopback, true
	case firstHTTP != nil:
		return *firstHTTP, true
	case firstNonInternal != nil:
		return *firstNonInternal, true
	default:
		return targets[0], true
	}
}

// matchTarget resolves a user-supplied id (exact match) or URL pattern
// (case-insensitive substring match), applying the same preference order
// among the matches that chooseDefaultTarget applies globally.
func matchTarget(targets []PageTarget, id, urlPattern string) (PageTarget, bool) {
	if id != "" {
		for _, t := range targets {
			if t.ID == id {
				return t, true
			}
		}
		return PageTarget{}, false
	}

	if urlPattern != "" {
		pattern := strings.ToLower(urlPattern)
		var matches []PageTarget
		for _, t := range targets {
			if strings.Contains(strings.ToLower(t.URL), pattern) {
				matches = append(matches, t)
			}
		}
		return chooseDefaultTarget(matches)
	}

	return chooseDefaultTarget(targets)
}
