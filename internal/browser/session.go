package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samsolomon/relay-inspect/internal/config"
)

var (
	ErrSessionLost    = errors.New("session lost")
	ErrTargetNotFound = errors.New("target not found")
)

const livenessWindow = 30 * time.Second

// ConnectOptions selects a page target for ConnectToPage.
type ConnectOptions struct {
	ID         string
	URLPattern string
	WaitMs     int
}

// Manager is the process-wide session manager: the single owner of the BCP
// connection, the console/network event buffers, and the pending-request
// map. All access to those aggregates goes through its methods.
type Manager struct {
	cfg *config.Config

	mu          sync.Mutex
	client      *bcpClient
	target      PageTarget
	lastSuccess time.Time

	pipeline *eventPipeline

	connectGroup singleflight.Group
	pidSweepOnce sync.Once

	hookMu        sync.Mutex
	onConnectHook func()
	onNavigateHk  func()

	// stickyPreference remembers the last explicit connectToPage selector
	// so reconnects after a disconnect re-select the same target rather
	// than falling back to the default preference order.
	stickyID  string
	stickyURL string

	launchedPID int
}

// NewManager constructs a session manager. No connection is made until the
// first call that needs one.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		pipeline: newEventPipeline(cfg.ConsoleBufferSize, cfg.NetworkBufferSize),
	}
}

// OnConnect registers a best-effort hook invoked once per successful
// connect. Hook errors are logged by the caller, never propagated.
func (m *Manager) OnConnect(hook func()) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onConnectHook = hook
}

// OnNavigate registers a best-effort hook invoked on every page load event.
func (m *Manager) OnNavigate(hook func()) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onNavigateHk = hook
}

// IsConnected is a passive check; it does not probe liveness.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// Console returns the buffered console entries.
func (m *Manager) Console() []ConsoleEntry { return m.pipeline.console.Peek() }

// DrainConsole returns and clears the buffered console entries.
func (m *Manager) DrainConsole() []ConsoleEntry { return m.pipeline.console.Drain() }

// Network returns the buffered network entries.
func (m *Manager) Network() []NetworkEntry { return m.pipeline.network.Peek() }

// DrainNetwork returns and clears the buffered network entries.
func (m *Manager) DrainNetwork() []NetworkEntry { return m.pipeline.network.Drain() }

// EnsureConnected makes sure a live session exists, connecting to the
// default target if none does yet, without selecting any particular page.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	return m.ensureConnected(ctx)
}

// ensureConnected implements the fast-path / liveness / reconnect cascade.
// Concurrent callers collapse onto a single in-flight attempt via
// singleflight.
func (m *Manager) ensureConnected(ctx context.Context) error {
	m.mu.Lock()
	if m.client != nil && time.Since(m.lastSuccess) < livenessWindow {
		m.mu.Unlock()
		return nil
	}
	if m.client != nil {
		// Liveness probe: a cheap round trip.
		client := m.client
		m.mu.Unlock()
		var dummy json.RawMessage
		if err := client.call(ctx, "Runtime.evaluate", map[string]any{"expression": "1", "returnByValue": true}, &dummy); err == nil {
			m.mu.Lock()
			m.lastSuccess = time.Now()
			m.mu.Unlock()
			return nil
		}
		m.teardownLocked()
	} else {
		m.mu.Unlock()
	}

	_, err, _ := m.connectGroup.Do("connect", func() (any, error) {
		return nil, m.connect(ctx)
	})
	return err
}

// teardownLocked closes and nulls the session and clears pipeline state. It
// acquires m.mu itself, so the caller must not be holding it.
func (m *Manager) teardownLocked() {
	m.mu.Lock()
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
	m.mu.Unlock()
	m.pipeline.clearPending()
	m.pipeline.stopSweep()
}

func (m *Manager) sweepPIDFileOnce() {
	m.pidSweepOnce.Do(func() {
		pid := ReadPIDFile(m.cfg.DebugPort)
		if pid == 0 {
			return
		}
		if IsAlive(pid) && IsBrowserProcess(pid) {
			_ = Kill(pid)
		}
		_ = RemovePIDFile(m.cfg.DebugPort)
	})
}

// connect performs the full discover/launch/select/enable-domains sequence
// with retry/backoff.
func (m *Manager) connect(ctx context.Context) error {
	m.sweepPIDFileOnce()

	backoffs := []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffs[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		target, client, err := m.discoverAndDial(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		if err := m.enableDomains(ctx, client); err != nil {
			_ = client.Close()
			lastErr = err
			continue
		}

		m.attachHandlers(client)

		m.mu.Lock()
		m.client = client
		m.target = target
		m.lastSuccess = time.Now()
		m.mu.Unlock()

		m.pipeline.startSweep()

		m.hookMu.Lock()
		hook := m.onConnectHook
		m.hookMu.Unlock()
		if hook != nil {
			safeCall(hook)
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrBrowserUnreachable, lastErr)
}

// discoverAndDial lists targets, selects one per the sticky preference or
// default order, and dials its WebSocket — launching the browser first if
// discovery failed and auto-launch is permitted.
func (m *Manager) discoverAndDial(ctx context.Context) (PageTarget, *bcpClient, error) {
	if m.cfg.DirectWSURL != "" {
		target := PageTarget{ID: "direct", WebSocketDebuggerURL: m.cfg.DirectWSURL}
		client, err := dialBCP(ctx, target.WebSocketDebuggerURL)
		if err != nil {
			return PageTarget{}, nil, fmt.Errorf("%w: %v", ErrBrowserUnreachable, err)
		}
		return target, client, nil
	}

	targets, err := listTargets(ctx, m.cfg.DebugHost, m.cfg.DebugPort)
	if err != nil || len(targets) == 0 {
		if !m.cfg.AutoLaunch {
			return PageTarget{}, nil, fmt.Errorf("%w: discovery failed and auto-launch disabled: %v", ErrBrowserUnreachable, err)
		}

		execPath, found := Locate(m.cfg.BrowserPath)
		if !found {
			return PageTarget{}, nil, fmt.Errorf("%w: no browser executable found", ErrBrowserUnreachable)
		}
		handle, launchErr := Launch(ctx, execPath, m.cfg.DebugHost, m.cfg.DebugPort, m.cfg.LaunchURL)
		if launchErr != nil {
			return PageTarget{}, nil, launchErr
		}
		m.launchedPID = handle.PID
		if err := WritePIDFile(m.cfg.DebugPort, handle.PID); err != nil {
			return PageTarget{}, nil, fmt.Errorf("browser: write pid file: %w", err)
		}

		targets, err = listTargets(ctx, m.cfg.DebugHost, m.cfg.DebugPort)
		if err != nil || len(targets) == 0 {
			return PageTarget{}, nil, fmt.Errorf("%w: launched but no targets: %v", ErrBrowserUnreachable, err)
		}
	}

	target, ok := matchTarget(targets, m.stickyID, m.stickyURL)
	if !ok {
		return PageTarget{}, nil, fmt.Errorf("%w: no matching target", ErrTargetNotFound)
	}

	client, err := dialBCP(ctx, target.WebSocketDebuggerURL)
	if err != nil {
		return PageTarget{}, nil, err
	}
	return target, client, nil
}

func (m *Manager) enableDomains(ctx context.Context, client *bcpClient) error {
	domains := []string{"Runtime.enable", "Network.enable", "DOM.enable", "Page.enable", "Log.enable"}
	var wg sync.WaitGroup
	errs := make([]error, len(domains))
	for i, method := range domains {
		wg.Add(1)
		go func(i int, method string) {
			defer wg.Done()
			errs[i] = client.call(ctx, method, nil, nil)
		}(i, method)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) attachHandlers(client *bcpClient) {
	client.onEvent("Runtime.consoleAPICalled", m.pipeline.onConsoleAPICalled)
	client.onEvent("Log.entryAdded", m.pipeline.onLogEntryAdded)
	client.onEvent("Network.requestWillBeSent", m.pipeline.onRequestWillBeSent)
	client.onEvent("Network.responseReceived", m.pipeline.onResponseReceived)
	client.onEvent("Network.loadingFailed", m.pipeline.onLoadingFailed)
	client.onEvent("Page.loadEventFired", func(json.RawMessage) {
		m.hookMu.Lock()
		hook := m.onNavigateHk
		m.hookMu.Unlock()
		if hook != nil {
			go safeCall(hook)
		}
	})

	go func() {
		<-client.Done()
		m.mu.Lock()
		if m.client == client {
			m.client = nil
		}
		m.mu.Unlock()
		m.pipeline.clearPending()
		m.pipeline.stopSweep()
	}()
}

func safeCall(hook func()) {
	defer func() { _ = recover() }()
	hook()
}

// ConnectToPage explicitly selects a page target by id or URL pattern,
// optionally polling until it appears.
func (m *Manager) ConnectToPage(ctx context.Context, opts ConnectOptions) (PageTarget, error) {
	if opts.ID != "" {
		m.stickyID, m.stickyURL = opts.ID, ""
	} else if opts.URLPattern != "" {
		m.stickyID, m.stickyURL = "", opts.URLPattern
	}

	pollInterval := 300 * time.Millisecond
	if opts.WaitMs > 0 && time.Duration(opts.WaitMs)*time.Millisecond < pollInterval {
		pollInterval = time.Duration(opts.WaitMs) * time.Millisecond
	}
	deadline := time.Now().Add(time.Duration(opts.WaitMs) * time.Millisecond)

	for {
		targets, err := listTargets(ctx, m.cfg.DebugHost, m.cfg.DebugPort)
		if err == nil {
			if target, ok := matchTarget(targets, opts.ID, opts.URLPattern); ok {
				m.mu.Lock()
				stale := m.client != nil && m.target.ID != target.ID
				m.mu.Unlock()
				if stale {
					m.teardownLocked()
				}
				if err := m.ensureConnected(ctx); err != nil {
					return PageTarget{}, err
				}
				return target, nil
			}
		}

		if opts.WaitMs <= 0 || time.Now().After(deadline) {
			return PageTarget{}, ErrTargetNotFound
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return PageTarget{}, ctx.Err()
		}
	}
}

// withClient ensures a connection and runs fn with the live client, mapping
// a connection failure into an error the caller can surface directly.
func (m *Manager) withClient(ctx context.Context, fn func(*bcpClient) error) error {
	if err := m.ensureConnected(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client == nil {
		return ErrSessionLost
	}
	if err := fn(client); err != nil {
		select {
		case <-client.Done():
			return fmt.Errorf("%w: %v", ErrSessionLost, err)
		default:
			return err
		}
	}
	return nil
}

// Evaluate runs a JS expression in the page with a 10s timeout and returns
// the raw JSON of the result's value (nil for undefined), or an
// EvaluationException-shaped error if the page script threw.
func (m *Manager) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var result struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}

	err := m.withClient(ctx, func(c *bcpClient) error {
		return c.call(ctx, "Runtime.evaluate", map[string]any{
			"expression":    expression,
			"returnByValue": true,
			"awaitPromise":  true,
		}, &result)
	})
	if err != nil {
		return nil, err
	}
	if result.ExceptionDetails != nil {
		msg := result.ExceptionDetails.Text
		if result.ExceptionDetails.Exception != nil && result.ExceptionDetails.Exception.Description != "" {
			msg = result.ExceptionDetails.Exception.Description
		}
		return nil, fmt.Errorf("evaluation exception: %s", msg)
	}
	return result.Result.Value, nil
}

// EvaluateBestEffort evaluates an expression, logging and swallowing any
// error. Used for the processing-state push and overlay injection, which
// must never fail a tool call.
func (m *Manager) EvaluateBestEffort(ctx context.Context, expression string) {
	if !m.IsConnected() {
		return
	}
	if _, err := m.Evaluate(ctx, expression); err != nil {
		log.Printf("browser: best-effort evaluate: %v", err)
	}
}

// Navigate loads url in the page target; scheme restriction is the tool
// surface's responsibility.
func (m *Manager) Navigate(ctx context.Context, url string) error {
	return m.withClient(ctx, func(c *bcpClient) error {
		return c.call(ctx, "Page.navigate", map[string]any{"url": url}, nil)
	})
}

// Reload refreshes the current page.
func (m *Manager) Reload(ctx context.Context) error {
	return m.withClient(ctx, func(c *bcpClient) error {
		return c.call(ctx, "Page.reload", nil, nil)
	})
}

// QuerySelectorAll returns the outer HTML of every element matching
// selector.
func (m *Manager) QuerySelectorAll(ctx context.Context, selector string) ([]string, error) {
	raw, err := m.Evaluate(ctx, fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(function(e){return e.outerHTML;})`, selector))
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("browser: decode query result: %w", err)
	}
	return out, nil
}

// NetworkResponseBody fetches the response body for a completed request.
func (m *Manager) NetworkResponseBody(ctx context.Context, requestID string) (string, bool, error) {
	var result struct {
		Body          string `json:"body"`
		Base64Encoded bool   `json:"base64Encoded"`
	}
	err := m.withClient(ctx, func(c *bcpClient) error {
		return c.call(ctx, "Network.getResponseBody", map[string]any{"requestId": requestID}, &result)
	})
	if err != nil {
		return "", false, err
	}
	return result.Body, result.Base64Encoded, nil
}

// ScreenshotClip is a viewport-relative capture rectangle.
type ScreenshotClip struct {
	X, Y, Width, Height float64
}

// CaptureScreenshot requests a PNG screenshot, optionally clipped, and
// returns it as a data: URL.
func (m *Manager) CaptureScreenshot(ctx context.Context, clip *ScreenshotClip) (string, error) {
	params := map[string]any{"format": "png"}
	if clip != nil {
		params["clip"] = map[string]any{
			"x": clip.X, "y": clip.Y, "width": clip.Width, "height": clip.Height, "scale": 1,
		}
	}

	var result struct {
		Data string `json:"data"`
	}
	err := m.withClient(ctx, func(c *bcpClient) error {
		return c.call(ctx, "Page.captureScreenshot", params, &result)
	})
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + result.Data, nil
}

// Shutdown closes the session gracefully.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
	m.pipeline.clearPending()
	return nil
}

// ShutdownSync is the synchronous, best-effort last-resort form used from a
// crash/exit handler.
func (m *Manager) ShutdownSync() {
	_ = m.Shutdown(context.Background())
	if m.launchedPID != 0 {
		_ = RemovePIDFile(m.cfg.DebugPort)
	}
}
