package browser

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/samsolomon/relay-inspect/internal/ring"
)

// ConsoleEntry is a single rendered console message, from either a
// console.* call in the page or a browser-level log entry.
type ConsoleEntry struct {
	TimestampIso string `json:"timestampIso"`
	Level        string `json:"level"`
	Message      string `json:"message"`
}

// NetworkEntry is a completed or failed network request.
type NetworkEntry struct {
	ID           string  `json:"id"`
	URL          string  `json:"url"`
	Method       string  `json:"method"`
	Status       *int    `json:"status,omitempty"`
	TimingMs     *float64 `json:"timingMs,omitempty"`
	Error        string  `json:"error,omitempty"`
	TimestampIso string  `json:"timestampIso"`
}

// pendingRequest is a network request announced but not yet resolved.
type pendingRequest struct {
	ID             string
	URL            string
	Method         string
	StartMonotonic time.Time
	WallClockIso   string
}

// eventPipeline owns the console/network ring buffers and the pending
// request map — the "single owning component" for these aggregates.
type eventPipeline struct {
	console *ring.Buffer[ConsoleEntry]
	network *ring.Buffer[NetworkEntry]

	mu      sync.Mutex
	pending map[string]pendingRequest

	sweepStop chan struct{}
	sweepOnce sync.Once
}

func newEventPipeline(consoleCap, networkCap int) *eventPipeline {
	return &eventPipeline{
		console:   ring.New[ConsoleEntry](consoleCap),
		network:   ring.New[NetworkEntry](networkCap),
		pending:   make(map[string]pendingRequest),
		sweepStop: make(chan struct{}),
	}
}

// startSweep launches the periodic eviction of stale pending requests. Safe
// to call multiple times; only the first call starts a goroutine.
func (p *eventPipeline) startSweep() {
	p.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(60 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-p.sweepStop:
					return
				case <-ticker.C:
					p.evictStale(5 * time.Minute)
				}
			}
		}()
	})
}

// stopSweep halts the sweep goroutine and resets so a future startSweep call
// (after reconnect) starts a fresh one.
func (p *eventPipeline) stopSweep() {
	close(p.sweepStop)
	p.sweepStop = make(chan struct{})
	p.sweepOnce = sync.Once{}
}

func (p *eventPipeline) evictStale(maxAge time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for id, req := range p.pending {
		if now.Sub(req.StartMonotonic) > maxAge {
			delete(p.pending, id)
		}
	}
}

func (p *eventPipeline) clearPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make(map[string]pendingRequest)
}

// onConsoleAPICalled renders a console.* call's argument array into a
// single message string: strings verbatim, undefined as the literal
// "undefined", JSON-representable values stringified, otherwise a
// descriptive placeholder.
func (p *eventPipeline) onConsoleAPICalled(raw json.RawMessage) {
	var evt struct {
		Type string `json:"type"`
		Args []struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"args"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return
	}

	parts := make([]string, 0, len(evt.Args))
	for _, arg := range evt.Args {
		parts = append(parts, renderConsoleArg(arg.Type, arg.Value))
	}

	p.console.Push(ConsoleEntry{
		TimestampIso: time.Now().UTC().Format(time.RFC3339Nano),
		Level:        evt.Type,
		Message:      joinSpace(parts),
	})
}

func renderConsoleArg(argType string, value json.RawMessage) string {
	if argType == "undefined" || len(value) == 0 {
		return "undefined"
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s
	}
	var generic any
	if err := json.Unmarshal(value, &generic); err == nil {
		if encoded, err := json.Marshal(generic); err == nil {
			return string(encoded)
		}
	}
	return fmt.Sprintf("<%s>", argType)
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// onLogEntryAdded records a browser-level log entry, prefixed [browser].
func (p *eventPipeline) onLogEntryAdded(raw json.RawMessage) {
	var evt struct {
		Entry struct {
			Level string `json:"level"`
			Text  string `json:"text"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil {
		return
	}
	p.console.Push(ConsoleEntry{
		TimestampIso: time.Now().UTC().Format(time.RFC3339Nano),
		Level:        evt.Entry.Level,
		Message:      "[browser] " + evt.Entry.Text,
	})
}

func (p *eventPipeline) onRequestWillBeSent(raw json.RawMessage) {
	var evt struct {
		RequestID string `json:"requestId"`
		Request   struct {
			URL    string `json:"url"`
			Method string `json:"method"`
		} `json:"request"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil || evt.RequestID == "" {
		return
	}

	p.mu.Lock()
	p.pending[evt.RequestID] = pendingRequest{
		ID:             evt.RequestID,
		URL:            evt.Request.URL,
		Method:         evt.Request.Method,
		StartMonotonic: time.Now(),
		WallClockIso:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	p.mu.Unlock()
}

func (p *eventPipeline) onResponseReceived(raw json.RawMessage) {
	var evt struct {
		RequestID string `json:"requestId"`
		Response  struct {
			Status int `json:"status"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil || evt.RequestID == "" {
		return
	}

	p.mu.Lock()
	req, ok := p.pending[evt.RequestID]
	if ok {
		delete(p.pending, evt.RequestID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	timing := roundTo2(float64(time.Since(req.StartMonotonic).Microseconds()) / 1000.0)
	status := evt.Response.Status
	p.network.Push(NetworkEntry{
		ID:           req.ID,
		URL:          req.URL,
		Method:       req.Method,
		Status:       &status,
		TimingMs:     &timing,
		TimestampIso: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (p *eventPipeline) onLoadingFailed(raw json.RawMessage) {
	var evt struct {
		RequestID    string `json:"requestId"`
		ErrorText    string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &evt); err != nil || evt.RequestID == "" {
		return
	}

	p.mu.Lock()
	req, ok := p.pending[evt.RequestID]
	if ok {
		delete(p.pending, evt.RequestID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	p.network.Push(NetworkEntry{
		ID:           req.ID,
		URL:          req.URL,
		Method:       req.Method,
		Error:        evt.ErrorText,
		TimestampIso: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
