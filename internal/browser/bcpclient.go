package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// bcpClient is a thin request/response + event-subscription client over a
// single BCP WebSocket connection to one page target.
type bcpClient struct {
	conn *websocket.Conn

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan bcpResponse

	eventMu sync.RWMutex
	events  map[string][]func(json.RawMessage)

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

type bcpRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type bcpResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *bcpError       `json:"error,omitempty"`
}

type bcpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *bcpError) Error() string { return fmt.Sprintf("bcp: %d %s", e.Code, e.Message) }

type bcpEvent struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// dialBCP opens a WebSocket connection to a page target's debugger URL.
func dialBCP(ctx context.Context, wsURL string) (*bcpClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("bcp: dial: %w", err)
	}

	c := &bcpClient{
		conn:    conn,
		pending: make(map[int64]chan bcpResponse),
		events:  make(map[string][]func(json.RawMessage)),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// onEvent registers a handler for a BCP event method. Handlers run
// synchronously on the read loop; they must not block.
func (c *bcpClient) onEvent(method string, handler func(json.RawMessage)) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.events[method] = append(c.events[method], handler)
}

// call issues a request and waits for its matching response or ctx
// cancellation.
func (c *bcpClient) call(ctx context.Context, method string, params any, out any) error {
	id := c.nextID.Add(1)
	respCh := make(chan bcpResponse, 1)

	c.mu.Lock()
	c.pending[id] = respCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := bcpRequest{ID: id, Method: method, Params: params}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("bcp: write %s: %w", method, err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return c.closeErr
	}
}

func (c *bcpClient) readLoop() {
	defer c.shutdown(fmt.Errorf("bcp: connection closed"))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("bcp: read: %w", err))
			return
		}

		var probe struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			continue
		}

		if probe.ID != nil {
			var resp bcpResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		var evt bcpEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		c.eventMu.RLock()
		handlers := append([]func(json.RawMessage){}, c.events[evt.Method]...)
		c.eventMu.RUnlock()
		for _, h := range handlers {
			h(evt.Params)
		}
	}
}

func (c *bcpClient) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *bcpClient) Done() <-chan struct{} { return c.closed }

func (c *bcpClient) Close() error {
	c.shutdown(fmt.Errorf("bcp: closed by caller"))
	return nil
}
