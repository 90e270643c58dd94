package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// newEchoBCPServer serves a single WebSocket connection and runs handle on
// every decoded request, writing back whatever it returns. The accepted
// server-side connection is delivered on the returned channel so a test can
// push unsolicited events on it.
func newEchoBCPServer(t *testing.T, handle func(bcpRequest) bcpResponse) (*httptest.Server, string, chan *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		accepted <- conn
		for {
			var req bcpRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(handle(req)); err != nil {
				return
			}
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL, accepted
}

func TestBCPClientCallRoundTrips(t *testing.T) {
	srv, wsURL, _ := newEchoBCPServer(t, func(req bcpRequest) bcpResponse {
		return bcpResponse{ID: req.ID, Result: json.RawMessage(`{"echoed":true}`)}
	})
	defer srv.Close()

	c, err := dialBCP(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dialBCP failed: %v", err)
	}
	defer c.Close()

	var out struct {
		Echoed bool `json:"echoed"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.call(ctx, "Test.method", nil, &out); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if !out.Echoed {
		t.Error("expected the echoed response to be unmarshaled into out")
	}
}

func TestBCPClientCallPropagatesServerError(t *testing.T) {
	srv, wsURL, _ := newEchoBCPServer(t, func(req bcpRequest) bcpResponse {
		return bcpResponse{ID: req.ID, Error: &bcpError{Code: 42, Message: "nope"}}
	})
	defer srv.Close()

	c, err := dialBCP(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dialBCP failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = c.call(ctx, "Test.fails", nil, nil)
	if err == nil {
		t.Fatal("expected an error from the server-side bcpError")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected the server error message to surface, got %v", err)
	}
}

func TestBCPClientOnEventDispatchesToHandler(t *testing.T) {
	srv, wsURL, accepted := newEchoBCPServer(t, func(req bcpRequest) bcpResponse {
		return bcpResponse{ID: req.ID}
	})
	defer srv.Close()

	c, err := dialBCP(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dialBCP failed: %v", err)
	}
	defer c.Close()

	received := make(chan json.RawMessage, 1)
	c.onEvent("Thing.happened", func(params json.RawMessage) {
		received <- params
	})

	var serverConn *websocket.Conn
	select {
	case serverConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	evt := bcpEvent{Method: "Thing.happened", Params: json.RawMessage(`{"x":1}`)}
	raw, _ := json.Marshal(evt)
	if err := serverConn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write event: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the event handler to be invoked")
	}
}

func TestBCPClientCloseUnblocksPendingCalls(t *testing.T) {
	block := make(chan struct{})
	srv, wsURL, _ := newEchoBCPServer(t, func(req bcpRequest) bcpResponse {
		<-block
		return bcpResponse{ID: req.ID}
	})
	defer func() {
		close(block)
		srv.Close()
	}()

	c, err := dialBCP(context.Background(), wsURL)
	if err != nil {
		t.Fatalf("dialBCP failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.call(context.Background(), "Test.slow", nil, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected Close to unblock the pending call with an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not unblocked by Close")
	}
}
