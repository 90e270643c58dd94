package annotation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer()
	port, err := s.Start(0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(nil) })
	return s, "http://127.0.0.1:" + strconv.Itoa(port)
}

func validBody() string {
	return `{"url":"http://example.com","selector":"#a","selectorConfidence":"stable","text":"fix this",` +
		`"viewport":{"width":1024,"height":768}}`
}

func TestServerRootReportsStatus(t *testing.T) {
	_, base := startTestServer(t)

	resp, err := http.Get(base + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status field = %v, want ok", out["status"])
	}
}

func TestServerUnknownRouteReturns404JSON(t *testing.T) {
	_, base := startTestServer(t)

	resp, err := http.Get(base + "/totally-unknown")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("expected a JSON body on 404, decode failed: %v", err)
	}
	if out["error"] == "" {
		t.Error("expected a non-empty error field on the 404 body")
	}
}

func TestServerPreflightRequestIsShortCircuited(t *testing.T) {
	_, base := startTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, base+"/annotations", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q, want the echoed loopback origin", got)
	}
}

func TestServerCreateListPatchResolveDeleteFlow(t *testing.T) {
	_, base := startTestServer(t)

	createResp, err := http.Post(base+"/annotations", "application/json", bytes.NewBufferString(validBody()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", createResp.StatusCode)
	}
	var created map[string]string
	if err := json.NewDecoder(createResp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id := created["id"]
	if id == "" {
		t.Fatal("expected a non-empty id on create")
	}

	listResp, err := http.Get(base + "/annotations")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list []Annotation
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("expected the created annotation in the list, got %+v", list)
	}

	patchReq, err := http.NewRequest(http.MethodPatch, base+"/annotations/"+id, bytes.NewBufferString(`{"text":"updated"}`))
	if err != nil {
		t.Fatalf("build patch request: %v", err)
	}
	patchResp, err := http.DefaultClient.Do(patchReq)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	defer patchResp.Body.Close()
	if patchResp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d, want 200", patchResp.StatusCode)
	}
	var patched Annotation
	if err := json.NewDecoder(patchResp.Body).Decode(&patched); err != nil {
		t.Fatalf("decode patch response: %v", err)
	}
	if patched.Text != "updated" {
		t.Errorf("patched text = %q, want updated", patched.Text)
	}

	resolveResp, err := http.Post(base+"/annotations/"+id+"/resolve", "application/json", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resolveResp.Body.Close()
	if resolveResp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resolveResp.StatusCode)
	}
	var resolved Annotation
	if err := json.NewDecoder(resolveResp.Body).Decode(&resolved); err != nil {
		t.Fatalf("decode resolve response: %v", err)
	}
	if resolved.Status != StatusResolved {
		t.Errorf("status after resolve = %q, want resolved", resolved.Status)
	}

	delReq, err := http.NewRequest(http.MethodDelete, base+"/annotations/"+id, nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", delResp.StatusCode)
	}
}

func TestServerResolveUnknownIDReturns404(t *testing.T) {
	_, base := startTestServer(t)

	resp, err := http.Post(base+"/annotations/does-not-exist/resolve", "application/json", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServerCreateRejectsInvalidBody(t *testing.T) {
	_, base := startTestServer(t)

	resp, err := http.Post(base+"/annotations", "application/json", bytes.NewBufferString(`not json`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerSendTriggersRendezvousAndNotify(t *testing.T) {
	s, base := startTestServer(t)

	notified := make(chan int, 1)
	s.OnSendNotify(func(openCount int) { notified <- openCount })

	createResp, err := http.Post(base+"/annotations", "application/json", bytes.NewBufferString(validBody()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	createResp.Body.Close()

	sendResp, err := http.Post(base+"/annotations/send", "application/json", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	defer sendResp.Body.Close()
	if sendResp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d, want 200", sendResp.StatusCode)
	}

	if !s.ConsumeSentState() {
		t.Error("expected the send rendezvous to have latched a sent state")
	}
	select {
	case n := <-notified:
		if n != 1 {
			t.Errorf("notified open count = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected OnSendNotify to have been invoked")
	}
}

func TestServerDeleteAllClearsCollection(t *testing.T) {
	_, base := startTestServer(t)

	for i := 0; i < 3; i++ {
		resp, err := http.Post(base+"/annotations", "application/json", bytes.NewBufferString(validBody()))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		resp.Body.Close()
	}

	delReq, err := http.NewRequest(http.MethodDelete, base+"/annotations", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n, ok := out["deleted"].(float64); !ok || int(n) != 3 {
		t.Errorf("deleted count = %v, want 3", out["deleted"])
	}

	listResp, err := http.Get(base + "/annotations")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list []Annotation
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected an empty collection after delete-all, got %d entries", len(list))
	}
}
