package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxWaitMs = 600000

// ScreenshotFunc captures a clipped screenshot of the current page,
// returning a data: URL. Injected by the session manager.
type ScreenshotFunc func(ctx context.Context, rect *Rect) (string, error)

// SendNotifyFunc is invoked after every send, with the number of
// currently-open annotations.
type SendNotifyFunc func(openCount int)

// Server is the process-wide annotation service: one HTTP listener, one
// annotation store, one send rendezvous.
type Server struct {
	store      *store
	rendezvous *sendRendezvous

	mu           sync.Mutex
	onScreenshot ScreenshotFunc
	onSendNotify SendNotifyFunc

	httpSrv *http.Server
	port    int
}

func NewServer() *Server {
	return &Server{
		store:      newStore(),
		rendezvous: newSendRendezvous(),
	}
}

func (s *Server) OnScreenshot(fn ScreenshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onScreenshot = fn
}

func (s *Server) OnSendNotify(fn SendNotifyFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSendNotify = fn
}

// Start binds to the loopback address at basePort, falling back to the
// next three consecutive ports on conflict, and begins serving.
func (s *Server) Start(basePort int) (int, error) {
	var lastErr error
	for i := 0; i <= PortFallbackTry; i++ {
		port := basePort + i
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}

		if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcpAddr.Port
		}

		mux := http.NewServeMux()
		s.registerRoutes(mux)
		s.httpSrv = &http.Server{Handler: mux}
		s.port = port

		go func() {
			if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Printf("annotation: serve: %v", err)
			}
		}()
		return port, nil
	}
	return 0, fmt.Errorf("annotation: could not bind ports %d..%d: %w", basePort, basePort+PortFallbackTry, lastErr)
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", corsMiddleware(s.handleRoot))
	mux.HandleFunc("/annotations", corsMiddleware(s.handleCollection))
	mux.HandleFunc("/annotations/send", corsMiddleware(s.handleSend))
	mux.HandleFunc("/annotations/", corsMiddleware(s.handleItem))
}

// handleRoot is registered on "/", which net/http.ServeMux treats as a
// subtree pattern matching every otherwise-unclaimed path. Reject anything
// but the literal root so unknown routes 404 with a JSON body instead of
// silently reporting service status.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(s.store.list()),
		"port":   s.port,
	})
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.list())

	case http.MethodPost:
		s.handleCreate(w, r)

	case http.MethodDelete:
		n := s.store.deleteAll()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readLimited(w, r, MaxBodyBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	in, err := decodeCreate(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ann, err := s.store.create(in)
	switch {
	case err == ErrQuotaExceeded:
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "annotation quota exceeded"})
		return
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.maybeCaptureScreenshot(ann.ID, in)

	writeJSON(w, http.StatusCreated, map[string]string{"id": ann.ID})
}

// maybeCaptureScreenshot invokes the registered screenshot callback when
// the create input carried a non-degenerate rect. Best-effort: a failure
// is logged and the annotation keeps no screenshot, but creation already
// succeeded.
func (s *Server) maybeCaptureScreenshot(id string, in CreateInput) {
	rect := in.ElementRect
	if rect == nil && len(in.Elements) > 0 {
		rect = in.Elements[0].Rect
	}
	if rect == nil || rect.Width <= 0 || rect.Height <= 0 {
		return
	}

	s.mu.Lock()
	fn := s.onScreenshot
	s.mu.Unlock()
	if fn == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dataURL, err := fn(ctx, rect)
		if err != nil {
			log.Printf("annotation: screenshot capture failed for %s: %v", id, err)
			return
		}
		s.store.attachScreenshot(id, dataURL)
	}()
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/annotations/")
	if rest == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if id, ok := strings.CutSuffix(rest, "/resolve"); ok {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		ann, err := s.store.resolve(id)
		if err == ErrNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, ann)
		return
	}

	id := rest
	switch r.Method {
	case http.MethodPatch:
		s.handlePatch(w, r, id)

	case http.MethodDelete:
		if s.store.delete(id) {
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request, id string) {
	body, err := readLimited(w, r, MaxBodyBytes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	text, has, err := decodePatchText(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !has {
		ann, ok := s.store.get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, ann)
		return
	}

	ann, err := s.store.updateText(id, text)
	switch {
	case err == ErrNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case err == ErrBadRequest:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Text exceeds maximum length of %d bytes", MaxTextBytes)})
	case err != nil:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, ann)
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	s.rendezvous.notifySend()

	s.mu.Lock()
	fn := s.onSendNotify
	s.mu.Unlock()
	if fn != nil {
		go fn(s.store.openCount())
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// WaitForSend blocks the tool-surface caller until a send happens or the
// deadline elapses, capped at 600s regardless of the caller's request.
func (s *Server) WaitForSend(timeoutMs int) bool {
	if timeoutMs <= 0 {
		timeoutMs = 1
	}
	if timeoutMs > maxWaitMs {
		timeoutMs = maxWaitMs
	}
	return s.rendezvous.waitForSend(time.Duration(timeoutMs) * time.Millisecond)
}

// ConsumeSentState reports and clears the one-shot "a send happened"
// marker.
func (s *Server) ConsumeSentState() bool { return s.rendezvous.consumeSentState() }

// Annotations returns a snapshot of all annotations.
func (s *Server) Annotations() []Annotation { return s.store.list() }

// Annotation returns a single annotation by id.
func (s *Server) Annotation(id string) (Annotation, bool) { return s.store.get(id) }

// Resolve transitions an annotation to resolved.
func (s *Server) Resolve(id string) (Annotation, error) { return s.store.resolve(id) }

// Delete removes a single annotation.
func (s *Server) Delete(id string) bool { return s.store.delete(id) }

// AutoResolveOpen deletes every open annotation on send consumption; see
// DESIGN.md's open-question decision for why deletion was chosen over
// marking resolved.
func (s *Server) AutoResolveOpen() { s.store.deleteAllOpen() }

// OpenAnnotations returns only the annotations with status "open".
func (s *Server) OpenAnnotations() []Annotation {
	all := s.store.list()
	open := make([]Annotation, 0, len(all))
	for _, a := range all {
		if a.Status == StatusOpen {
			open = append(open, a)
		}
	}
	return open
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readLimited(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}
