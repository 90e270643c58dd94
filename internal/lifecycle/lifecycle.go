// Package lifecycle wires the process-wide components together and
// coordinates startup and shutdown: the browser session manager is built
// but never contacted until a tool call needs it, the annotation service
// binds its loopback listener lazily the first time the overlay is
// injected, and shutdown tears components down in dependency order with a
// last-resort synchronous PID-file cleanup.
package lifecycle

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samsolomon/relay-inspect/internal/annotation"
	"github.com/samsolomon/relay-inspect/internal/browser"
	"github.com/samsolomon/relay-inspect/internal/config"
	"github.com/samsolomon/relay-inspect/internal/process"
	"github.com/samsolomon/relay-inspect/internal/tools"
)

// App bundles every process-wide component for the lifetime of a single
// relay-inspect server invocation.
type App struct {
	Config      *config.Config
	Browser     *browser.Manager
	Annotations *annotation.Server
	Processes   *process.ProcessManager
	Deps        *tools.Deps
}

// New constructs every component without contacting the browser: the
// session manager only dials out lazily, the first time a tool needs it.
func New(cfg *config.Config) *App {
	mgr := browser.NewManager(cfg)
	ann := annotation.NewServer()
	pm := process.NewProcessManager(process.ManagerConfig{
		DefaultTimeout:    0,
		MaxOutputBuffer:   cfg.ServerLogBufferSize,
		GracefulTimeout:   5 * time.Second,
		HealthCheckPeriod: 10 * time.Second,
	})

	wireScreenshots(mgr, ann)
	wireSendNotify(mgr, ann)
	wireOverlayInjection(mgr, ann, cfg)

	return &App{
		Config:      cfg,
		Browser:     mgr,
		Annotations: ann,
		Processes:   pm,
		Deps:        tools.NewDeps(mgr, ann, pm, cfg),
	}
}

// wireScreenshots adapts the annotation service's ScreenshotFunc (expressed
// in terms of annotation.Rect) to the session manager's CaptureScreenshot
// (expressed in terms of browser.ScreenshotClip). The two are structurally
// identical; this is the one place that bridges the package boundary.
func wireScreenshots(mgr *browser.Manager, ann *annotation.Server) {
	ann.OnScreenshot(func(ctx context.Context, rect *annotation.Rect) (string, error) {
		var clip *browser.ScreenshotClip
		if rect != nil {
			clip = &browser.ScreenshotClip{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
		}
		return mgr.CaptureScreenshot(ctx, clip)
	})
}

// wireSendNotify asks the overlay already in the page to refresh its
// pending-annotation badges after every send. It does not re-inject the
// overlay script.
func wireSendNotify(mgr *browser.Manager, ann *annotation.Server) {
	ann.OnSendNotify(func(openCount int) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.EvaluateBestEffort(ctx, "window.__relayInspectOverlay && window.__relayInspectOverlay.refresh()")
	})
}

// wireOverlayInjection ties the annotation service's lazy startup and the
// page-side overlay script to the session manager's connect/navigate hooks:
// the HTTP listener binds the first time a page is ready to receive the
// script, and the script is re-injected on every subsequent navigation.
func wireOverlayInjection(mgr *browser.Manager, ann *annotation.Server, cfg *config.Config) {
	var startOnce sync.Once
	var startErr error
	var boundPort int

	inject := func() {
		startOnce.Do(func() {
			port, err := ann.Start(cfg.AnnotationPort)
			if err != nil {
				startErr = err
				log.Printf("lifecycle: annotation service start: %v", err)
				return
			}
			boundPort = port
			log.Printf("annotation service listening on 127.0.0.1:%d", port)
		})
		if startErr != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.EvaluateBestEffort(ctx, browser.BuildOverlayScript(boundPort))
	}

	mgr.OnConnect(inject)
	mgr.OnNavigate(inject)
}

// Signal builds a context cancelled on SIGINT/SIGTERM, mirroring the
// teacher's signal-driven shutdown.
func Signal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Shutdown tears down every component in dependency order: managed
// processes first (so nothing is left running unsupervised), then the
// browser session, then the annotation HTTP listener, then the PID file
// that marks a launched browser as ours to reap.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Processes.Shutdown(ctx); err != nil {
		log.Printf("lifecycle: process manager shutdown: %v", err)
	}
	if err := a.Browser.Shutdown(ctx); err != nil {
		log.Printf("lifecycle: browser session shutdown: %v", err)
	}
	if err := a.Annotations.Shutdown(ctx); err != nil {
		log.Printf("lifecycle: annotation service shutdown: %v", err)
	}
	if err := browser.RemovePIDFile(a.Config.DebugPort); err != nil {
		log.Printf("lifecycle: pid file cleanup: %v", err)
	}
}

// ShutdownSync is the last-resort synchronous cleanup run from a deferred
// call in main, in case the signal-driven Shutdown above never ran (a panic
// unwinding the stack, or the process being torn down before the signal
// handler goroutine got scheduled).
func (a *App) ShutdownSync() {
	a.Browser.ShutdownSync()
	_ = browser.RemovePIDFile(a.Config.DebugPort)
}
