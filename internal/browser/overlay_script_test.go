package browser

import (
	"strconv"
	"strings"
	"testing"
)

func TestBuildOverlayScriptSubstitutesPort(t *testing.T) {
	script := BuildOverlayScript(9223)
	if strings.Contains(script, "__RELAY_INSPECT_PORT__") {
		t.Fatal("expected the port placeholder to be fully substituted")
	}
	if !strings.Contains(script, strconv.Itoa(9223)) {
		t.Error("expected the resolved port to appear in the script")
	}
}

func TestBuildOverlayScriptIsDeterministic(t *testing.T) {
	a := BuildOverlayScript(1234)
	b := BuildOverlayScript(1234)
	if a != b {
		t.Error("expected BuildOverlayScript to be deterministic for the same port")
	}
}
