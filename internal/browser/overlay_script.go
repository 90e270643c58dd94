package browser

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed assets/overlay.js
var overlayScriptTemplate string

// BuildOverlayScript produces the self-contained page-side script, text
// only, parameterized by the annotation service's port. The script is
// treated as an opaque foreign-language payload: this function's only job
// is the port substitution.
func BuildOverlayScript(annotationPort int) string {
	return strings.Replace(overlayScriptTemplate, "__RELAY_INSPECT_PORT__", strconv.Itoa(annotationPort), 1)
}
