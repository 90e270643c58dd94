// Package annotation implements the loopback-only HTTP annotation service:
// the in-memory store of pinned page feedback, the send rendezvous between
// a human click and a waiting tool call, and the route table that exposes
// both to the overlay script and to the agent side.
package annotation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	MaxAnnotations  = 50
	MaxTextBytes    = 10 * 1024
	MaxViewportDim  = 100000
	MaxBodyBytes    = 64 * 1024
	BasePort        = 9223
	PortFallbackTry = 3
)

var (
	ErrQuotaExceeded = errors.New("annotation: quota exceeded")
	ErrNotFound      = errors.New("annotation: not found")
	ErrBadRequest    = errors.New("annotation: bad request")
)

// SelectorConfidence is either "stable" or "fragile" — anything other than
// the literal "stable" on input maps to "fragile".
type SelectorConfidence string

const (
	ConfidenceStable  SelectorConfidence = "stable"
	ConfidenceFragile SelectorConfidence = "fragile"
)

func ParseConfidence(s string) SelectorConfidence {
	if s == string(ConfidenceStable) {
		return ConfidenceStable
	}
	return ConfidenceFragile
}

// Status is the one-way open -> resolved transition.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Viewport is the captured window size at annotation time.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ComponentInfo optionally attributes an annotation to a source component,
// when the page exposes that information (e.g. a React dev build).
type ComponentInfo struct {
	Component string `json:"component"`
	Source    string `json:"source,omitempty"`
}

// Rect is a viewport-relative bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a viewport-relative coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ElementDescriptor mirrors an Annotation's single-element fields for one
// member of a multi-element selection.
type ElementDescriptor struct {
	Selector           string             `json:"selector"`
	SelectorConfidence SelectorConfidence `json:"selectorConfidence"`
	Rect               *Rect              `json:"rect,omitempty"`
}

// Annotation is one pinned piece of page feedback.
type Annotation struct {
	ID                 string              `json:"id"`
	URL                string              `json:"url"`
	Selector           string              `json:"selector"`
	SelectorConfidence SelectorConfidence  `json:"selectorConfidence"`
	Text               string              `json:"text"`
	Status             Status              `json:"status"`
	Viewport           Viewport            `json:"viewport"`
	ComponentInfo      *ComponentInfo      `json:"componentInfo,omitempty"`
	ScreenshotDataURL  string              `json:"screenshotDataUrl,omitempty"`
	Elements           []ElementDescriptor `json:"elements,omitempty"`
	AnchorPoint        *Point              `json:"anchorPoint,omitempty"`
	CreatedAtIso       string              `json:"createdAtIso"`
	UpdatedAtIso       string              `json:"updatedAtIso"`
}

// CreateInput is the structurally-validated form of a POST /annotations
// body, produced by decodeCreate after its structural guards pass.
type CreateInput struct {
	URL                string
	Selector           string
	SelectorConfidence SelectorConfidence
	Text               string
	Viewport           Viewport
	ComponentInfo      *ComponentInfo
	ElementRect        *Rect
	Elements           []ElementDescriptor
	AnchorPoint        *Point
}

func newAnnotation(in CreateInput) Annotation {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return Annotation{
		ID:                 uuid.NewString(),
		URL:                in.URL,
		Selector:           in.Selector,
		SelectorConfidence: in.SelectorConfidence,
		Text:               in.Text,
		Status:             StatusOpen,
		Viewport:           in.Viewport,
		ComponentInfo:      in.ComponentInfo,
		Elements:           in.Elements,
		AnchorPoint:        in.AnchorPoint,
		CreatedAtIso:       now,
		UpdatedAtIso:       now,
	}
}

// validateCreate applies the request-limit invariants to a create input.
func validateCreate(in CreateInput) error {
	if len(in.Text) > MaxTextBytes {
		return fmt.Errorf("%w: Text exceeds maximum length of %d bytes", ErrBadRequest, MaxTextBytes)
	}
	if !validViewportDim(in.Viewport.Width) || !validViewportDim(in.Viewport.Height) {
		return fmt.Errorf("%w: viewport dimensions must be in [0, %d]", ErrBadRequest, MaxViewportDim)
	}
	return nil
}

func validViewportDim(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= 0 && v <= MaxViewportDim
}
