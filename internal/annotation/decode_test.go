package annotation

import (
	"errors"
	"testing"
)

func TestDecodeCreateRejectsInvalidJSON(t *testing.T) {
	_, err := decodeCreate([]byte("not json"))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestDecodeCreateRejectsNonObject(t *testing.T) {
	_, err := decodeCreate([]byte(`[1,2,3]`))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for a non-object body, got %v", err)
	}
}

func TestDecodeCreateRequiresViewport(t *testing.T) {
	_, err := decodeCreate([]byte(`{"url":"http://x","selector":"#a","text":"hi"}`))
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest without a viewport, got %v", err)
	}
}

func TestDecodeCreateExtractsAllFields(t *testing.T) {
	body := `{
		"url": "http://example.com",
		"selector": "#target",
		"selectorConfidence": "stable",
		"text": "fix this",
		"viewport": {"width": 1024, "height": 768},
		"reactSource": {"component": "Widget", "source": "Widget.tsx:10"},
		"elementRect": {"x": 1, "y": 2, "width": 3, "height": 4},
		"elements": [{"selector": "#child", "selectorConfidence": "fragile"}],
		"anchorPoint": {"x": 5, "y": 6}
	}`

	in, err := decodeCreate([]byte(body))
	if err != nil {
		t.Fatalf("decodeCreate failed: %v", err)
	}
	if in.URL != "http://example.com" || in.Selector != "#target" {
		t.Errorf("unexpected core fields: %+v", in)
	}
	if in.SelectorConfidence != ConfidenceStable {
		t.Errorf("selectorConfidence = %q, want stable", in.SelectorConfidence)
	}
	if in.ComponentInfo == nil || in.ComponentInfo.Component != "Widget" {
		t.Errorf("expected componentInfo to be parsed, got %+v", in.ComponentInfo)
	}
	if in.ElementRect == nil || in.ElementRect.Width != 3 {
		t.Errorf("expected elementRect to be parsed, got %+v", in.ElementRect)
	}
	if len(in.Elements) != 1 || in.Elements[0].SelectorConfidence != ConfidenceFragile {
		t.Errorf("expected one fragile child element, got %+v", in.Elements)
	}
	if in.AnchorPoint == nil || in.AnchorPoint.X != 5 {
		t.Errorf("expected anchorPoint to be parsed, got %+v", in.AnchorPoint)
	}
}

func TestDecodeCreateUnknownConfidenceMapsToFragile(t *testing.T) {
	body := `{"url":"x","selector":"#a","selectorConfidence":"whatever","text":"","viewport":{"width":1,"height":1}}`
	in, err := decodeCreate([]byte(body))
	if err != nil {
		t.Fatalf("decodeCreate failed: %v", err)
	}
	if in.SelectorConfidence != ConfidenceFragile {
		t.Errorf("expected unrecognized confidence to map to fragile, got %q", in.SelectorConfidence)
	}
}

func TestDecodePatchTextAbsentField(t *testing.T) {
	text, present, err := decodePatchText([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if present {
		t.Errorf("expected present=false when text field is absent, got text=%q", text)
	}
}

func TestDecodePatchTextEmptyBody(t *testing.T) {
	text, present, err := decodePatchText(nil)
	if err != nil || present || text != "" {
		t.Fatalf("empty body should decode to no text present, got (%q, %v, %v)", text, present, err)
	}
}

func TestDecodePatchTextPresent(t *testing.T) {
	text, present, err := decodePatchText([]byte(`{"text":"updated"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !present || text != "updated" {
		t.Fatalf("expected present=true text=updated, got (%q, %v)", text, present)
	}
}

func TestValidateCreateRejectsNegativeViewport(t *testing.T) {
	in := validCreateInput()
	in.Viewport.Width = -1
	if err := validateCreate(in); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for negative viewport width, got %v", err)
	}
}

func TestParseConfidence(t *testing.T) {
	if ParseConfidence("stable") != ConfidenceStable {
		t.Error("expected 'stable' to parse as ConfidenceStable")
	}
	if ParseConfidence("fragile") != ConfidenceFragile {
		t.Error("expected 'fragile' to parse as ConfidenceFragile")
	}
	if ParseConfidence("") != ConfidenceFragile {
		t.Error("expected unrecognized confidence to default to fragile")
	}
}
