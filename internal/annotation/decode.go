package annotation

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// decodeCreate performs a two-phase decode of a POST /annotations body: a
// structural gjson scan that rejects malformed shapes cheaply, then a
// field-by-field extraction into CreateInput. The result has passed the
// structural guards only; the text-length and viewport limits are applied
// afterwards by validateCreate when the store creates the annotation.
func decodeCreate(body []byte) (CreateInput, error) {
	if !gjson.ValidBytes(body) {
		return CreateInput{}, fmt.Errorf("%w: invalid JSON", ErrBadRequest)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return CreateInput{}, fmt.Errorf("%w: body must be a JSON object", ErrBadRequest)
	}

	url := root.Get("url").String()
	selector := root.Get("selector").String()
	text := root.Get("text").String()
	confidence := ParseConfidence(root.Get("selectorConfidence").String())

	viewportNode := root.Get("viewport")
	if !viewportNode.Exists() {
		return CreateInput{}, fmt.Errorf("%w: viewport is required", ErrBadRequest)
	}
	viewport := Viewport{
		Width:  viewportNode.Get("width").Num,
		Height: viewportNode.Get("height").Num,
	}

	in := CreateInput{
		URL:                url,
		Selector:           selector,
		SelectorConfidence: confidence,
		Text:               text,
		Viewport:           viewport,
	}

	if ci := root.Get("reactSource"); ci.Exists() && ci.IsObject() {
		in.ComponentInfo = &ComponentInfo{
			Component: ci.Get("component").String(),
			Source:    ci.Get("source").String(),
		}
	}

	if rect := root.Get("elementRect"); rect.Exists() && rect.IsObject() {
		in.ElementRect = &Rect{
			X:      rect.Get("x").Num,
			Y:      rect.Get("y").Num,
			Width:  rect.Get("width").Num,
			Height: rect.Get("height").Num,
		}
	}

	if elements := root.Get("elements"); elements.Exists() && elements.IsArray() {
		for _, el := range elements.Array() {
			desc := ElementDescriptor{
				Selector:           el.Get("selector").String(),
				SelectorConfidence: ParseConfidence(el.Get("selectorConfidence").String()),
			}
			if rect := el.Get("rect"); rect.Exists() && rect.IsObject() {
				desc.Rect = &Rect{
					X:      rect.Get("x").Num,
					Y:      rect.Get("y").Num,
					Width:  rect.Get("width").Num,
					Height: rect.Get("height").Num,
				}
			}
			in.Elements = append(in.Elements, desc)
		}
	}

	if anchor := root.Get("anchorPoint"); anchor.Exists() && anchor.IsObject() {
		in.AnchorPoint = &Point{
			X: anchor.Get("x").Num,
			Y: anchor.Get("y").Num,
		}
	}

	return in, nil
}

// decodePatchText extracts the optional text field from a PATCH body.
func decodePatchText(body []byte) (string, bool, error) {
	if len(body) == 0 {
		return "", false, nil
	}
	if !gjson.ValidBytes(body) {
		return "", false, fmt.Errorf("%w: invalid JSON", ErrBadRequest)
	}
	root := gjson.ParseBytes(body)
	textNode := root.Get("text")
	if !textNode.Exists() {
		return "", false, nil
	}
	return textNode.String(), true, nil
}
