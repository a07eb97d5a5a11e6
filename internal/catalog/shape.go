package catalog

import (
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

// ShapeKind tags the variant produced by Classify.
type ShapeKind string

const (
	ShapeArray        ShapeKind = "array"
	ShapeWrapped      ShapeKind = "wrapped"
	ShapeSingleRecord ShapeKind = "single_record"
	ShapeScanned      ShapeKind = "scanned"
	ShapeUnrecognized ShapeKind = "unrecognized"
)

// Shape says where the records live inside a payload. Path is the chain of
// object keys to follow before reaching the array (or the single record).
type Shape struct {
	Kind ShapeKind `json:"kind"`
	Path []string  `json:"path,omitempty"`
}

var genericWrapperKeys = []string{"data", "results", "items"}

const maxResponseDepth = 8

// Classify resolves the payload shape. First match wins:
//
//  1. bare array
//  2. entity wrapper key ("actors" / "voices")
//  3. generic wrapper key ("data", "results", "items")
//  4. nested "response" key, classified recursively; its result is final
//  5. an object with both "id" and "name"
//  6. the first id-bearing array among the object's values, in document order
func Classify(doc pipio.Document, kind Kind) Shape {
	return classify(doc, nil, kind)
}

func classify(doc pipio.Document, path []string, kind Kind) Shape {
	payload := valueAt(doc.Value, path)
	if _, ok := payload.([]any); ok {
		return Shape{Kind: ShapeArray, Path: path}
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return Shape{Kind: ShapeUnrecognized}
	}

	if _, ok := obj[kind.wrapperKey()].([]any); ok {
		return Shape{Kind: ShapeWrapped, Path: extend(path, kind.wrapperKey())}
	}
	for _, key := range genericWrapperKeys {
		if _, ok := obj[key].([]any); ok {
			return Shape{Kind: ShapeWrapped, Path: extend(path, key)}
		}
	}

	if _, ok := obj["response"]; ok {
		if len(path) >= maxResponseDepth {
			return Shape{Kind: ShapeUnrecognized}
		}
		nested := classify(doc, extend(path, "response"), kind)
		if nested.Kind == ShapeArray {
			nested.Kind = ShapeWrapped
		}
		return nested
	}

	_, hasID := obj["id"]
	_, hasName := obj["name"]
	if hasID && hasName {
		return Shape{Kind: ShapeSingleRecord, Path: path}
	}

	for _, key := range doc.Keys(path...) {
		arr, ok := obj[key].([]any)
		if !ok || len(arr) == 0 {
			continue
		}
		first, ok := arr[0].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := first["id"]; ok {
			return Shape{Kind: ShapeScanned, Path: extend(path, key)}
		}
	}

	return Shape{Kind: ShapeUnrecognized}
}

// Extract returns the raw elements a Shape points at. Unrecognized shapes,
// or paths that no longer resolve, yield nil.
func Extract(payload any, shape Shape) []any {
	if shape.Kind == ShapeUnrecognized {
		return nil
	}
	cur := payload
	for _, key := range shape.Path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	if shape.Kind == ShapeSingleRecord {
		if obj, ok := cur.(map[string]any); ok {
			return []any{obj}
		}
		return nil
	}
	arr, _ := cur.([]any)
	return arr
}

func valueAt(v any, path []string) any {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[key]
	}
	return v
}

func extend(path []string, key string) []string {
	return append(path[:len(path):len(path)], key)
}
