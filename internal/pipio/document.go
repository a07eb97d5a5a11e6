package pipio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

const maxDocumentDepth = 1000

// Document is a decoded JSON payload that remembers the order in which keys
// appeared in every object reachable through object keys alone. Objects
// inside arrays are decoded but their key order is not kept.
type Document struct {
	Value any
	order map[string][]string
}

// DocumentOf wraps an already decoded value. Keys falls back to sorted order.
func DocumentOf(v any) Document {
	return Document{Value: v}
}

// DecodeDocument decodes exactly one JSON value from data. Numbers decode as
// json.Number and trailing content after the value is an error.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	order := make(map[string][]string)
	v, err := decodeValue(dec, nil, order, 0)
	if err != nil {
		return Document{}, err
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err != nil {
			return Document{}, fmt.Errorf("trailing data: %w", err)
		}
		return Document{}, fmt.Errorf("trailing data after value: %v", tok)
	}
	return Document{Value: v, order: order}, nil
}

// Keys returns the keys of the object found by following path from the root,
// in document order when known and sorted otherwise. It returns nil when path
// does not lead to an object.
func (d Document) Keys(path ...string) []string {
	cur := d.Value
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	obj, ok := cur.(map[string]any)
	if !ok {
		return nil
	}
	if keys, ok := d.order[pathKey(path)]; ok && len(keys) == len(obj) {
		return append([]string(nil), keys...)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeValue walks one value token by token. order is nil below arrays.
func decodeValue(dec *json.Decoder, path []string, order map[string][]string, depth int) (any, error) {
	if depth > maxDocumentDepth {
		return nil, errors.New("json nested too deeply")
	}
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := make(map[string]any)
		var keys []string
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T", kt)
			}
			var child []string
			var childOrder map[string][]string
			if order != nil {
				child = append(path[:len(path):len(path)], key)
				childOrder = order
			}
			v, err := decodeValue(dec, child, childOrder, depth+1)
			if err != nil {
				return nil, err
			}
			if _, dup := obj[key]; !dup {
				keys = append(keys, key)
			}
			obj[key] = v
		}
		if err := closeDelim(dec); err != nil {
			return nil, err
		}
		if order != nil {
			order[pathKey(path)] = keys
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec, nil, nil, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if err := closeDelim(dec); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func closeDelim(dec *json.Decoder) error {
	if _, err := dec.Token(); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func pathKey(path []string) string {
	var b strings.Builder
	for _, p := range path {
		b.WriteByte(0)
		b.WriteString(p)
	}
	return b.String()
}
