package pipio

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestDecodeDocumentKeepsKeyOrder(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"zeta":[{"id":"z1","b":1,"a":2}],"alpha":1,"response":{"m":true,"c":null}}`))
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v", err)
	}
	if got, want := doc.Keys(), []string{"zeta", "alpha", "response"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if got, want := doc.Keys("response"), []string{"m", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys(response) = %v, want %v", got, want)
	}
	if got := doc.Keys("zeta"); got != nil {
		t.Fatalf("Keys(zeta) = %v, want nil for an array", got)
	}
	obj := doc.Value.(map[string]any)
	if n, ok := obj["alpha"].(json.Number); !ok || n.String() != "1" {
		t.Fatalf("alpha = %#v, want json.Number 1", obj["alpha"])
	}
}

func TestDecodeDocumentDuplicateKeys(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"b":1,"a":2,"b":3}`))
	if err != nil {
		t.Fatalf("DecodeDocument() error = %v", err)
	}
	if got, want := doc.Keys(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	if v := doc.Value.(map[string]any)["b"].(json.Number); v.String() != "3" {
		t.Fatalf("b = %v, want last value 3", v)
	}
}

func TestDecodeDocumentRejectsInvalid(t *testing.T) {
	for _, raw := range []string{``, `{`, `{"a" 1}`, `[1,]`, `[] xyz`, `{} {}`, `"x" 1`} {
		if _, err := DecodeDocument([]byte(raw)); err == nil {
			t.Fatalf("DecodeDocument(%q) error = nil, want error", raw)
		}
	}
}

func TestDocumentOfSortsKeys(t *testing.T) {
	doc := DocumentOf(map[string]any{"b": 1, "a": 2})
	if got, want := doc.Keys(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
}
