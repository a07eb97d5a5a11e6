package catalog

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/ent0n29/avatarstudio/internal/pipio"
)

func decode(t *testing.T, raw string) pipio.Document {
	t.Helper()
	doc, err := pipio.DecodeDocument([]byte(raw))
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return doc
}

func ids(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID+"/"+r.Name)
	}
	return out
}

func TestNormalizeShapesAgree(t *testing.T) {
	const items = `[{"id":"a1","name":"Ann"},{"id":"a2","name":"Bob"}]`
	cases := []struct {
		name  string
		kind  Kind
		raw   string
		shape ShapeKind
	}{
		{"bare array", KindAvatar, items, ShapeArray},
		{"actors wrapper", KindAvatar, `{"actors":` + items + `}`, ShapeWrapped},
		{"voices wrapper", KindVoice, `{"voices":` + items + `}`, ShapeWrapped},
		{"data wrapper", KindAvatar, `{"data":` + items + `,"total":2}`, ShapeWrapped},
		{"results wrapper", KindVoice, `{"results":` + items + `}`, ShapeWrapped},
		{"items wrapper", KindVoice, `{"items":` + items + `}`, ShapeWrapped},
		{"nested response", KindAvatar, `{"response":{"data":` + items + `}}`, ShapeWrapped},
		{"nested response array", KindAvatar, `{"response":` + items + `}`, ShapeWrapped},
		{"scanned", KindAvatar, `{"meta":{"page":1},"catalogue":` + items + `}`, ShapeScanned},
	}
	want := []string{"a1/Ann", "a2/Bob"}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Normalize(decode(t, tc.raw), tc.kind, false)
			if res.Shape.Kind != tc.shape {
				t.Fatalf("Shape = %q, want %q", res.Shape.Kind, tc.shape)
			}
			if got := ids(res.Records); !reflect.DeepEqual(got, want) {
				t.Fatalf("Records = %v, want %v", got, want)
			}
		})
	}
}

func TestNormalizeSingleRecord(t *testing.T) {
	res := Normalize(decode(t, `{"id":"a1","name":"Ann"}`), KindAvatar, false)
	if res.Shape.Kind != ShapeSingleRecord {
		t.Fatalf("Shape = %q, want %q", res.Shape.Kind, ShapeSingleRecord)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"a1/Ann"}) {
		t.Fatalf("Records = %v", got)
	}
}

func TestEntityKeyBeatsGenericKey(t *testing.T) {
	raw := `{"data":[{"id":"d1","name":"Data"}],"actors":[{"id":"a1","name":"Actor"}]}`
	res := Normalize(decode(t, raw), KindAvatar, false)
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"a1/Actor"}) {
		t.Fatalf("Records = %v, want actors wrapper to win", got)
	}

	// For voices the "actors" key is not an entity key, so "data" wins.
	res = Normalize(decode(t, raw), KindVoice, false)
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"d1/Data"}) {
		t.Fatalf("Records = %v, want data wrapper for voices", got)
	}
}

func TestScenarioActorsWrapper(t *testing.T) {
	res := Normalize(decode(t, `{"actors": [{"id":"a1","name":"Ann"}]}`), KindAvatar, false)
	if len(res.Records) != 1 {
		t.Fatalf("len(Records) = %d, want 1", len(res.Records))
	}
	raw, err := json.Marshal(res.Records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `[{"id":"a1","name":"Ann"}]` {
		t.Fatalf("json = %s", raw)
	}
}

func TestNormalizeDropsRecordsWithoutID(t *testing.T) {
	raw := `[{"id":"a1","name":"Ann"},{"name":"NoID"},{"id":"","name":"Blank"},"str",42,null,{"id":7}]`
	res := Normalize(decode(t, raw), KindAvatar, false)
	for _, r := range res.Records {
		if r.ID == "" {
			t.Fatalf("record with empty id survived: %+v", r)
		}
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"a1/Ann", "7/Unknown-7"}) {
		t.Fatalf("Records = %v", got)
	}
	if res.Dropped != 5 {
		t.Fatalf("Dropped = %d, want 5", res.Dropped)
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	cases := []string{
		`{"message":"hello","count":3}`,
		`{"list":[1,2,3]}`,
		`"just a string"`,
		`42`,
		`null`,
		`{"response":{"nothing":true}}`,
	}
	for _, raw := range cases {
		res := Normalize(decode(t, raw), KindVoice, false)
		if res.Shape.Kind != ShapeUnrecognized {
			t.Fatalf("%s: Shape = %q, want unrecognized", raw, res.Shape.Kind)
		}
		if res.Records == nil || len(res.Records) != 0 {
			t.Fatalf("%s: Records = %v, want empty non-nil", raw, res.Records)
		}
	}

	res := Normalize(decode(t, `{"message":"hello","count":3}`), KindVoice, false)
	if !reflect.DeepEqual(res.Keys, []string{"message", "count"}) {
		t.Fatalf("Keys = %v", res.Keys)
	}
}

func TestNormalizeEmptyArrayAndFallback(t *testing.T) {
	res := Normalize(decode(t, `[]`), KindAvatar, false)
	if len(res.Records) != 0 || res.Fallback {
		t.Fatalf("Normalize([]) = %+v, want empty", res)
	}

	res = Normalize(decode(t, `[]`), KindAvatar, true)
	if !res.Fallback {
		t.Fatalf("Fallback = false, want true")
	}
	if got, want := ids(res.Records), ids(Fallback(KindAvatar)); !reflect.DeepEqual(got, want) {
		t.Fatalf("Records = %v, want fallback %v", got, want)
	}

	res = Normalize(decode(t, `{"unknown":true}`), KindVoice, true)
	if got, want := ids(res.Records), ids(Fallback(KindVoice)); !reflect.DeepEqual(got, want) {
		t.Fatalf("unrecognized with fallback = %v, want %v", got, want)
	}
}

func TestExtractIsSeparateFromClassify(t *testing.T) {
	doc := decode(t, `{"response":{"response":{"items":[{"id":"x","name":"X"}]}}}`)
	shape := Classify(doc, KindVoice)
	if shape.Kind != ShapeWrapped || !reflect.DeepEqual(shape.Path, []string{"response", "response", "items"}) {
		t.Fatalf("Classify() = %+v", shape)
	}
	if got := Extract(doc.Value, shape); len(got) != 1 {
		t.Fatalf("Extract() = %v, want one element", got)
	}
	if got := Extract(doc.Value, Shape{Kind: ShapeWrapped, Path: []string{"missing"}}); got != nil {
		t.Fatalf("Extract(missing path) = %v, want nil", got)
	}
}

func TestScanFollowsDocumentOrder(t *testing.T) {
	res := Normalize(decode(t, `{"zeta":[{"id":"z1","name":"Z"}],"alpha":[{"id":"a1","name":"A"}]}`), KindAvatar, false)
	if res.Shape.Kind != ShapeScanned || !reflect.DeepEqual(res.Shape.Path, []string{"zeta"}) {
		t.Fatalf("Shape = %+v, want scanned [zeta]", res.Shape)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"z1/Z"}) {
		t.Fatalf("Records = %v, want [z1/Z]", got)
	}

	res = Normalize(decode(t, `{"response":{"tags":["x"],"b":[{"id":"b1","name":"B"}],"a":[{"id":"a1","name":"A"}]}}`), KindVoice, false)
	if !reflect.DeepEqual(res.Shape.Path, []string{"response", "b"}) {
		t.Fatalf("nested Shape = %+v, want scanned [response b]", res.Shape)
	}
}

func TestResponseKeyDecidesShape(t *testing.T) {
	res := Normalize(decode(t, `{"response":{"note":"x"},"id":"r1","name":"Outer"}`), KindAvatar, false)
	if res.Shape.Kind != ShapeUnrecognized || len(res.Records) != 0 {
		t.Fatalf("Normalize() = %+v, want unrecognized", res)
	}
	if got, want := res.Keys, []string{"response", "id", "name"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Keys = %v, want %v", got, want)
	}

	res = Normalize(decode(t, `{"response":{"id":"r1","name":"Inner"}}`), KindAvatar, false)
	if res.Shape.Kind != ShapeSingleRecord || !reflect.DeepEqual(ids(res.Records), []string{"r1/Inner"}) {
		t.Fatalf("Normalize(nested record) = %+v", res)
	}
}

func TestIndexLastWriteWins(t *testing.T) {
	res := Normalize(decode(t, `[{"id":"a1","name":"First"},{"id":"a1","name":"Second"}]`), KindAvatar, false)
	idx := Index(res.Records)
	if len(idx) != 1 || idx["a1"].Name != "Second" {
		t.Fatalf("Index() = %+v", idx)
	}
}

func TestVoiceViewDefaults(t *testing.T) {
	res := Normalize(decode(t, `[{"id":"v1","name":"Emma","gender":"female"}]`), KindVoice, false)
	v := VoiceFrom(res.Records[0])
	if v.Gender != "female" || v.Language != "Not specified" || v.Accent != "Not specified" {
		t.Fatalf("VoiceFrom() = %+v", v)
	}
	if v.DisplayName() != "Emma (female, Not specified)" {
		t.Fatalf("DisplayName() = %q", v.DisplayName())
	}
}

func TestFilterVoicesAndFacets(t *testing.T) {
	voices := []Voice{
		{ID: "1", Gender: "female", Language: "en-US", Accent: "american"},
		{ID: "2", Gender: "male", Language: "en-GB", Accent: "british"},
		{ID: "3", Gender: "female", Language: "en-GB", Accent: "british"},
	}
	got := FilterVoices(voices, VoiceFilter{Genders: []string{"Female"}, Languages: []string{"en-GB"}})
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("FilterVoices() = %+v", got)
	}
	if len(FilterVoices(voices, VoiceFilter{})) != 3 {
		t.Fatalf("empty filter should keep everything")
	}
	f := Facets(voices)
	if !reflect.DeepEqual(f.Genders, []string{"female", "male"}) || !reflect.DeepEqual(f.Accents, []string{"american", "british"}) {
		t.Fatalf("Facets() = %+v", f)
	}
}
