package catalog

import "github.com/ent0n29/avatarstudio/internal/pipio"

// Result is the outcome of Normalize. Keys lists the top-level object keys
// observed when the shape was unrecognized, for diagnostics.
type Result struct {
	Records  []Record
	Shape    Shape
	Dropped  int
	Keys     []string
	Fallback bool
}

// Normalize classifies payload, extracts its elements and keeps the ones
// that are objects with an id. With useFallback set, an unrecognized or
// empty payload yields the built-in placeholder records instead.
func Normalize(doc pipio.Document, kind Kind, useFallback bool) Result {
	shape := Classify(doc, kind)
	res := Result{Shape: shape, Records: []Record{}}

	if shape.Kind == ShapeUnrecognized {
		res.Keys = doc.Keys()
	}

	for _, item := range Extract(doc.Value, shape) {
		obj, ok := item.(map[string]any)
		if !ok {
			res.Dropped++
			continue
		}
		rec, ok := recordFrom(obj)
		if !ok {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, rec)
	}

	if useFallback && len(res.Records) == 0 {
		res.Records = Fallback(kind)
		res.Fallback = true
	}
	return res
}
