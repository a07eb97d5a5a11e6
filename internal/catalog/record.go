package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind selects which listing a payload came from.
type Kind string

const (
	KindAvatar Kind = "avatar"
	KindVoice  Kind = "voice"
)

// Endpoint is the upstream endpoint name used in diagnostics and metrics.
func (k Kind) Endpoint() string {
	if k == KindVoice {
		return "voice"
	}
	return "actor"
}

func (k Kind) wrapperKey() string {
	if k == KindVoice {
		return "voices"
	}
	return "actors"
}

const notSpecified = "Not specified"

// Record is one normalized avatar or voice entry. Fields keeps the raw
// upstream object so optional attributes survive normalization.
type Record struct {
	ID     string
	Name   string
	Fields map[string]any
}

// MarshalJSON emits the raw fields with the normalized id and name on top.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	out["name"] = r.Name
	return json.Marshal(out)
}

// Str returns a trimmed string attribute, or "" when absent or not scalar.
func (r Record) Str(key string) string {
	return scalarString(r.Fields[key])
}

func recordFrom(obj map[string]any) (Record, bool) {
	id := scalarString(obj["id"])
	if id == "" {
		return Record{}, false
	}
	name := scalarString(obj["name"])
	if name == "" {
		name = "Unknown-" + id
	}
	return Record{ID: id, Name: name, Fields: obj}, true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Index builds an id-keyed lookup. Later records win on duplicate ids.
func Index(records []Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out
}

type Avatar struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PreviewImageURL string `json:"previewImageUrl,omitempty"`
	Description     string `json:"description,omitempty"`
}

func AvatarFrom(r Record) Avatar {
	return Avatar{
		ID:              r.ID,
		Name:            r.Name,
		PreviewImageURL: r.Str("previewImageUrl"),
		Description:     r.Str("description"),
	}
}

type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
	Accent   string `json:"accent"`
}

func VoiceFrom(r Record) Voice {
	return Voice{
		ID:       r.ID,
		Name:     r.Name,
		Gender:   orNotSpecified(r.Str("gender")),
		Language: orNotSpecified(r.Str("language")),
		Accent:   orNotSpecified(r.Str("accent")),
	}
}

// DisplayName is the selection label, e.g. "Emma (female, en-GB)".
func (v Voice) DisplayName() string {
	return v.Name + " (" + v.Gender + ", " + v.Language + ")"
}

func orNotSpecified(s string) string {
	if s == "" {
		return notSpecified
	}
	return s
}
