package catalog

import (
	"sort"
	"strings"
)

// VoiceFilter keeps voices whose attribute matches any listed value.
// An empty list does not constrain that attribute.
type VoiceFilter struct {
	Genders   []string
	Languages []string
	Accents   []string
}

func (f VoiceFilter) Empty() bool {
	return len(f.Genders) == 0 && len(f.Languages) == 0 && len(f.Accents) == 0
}

func FilterVoices(voices []Voice, f VoiceFilter) []Voice {
	if f.Empty() {
		return voices
	}
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		if matchAny(v.Gender, f.Genders) && matchAny(v.Language, f.Languages) && matchAny(v.Accent, f.Accents) {
			out = append(out, v)
		}
	}
	return out
}

func matchAny(value string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if strings.EqualFold(strings.TrimSpace(w), value) {
			return true
		}
	}
	return false
}

// VoiceFacets lists the distinct filter options present in a voice set.
type VoiceFacets struct {
	Genders   []string `json:"genders"`
	Languages []string `json:"languages"`
	Accents   []string `json:"accents"`
}

func Facets(voices []Voice) VoiceFacets {
	g, l, a := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for _, v := range voices {
		g[v.Gender] = struct{}{}
		l[v.Language] = struct{}{}
		a[v.Accent] = struct{}{}
	}
	return VoiceFacets{Genders: setKeys(g), Languages: setKeys(l), Accents: setKeys(a)}
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
