package catalog

// Fallback returns the placeholder catalog served when the upstream is
// unreachable and fallback mode is on. Each call builds fresh records.
func Fallback(kind Kind) []Record {
	var raw []map[string]any
	if kind == KindVoice {
		raw = []map[string]any{
			{"id": "demo-voice-1", "name": "Emma", "gender": "female", "language": "en-US", "accent": "american"},
			{"id": "demo-voice-2", "name": "James", "gender": "male", "language": "en-GB", "accent": "british"},
			{"id": "demo-voice-3", "name": "Lucia", "gender": "female", "language": "es-ES", "accent": "castilian"},
		}
	} else {
		raw = []map[string]any{
			{"id": "demo-avatar-1", "name": "Demo Presenter", "description": "Placeholder avatar, upstream unavailable", "previewImageUrl": "https://placeholder.svg?height=150&width=150&query=Demo+Presenter"},
			{"id": "demo-avatar-2", "name": "Demo Host", "description": "Placeholder avatar, upstream unavailable", "previewImageUrl": "https://placeholder.svg?height=150&width=150&query=Demo+Host"},
		}
	}
	out := make([]Record, 0, len(raw))
	for _, obj := range raw {
		rec, _ := recordFrom(obj)
		out = append(out, rec)
	}
	return out
}

// IsFallbackID reports whether id belongs to the placeholder catalog.
func IsFallbackID(id string) bool {
	for _, kind := range []Kind{KindAvatar, KindVoice} {
		for _, r := range Fallback(kind) {
			if r.ID == id {
				return true
			}
		}
	}
	return false
}
