package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/avatarstudio/internal/catalog"
)

type avatarListResponse struct {
	Avatars  []catalog.Avatar `json:"avatars"`
	Fallback bool             `json:"fallback"`
}

type voiceListResponse struct {
	Voices   []catalog.Voice     `json:"voices"`
	Facets   catalog.VoiceFacets `json:"facets"`
	Total    int                 `json:"total"`
	Fallback bool                `json:"fallback"`
}

// Listing failures never fail the request; they land in the session's
// diagnostic log and the caller gets an empty (or fallback) list.
func (s *Server) handleListAvatars(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	avatars := s.catalog.Avatars(r.Context(), sess.APIKey(), sess.Diagnostics)
	respondJSON(w, http.StatusOK, avatarListResponse{
		Avatars:  avatars,
		Fallback: allFallback(avatars, func(a catalog.Avatar) string { return a.ID }),
	})
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	all := s.catalog.Voices(r.Context(), sess.APIKey(), sess.Diagnostics)
	q := r.URL.Query()
	filter := catalog.VoiceFilter{
		Genders:   splitParam(q["gender"]),
		Languages: splitParam(q["language"]),
		Accents:   splitParam(q["accent"]),
	}
	respondJSON(w, http.StatusOK, voiceListResponse{
		Voices:   catalog.FilterVoices(all, filter),
		Facets:   catalog.Facets(all),
		Total:    len(all),
		Fallback: allFallback(all, func(v catalog.Voice) string { return v.ID }),
	})
}

// splitParam accepts both repeated and comma-separated query values.
func splitParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func allFallback[T any](items []T, id func(T) string) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !catalog.IsFallbackID(id(item)) {
			return false
		}
	}
	return true
}
