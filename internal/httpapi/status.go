package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	AvatarBaseURL         string        `json:"avatar_base_url"`
	GenerateBaseURL       string        `json:"generate_base_url"`
	DefaultAPIKey         bool          `json:"default_api_key"`
	FallbackCatalog       bool          `json:"fallback_catalog"`
	CatalogCacheTTLMS     int64         `json:"catalog_cache_ttl_ms"`
	AutoRefreshIntervalMS int64         `json:"auto_refresh_interval_ms"`
	ActiveSessions        int           `json:"active_sessions"`
	Checks                []statusCheck `json:"checks"`
}

// handleStatus reports configuration checks for the dashboard's setup panel.
// With ?probe=1 it also tries a TCP connection to each upstream host.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	probe := r.URL.Query().Get("probe") == "1"
	checks := make([]statusCheck, 0, 6)

	if strings.TrimSpace(s.cfg.PipioAPIKey) != "" {
		checks = append(checks, statusCheck{
			ID:     "api_key",
			Status: "ok",
			Label:  "Default API key",
			Detail: "configured",
		})
	} else {
		checks = append(checks, statusCheck{
			ID:     "api_key",
			Status: "warn",
			Label:  "Default API key",
			Detail: "not configured; sessions must supply api_key",
			Fix:    "Set PIPIO_API_KEY or pass api_key when creating a session.",
		})
	}

	for _, host := range []struct{ id, label, env, raw string }{
		{"avatar_host", "Avatar API", "PIPIO_AVATAR_BASE_URL", s.cfg.PipioAvatarBaseURL},
		{"generate_host", "Generation API", "PIPIO_GENERATE_BASE_URL", s.cfg.PipioGenerateBaseURL},
	} {
		check := statusCheck{ID: host.id, Status: "ok", Label: host.label, Detail: host.raw}
		if probe {
			if err := probeHost(host.raw); err != nil {
				check.Status = "error"
				check.Detail = fmt.Sprintf("%s unreachable: %v", host.raw, err)
				check.Fix = fmt.Sprintf("Check network access or %s.", host.env)
			}
		}
		checks = append(checks, check)
	}

	if s.catalog.FallbackEnabled() {
		checks = append(checks, statusCheck{
			ID:     "fallback_catalog",
			Status: "warn",
			Label:  "Fallback catalog",
			Detail: "demo avatars and voices are shown when listings fail",
			Fix:    "Unset CATALOG_USE_FALLBACK for production use.",
		})
	}

	respondJSON(w, http.StatusOK, statusResponse{
		AvatarBaseURL:         s.cfg.PipioAvatarBaseURL,
		GenerateBaseURL:       s.cfg.PipioGenerateBaseURL,
		DefaultAPIKey:         strings.TrimSpace(s.cfg.PipioAPIKey) != "",
		FallbackCatalog:       s.catalog.FallbackEnabled(),
		CatalogCacheTTLMS:     s.cfg.CatalogCacheTTL.Milliseconds(),
		AutoRefreshIntervalMS: s.cfg.AutoRefreshInterval.Milliseconds(),
		ActiveSessions:        s.sessions.ActiveCount(),
		Checks:                checks,
	})
}

func probeHost(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("host missing")
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	c, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), 500*time.Millisecond)
	if err != nil {
		return err
	}
	_ = c.Close()
	return nil
}
