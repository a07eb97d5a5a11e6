package main

import (
	"testing"
	"time"
)

func TestWSURLForSession(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080/v1/sessions/s1/ws"},
		{base: "https://studio.example.com/app/", want: "wss://studio.example.com/app/v1/sessions/s1/ws"},
		{base: "ftp://example.com", wantErr: true},
		{base: "http://", wantErr: true},
	}
	for _, tt := range tests {
		got, err := wsURLForSession(tt.base, "s1")
		if tt.wantErr {
			if err == nil {
				t.Fatalf("wsURLForSession(%q) error = nil, want error", tt.base)
			}
			continue
		}
		if err != nil {
			t.Fatalf("wsURLForSession(%q) error = %v", tt.base, err)
		}
		if got != tt.want {
			t.Fatalf("wsURLForSession(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestParseFlagsDefaultsAndClamps(t *testing.T) {
	cfg, err := parseFlags([]string{"-base-url", "http://localhost:9000/", "-refresh-ms", "10", "-scripts", " a | | b "})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if cfg.baseURL != "http://localhost:9000" {
		t.Fatalf("baseURL = %q", cfg.baseURL)
	}
	if cfg.refreshInterval != time.Second {
		t.Fatalf("refreshInterval = %s, want 1s", cfg.refreshInterval)
	}
	if len(cfg.scripts) != 2 || cfg.scripts[0] != "a" || cfg.scripts[1] != "b" {
		t.Fatalf("scripts = %q", cfg.scripts)
	}

	cfg, err = parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags(nil) error = %v", err)
	}
	if len(cfg.scripts) != len(defaultScripts) {
		t.Fatalf("scripts = %d, want defaults", len(cfg.scripts))
	}
}

func TestParseFlagsRejectsInvalid(t *testing.T) {
	if _, err := parseFlags([]string{"-jobs", "0"}); err == nil {
		t.Fatalf("parseFlags(jobs=0) error = nil")
	}
	if _, err := parseFlags([]string{"-scripts", " | "}); err == nil {
		t.Fatalf("parseFlags(blank scripts) error = nil")
	}
}

func TestPickID(t *testing.T) {
	items := []struct {
		ID string `json:"id"`
	}{{ID: "first"}, {ID: "second"}}
	if got := pickID("", items); got != "first" {
		t.Fatalf("pickID() = %q, want first", got)
	}
	if got := pickID(" chosen ", items); got != "chosen" {
		t.Fatalf("pickID(chosen) = %q", got)
	}
	if got := pickID("", nil); got != "" {
		t.Fatalf("pickID(nil) = %q", got)
	}
}
