package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, false, "warn")
	l.Info().Msg("dropped")
	l.Warn().Msg("kept")

	if bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Fatalf("info line written at warn level: %s", buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not one JSON line: %v (%q)", err, buf.String())
	}
	if line["message"] != "kept" || line["service"] != "avatarstudio" {
		t.Fatalf("line = %+v", line)
	}

	if got := NewWithWriter(&buf, false, "nonsense").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("level = %v, want info fallback", got)
	}
	if got := NewWithWriter(&buf, true, "info").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("development level = %v, want debug", got)
	}
}

func TestRequestIDAndAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	var seen string
	h := RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/pot", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "rid-1" || rec.Header().Get("X-Request-ID") != "rid-1" {
		t.Fatalf("request id = %q / header %q, want rid-1", seen, rec.Header().Get("X-Request-ID"))
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("access log is not JSON: %v", err)
	}
	if line["status"] != float64(http.StatusTeapot) || line["path"] != "/pot" || line["bytes"] != float64(15) {
		t.Fatalf("access log = %+v", line)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pot", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing generated request id")
	}
}
