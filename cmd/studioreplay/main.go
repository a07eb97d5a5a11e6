package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/avatarstudio/internal/jobs"
	"github.com/ent0n29/avatarstudio/internal/protocol"
)

type options struct {
	baseURL         string
	apiKey          string
	avatarID        string
	voiceID         string
	jobs            int
	format          string
	resolution      string
	refreshInterval time.Duration
	jobTimeout      time.Duration
	scripts         []string
	verbose         bool
}

type createSessionRequest struct {
	APIKey string `json:"api_key,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type selectRequest struct {
	AvatarID string `json:"avatar_id"`
	VoiceID  string `json:"voice_id"`
}

type createJobRequest struct {
	Script     string `json:"script"`
	Format     string `json:"format,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

type jobResponse struct {
	Job jobs.Job `json:"job"`
}

type listing struct {
	Avatars []struct {
		ID string `json:"id"`
	} `json:"avatars"`
	Voices []struct {
		ID string `json:"id"`
	} `json:"voices"`
	Fallback bool `json:"fallback"`
}

type wsEnvelope struct {
	Type   string   `json:"type"`
	Job    jobs.Job `json:"job"`
	Code   string   `json:"code,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

var defaultScripts = []string{
	"Welcome to the quarterly product update.",
	"Here is a short summary of what shipped this month.",
	"Thanks for watching, see you next time.",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "studioreplay: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "studioreplay: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var scriptsRaw string
	var refreshMS int
	var jobTimeoutMS int

	fs := flag.NewFlagSet("studioreplay", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "avatarstudio base URL")
	fs.StringVar(&cfg.apiKey, "api-key", os.Getenv("PIPIO_API_KEY"), "Pipio API key; blank uses the server default")
	fs.StringVar(&cfg.avatarID, "avatar-id", "", "avatar to select; defaults to the first listed")
	fs.StringVar(&cfg.voiceID, "voice-id", "", "voice to select; defaults to the first listed")
	fs.IntVar(&cfg.jobs, "jobs", 3, "number of clips to submit")
	fs.StringVar(&cfg.format, "format", "", "output format (mp4 or webm)")
	fs.StringVar(&cfg.resolution, "resolution", "", "output resolution (720p or 1080p)")
	fs.IntVar(&refreshMS, "refresh-ms", 5000, "interval between refresh_all requests in milliseconds")
	fs.IntVar(&jobTimeoutMS, "job-timeout-ms", 600000, "timeout waiting for every job to finish in milliseconds")
	fs.StringVar(&scriptsRaw, "scripts", "", "scripts separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.jobs <= 0 {
		return options{}, fmt.Errorf("jobs must be > 0")
	}
	if refreshMS < 1000 {
		refreshMS = 1000
	}
	if jobTimeoutMS < refreshMS {
		jobTimeoutMS = refreshMS
	}
	cfg.refreshInterval = time.Duration(refreshMS) * time.Millisecond
	cfg.jobTimeout = time.Duration(jobTimeoutMS) * time.Millisecond

	cfg.scripts = splitScripts(scriptsRaw)
	if strings.TrimSpace(scriptsRaw) != "" && len(cfg.scripts) == 0 {
		return options{}, fmt.Errorf("scripts produced no non-empty entries")
	}
	if len(cfg.scripts) == 0 {
		cfg.scripts = append([]string(nil), defaultScripts...)
	}
	return cfg, nil
}

func splitScripts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.jobTimeout+2*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	var created createSessionResponse
	if err := doJSON(ctx, httpClient, http.MethodPost, cfg.baseURL+"/v1/sessions", createSessionRequest{APIKey: cfg.apiKey}, http.StatusCreated, &created); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	sessionID := strings.TrimSpace(created.SessionID)
	if sessionID == "" {
		return fmt.Errorf("missing session_id in response")
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()
	base := cfg.baseURL + "/v1/sessions/" + url.PathEscape(sessionID)
	logf(cfg, "session=%s jobs=%d", sessionID, cfg.jobs)

	var avatars, voices listing
	start := time.Now()
	if err := doJSON(ctx, httpClient, http.MethodGet, base+"/avatars", nil, http.StatusOK, &avatars); err != nil {
		return fmt.Errorf("list avatars: %w", err)
	}
	logf(cfg, "avatars=%d fallback=%t in %s", len(avatars.Avatars), avatars.Fallback, time.Since(start).Round(time.Millisecond))
	start = time.Now()
	if err := doJSON(ctx, httpClient, http.MethodGet, base+"/voices", nil, http.StatusOK, &voices); err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	logf(cfg, "voices=%d fallback=%t in %s", len(voices.Voices), voices.Fallback, time.Since(start).Round(time.Millisecond))

	avatarID := pickID(cfg.avatarID, avatars.Avatars)
	voiceID := pickID(cfg.voiceID, voices.Voices)
	if avatarID == "" || voiceID == "" {
		return fmt.Errorf("no avatar or voice available to select")
	}
	if err := doJSON(ctx, httpClient, http.MethodPost, base+"/selection", selectRequest{AvatarID: avatarID, VoiceID: voiceID}, http.StatusOK, nil); err != nil {
		return fmt.Errorf("select: %w", err)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	jobCh := make(chan jobs.Job, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, jobCh, readErrCh, cfg)

	submitted := make(map[string]time.Time, cfg.jobs)
	for i := 0; i < cfg.jobs; i++ {
		script := cfg.scripts[i%len(cfg.scripts)]
		var out jobResponse
		start := time.Now()
		req := createJobRequest{Script: script, Format: cfg.format, Resolution: cfg.resolution}
		if err := doJSON(ctx, httpClient, http.MethodPost, base+"/jobs", req, http.StatusCreated, &out); err != nil {
			return fmt.Errorf("job %d submit: %w", i+1, err)
		}
		submitted[out.Job.ID] = start
		logf(cfg, "job %d/%d id=%s submitted in %s", i+1, cfg.jobs, out.Job.ID, time.Since(start).Round(time.Millisecond))
	}

	return awaitJobs(conn, sessionID, submitted, jobCh, readErrCh, cfg)
}

// awaitJobs asks the server to refresh on every tick and returns once every
// submitted job has reached a terminal status.
func awaitJobs(conn *websocket.Conn, sessionID string, pending map[string]time.Time, jobCh <-chan jobs.Job, readErrCh <-chan error, cfg options) error {
	ticker := time.NewTicker(cfg.refreshInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(cfg.jobTimeout)
	defer deadline.Stop()

	failed := 0
	for len(pending) > 0 {
		select {
		case job := <-jobCh:
			started, ok := pending[job.ID]
			if !ok || !job.Status.Terminal() {
				continue
			}
			delete(pending, job.ID)
			if job.Status == jobs.StatusFailed {
				failed++
			}
			logf(cfg, "job id=%s status=%s after %s url=%s", job.ID, job.Status, time.Since(started).Round(time.Second), job.ArtifactURL)
		case <-ticker.C:
			if err := sendRefresh(conn, sessionID); err != nil {
				return fmt.Errorf("send refresh: %w", err)
			}
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		case <-deadline.C:
			return fmt.Errorf("%d job(s) still processing after %s", len(pending), cfg.jobTimeout)
		}
	}
	logf(cfg, "replay completed failed=%d", failed)
	return nil
}

func sendRefresh(conn *websocket.Conn, sessionID string) error {
	return conn.WriteJSON(protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: sessionID,
		Action:    protocol.ActionRefreshAll,
	})
}

func readLoop(conn *websocket.Conn, jobCh chan<- jobs.Job, readErrCh chan<- error, cfg options) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch protocol.MessageType(env.Type) {
		case protocol.TypeJobUpdated:
			select {
			case jobCh <- env.Job:
			default:
			}
		case protocol.TypeErrorEvent:
			if cfg.verbose {
				fmt.Fprintf(os.Stderr, "studioreplay: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func doJSON(ctx context.Context, client *http.Client, method, target string, in any, wantStatus int, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != wantStatus {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func pickID(want string, items []struct {
	ID string `json:"id"`
}) string {
	if want = strings.TrimSpace(want); want != "" {
		return want
	}
	if len(items) == 0 {
		return ""
	}
	return items[0].ID
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/ws"
	return u.String(), nil
}

func logf(cfg options, format string, args ...any) {
	if !cfg.verbose {
		return
	}
	fmt.Printf("studioreplay: "+format+"\n", args...)
}
