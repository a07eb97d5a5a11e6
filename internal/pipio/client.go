package pipio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/avatarstudio/internal/reliability"
)

const (
	DefaultAvatarBaseURL   = "https://avatar.pipio.ai"
	DefaultGenerateBaseURL = "https://generate.pipio.ai"

	EndpointActors     = "actor"
	EndpointVoices     = "voice"
	EndpointSubmit     = "single-clip"
	EndpointClipStatus = "single-clip-status"
	EndpointArtifact   = "artifact"

	maxJSONBody   = 8 << 20
	maxSnippetLen = 512
)

// Observer receives one call per upstream request.
type Observer interface {
	ObserveUpstream(endpoint, outcome string, d time.Duration)
}

type Config struct {
	AvatarBaseURL   string
	GenerateBaseURL string
	ListTimeout     time.Duration
	SubmitTimeout   time.Duration
	// Transport overrides the HTTP transport; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	Observer  Observer
}

// Client talks to the avatar listing and clip generation hosts.
type Client struct {
	avatarBase   string
	generateBase string
	short        *http.Client
	long         *http.Client
	observer     Observer
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.AvatarBaseURL) == "" {
		cfg.AvatarBaseURL = DefaultAvatarBaseURL
	}
	if strings.TrimSpace(cfg.GenerateBaseURL) == "" {
		cfg.GenerateBaseURL = DefaultGenerateBaseURL
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	return &Client{
		avatarBase:   strings.TrimRight(strings.TrimSpace(cfg.AvatarBaseURL), "/"),
		generateBase: strings.TrimRight(strings.TrimSpace(cfg.GenerateBaseURL), "/"),
		short:        &http.Client{Timeout: cfg.ListTimeout, Transport: cfg.Transport},
		long:         &http.Client{Timeout: cfg.SubmitTimeout, Transport: cfg.Transport},
		observer:     cfg.Observer,
	}
}

// ClipRequest is the body of a generation submission. Zero-valued options are omitted.
type ClipRequest struct {
	ActorID         string  `json:"actorId"`
	VoiceID         string  `json:"voiceId"`
	Script          string  `json:"script"`
	Format          string  `json:"format,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	SpeedFactor     float64 `json:"speedFactor,omitempty"`
}

type Clip struct {
	ID string
}

// ClipState is the decoded status payload. Status is empty when the field was absent.
type ClipState struct {
	Status   string
	VideoURL string
}

// Artifact is a streamed download; the caller must close Body.
type Artifact struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// ListActors returns the decoded actor listing without interpreting its shape.
func (c *Client) ListActors(ctx context.Context, apiKey string) (Document, error) {
	return c.getJSON(ctx, EndpointActors, c.avatarBase+"/actor", apiKey)
}

// ListVoices returns the decoded voice listing without interpreting its shape.
func (c *Client) ListVoices(ctx context.Context, apiKey string) (Document, error) {
	return c.getJSON(ctx, EndpointVoices, c.avatarBase+"/voice", apiKey)
}

func (c *Client) CreateClip(ctx context.Context, apiKey string, req ClipRequest) (Clip, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Clip{}, &Error{Kind: KindValidation, Endpoint: EndpointSubmit, Err: fmt.Errorf("marshal request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.generateBase+"/single-clip", bytes.NewReader(payload))
	if err != nil {
		return Clip{}, &Error{Kind: KindTransport, Endpoint: EndpointSubmit, Err: fmt.Errorf("create request: %w", err)}
	}
	setAuth(httpReq, apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	doc, err := c.doJSON(c.long, EndpointSubmit, httpReq)
	if err != nil {
		return Clip{}, err
	}
	obj, ok := doc.Value.(map[string]any)
	if !ok {
		return Clip{}, &Error{Kind: KindMalformedResponse, Endpoint: EndpointSubmit, Err: fmt.Errorf("expected object, got %s", jsonKind(doc.Value))}
	}
	id := stringField(obj, "id")
	if id == "" {
		return Clip{}, &Error{Kind: KindMalformedResponse, Endpoint: EndpointSubmit, Snippet: snippetOf(obj), Err: errors.New("response has no id")}
	}
	return Clip{ID: id}, nil
}

func (c *Client) ClipStatus(ctx context.Context, apiKey, clipID string) (ClipState, error) {
	clipID = strings.TrimSpace(clipID)
	if clipID == "" {
		return ClipState{}, &Error{Kind: KindValidation, Endpoint: EndpointClipStatus, Err: errors.New("clip id is required")}
	}
	doc, err := c.getJSON(ctx, EndpointClipStatus, c.generateBase+"/single-clip/"+url.PathEscape(clipID), apiKey)
	if err != nil {
		return ClipState{}, err
	}
	obj, ok := doc.Value.(map[string]any)
	if !ok {
		return ClipState{}, &Error{Kind: KindMalformedResponse, Endpoint: EndpointClipStatus, Err: fmt.Errorf("expected object, got %s", jsonKind(doc.Value))}
	}
	return ClipState{
		Status:   stringField(obj, "status"),
		VideoURL: stringField(obj, "videoUrl"),
	}, nil
}

// Download opens the finished video. The artifact URL is public, so no auth header is sent.
func (c *Client) Download(ctx context.Context, artifactURL string) (*Artifact, error) {
	u, err := url.Parse(strings.TrimSpace(artifactURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{Kind: KindValidation, Endpoint: EndpointArtifact, Err: fmt.Errorf("invalid artifact url %q", artifactURL)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Endpoint: EndpointArtifact, Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	res, err := c.long.Do(req)
	if err != nil {
		c.observe(EndpointArtifact, "transport_error", start)
		return nil, transportError(EndpointArtifact, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxSnippetLen))
		_ = res.Body.Close()
		c.observe(EndpointArtifact, "bad_status", start)
		return nil, statusError(EndpointArtifact, res.StatusCode, body)
	}
	c.observe(EndpointArtifact, "ok", start)
	return &Artifact{
		Body:          res.Body,
		ContentType:   res.Header.Get("Content-Type"),
		ContentLength: res.ContentLength,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, target, apiKey string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Document{}, &Error{Kind: KindTransport, Endpoint: endpoint, Err: fmt.Errorf("create request: %w", err)}
	}
	setAuth(req, apiKey)
	return c.doJSON(c.short, endpoint, req)
}

func (c *Client) doJSON(client *http.Client, endpoint string, req *http.Request) (Document, error) {
	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		c.observe(endpoint, "transport_error", start)
		return Document{}, transportError(endpoint, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxJSONBody+1))
	if err != nil {
		c.observe(endpoint, "transport_error", start)
		return Document{}, transportError(endpoint, fmt.Errorf("read response: %w", err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.observe(endpoint, "bad_status", start)
		return Document{}, statusError(endpoint, res.StatusCode, body)
	}
	if len(body) > maxJSONBody {
		c.observe(endpoint, "oversized", start)
		return Document{}, &Error{
			Kind:       KindMalformedResponse,
			Endpoint:   endpoint,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("response body exceeds %d bytes", maxJSONBody),
		}
	}

	doc, err := DecodeDocument(body)
	if err != nil {
		c.observe(endpoint, "malformed", start)
		return Document{}, &Error{
			Kind:       KindMalformedResponse,
			Endpoint:   endpoint,
			StatusCode: res.StatusCode,
			Snippet:    truncate(string(body), maxSnippetLen),
			Err:        fmt.Errorf("decode json: %w", err),
		}
	}
	c.observe(endpoint, "ok", start)
	return doc, nil
}

func (c *Client) observe(endpoint, outcome string, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveUpstream(endpoint, outcome, time.Since(start))
}

func setAuth(req *http.Request, apiKey string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Key "+strings.TrimSpace(apiKey))
}

func transportError(endpoint string, err error) *Error {
	if reliability.IsTimeout(err) {
		err = fmt.Errorf("request timed out: %w", err)
	}
	return &Error{Kind: KindTransport, Endpoint: endpoint, Retryable: true, Err: err}
}

func statusError(endpoint string, code int, body []byte) *Error {
	snippet := truncate(strings.TrimSpace(string(body)), maxSnippetLen)
	return &Error{
		Kind:       KindTransport,
		Endpoint:   endpoint,
		StatusCode: code,
		Snippet:    snippet,
		Retryable:  reliability.IsRetryableHTTPStatus(code),
		Err:        fmt.Errorf("unexpected status %d", code),
	}
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func snippetOf(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return truncate(string(raw), maxSnippetLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
