package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/avatarstudio/internal/catalog"
	"github.com/ent0n29/avatarstudio/internal/config"
	"github.com/ent0n29/avatarstudio/internal/logging"
	"github.com/ent0n29/avatarstudio/internal/observability"
	"github.com/ent0n29/avatarstudio/internal/pipio"
	"github.com/ent0n29/avatarstudio/internal/session"
)

// Downloader opens a finished video for streaming.
type Downloader interface {
	Download(ctx context.Context, artifactURL string) (*pipio.Artifact, error)
}

type Server struct {
	cfg        config.Config
	sessions   *session.Manager
	catalog    *catalog.Service
	downloader Downloader
	metrics    *observability.Metrics
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
	static     http.Handler
}

func New(cfg config.Config, sessions *session.Manager, catalogService *catalog.Service, downloader Downloader, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		catalog:    catalogService,
		downloader: downloader,
		metrics:    metrics,
		logger:     logger.With().Str("component", "httpapi").Logger(),
		static:     newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a session's job stream.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.RequestID)
	r.Use(logging.AccessLog(s.logger))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Route("/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/end", s.handleEndSession)

		r.Get("/avatars", s.handleListAvatars)
		r.Get("/voices", s.handleListVoices)
		r.Get("/selection", s.handleGetSelection)
		r.Post("/selection", s.handleSelect)

		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs/refresh", s.handleRefreshJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Post("/jobs/{jobID}/poll", s.handlePollJob)
		r.Delete("/jobs/{jobID}", s.handleDeleteJob)
		r.Get("/jobs/{jobID}/download", s.handleDownloadJob)

		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Get("/ws", s.handleSessionWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"fallback_catalog": s.catalog.FallbackEnabled(),
	})
}

// activeSession resolves the {id} URL param or writes the error response.
func (s *Server) activeSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Active(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	return sess, true
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondKindError maps an error kind onto an HTTP status. Upstream faults
// become 502 with the kind as the code.
func respondKindError(w http.ResponseWriter, err error) {
	kind := pipio.KindOf(err)
	resp := errorResponse{Error: err.Error(), Code: string(kind)}
	status := http.StatusInternalServerError
	switch kind {
	case pipio.KindValidation:
		status = http.StatusBadRequest
		resp.Code = "invalid_request"
	case pipio.KindNotFound:
		status = http.StatusNotFound
		resp.Code = "not_found"
	case pipio.KindTransport, pipio.KindMalformedResponse, pipio.KindUnrecognizedShape:
		status = http.StatusBadGateway
		var pe *pipio.Error
		if errors.As(err, &pe) {
			resp.Retryable = pe.Retryable
		}
	default:
		resp.Code = "internal"
	}
	respondJSON(w, status, resp)
}
