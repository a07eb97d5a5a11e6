package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/avatarstudio/internal/diag"
	"github.com/ent0n29/avatarstudio/internal/jobs"
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

type createJobRequest struct {
	Script          string   `json:"script"`
	Format          string   `json:"format"`
	Resolution      string   `json:"resolution"`
	BackgroundColor string   `json:"background_color"`
	SpeedFactor     *float64 `json:"speed_factor"`
}

type jobListResponse struct {
	Jobs   []jobs.Job  `json:"jobs"`
	Counts jobs.Counts `json:"counts"`
}

// jobResponse carries a job plus a warning when the upstream could not be
// reached and the job shown is the last known state.
type jobResponse struct {
	Job     jobs.Job `json:"job"`
	Warning string   `json:"warning,omitempty"`
}

type refreshResponse struct {
	Report jobs.RefreshReport `json:"report"`
	Jobs   []jobs.Job         `json:"jobs"`
	Counts jobs.Counts        `json:"counts"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	opts := jobs.Options{
		Format:          strings.TrimSpace(req.Format),
		Resolution:      strings.TrimSpace(req.Resolution),
		BackgroundColor: strings.TrimSpace(req.BackgroundColor),
	}
	if req.SpeedFactor != nil {
		// Options treats zero as unset; an explicit zero is out of range.
		if *req.SpeedFactor == 0 {
			respondKindError(w, pipio.Validationf("speedFactor must be between 0.5 and 1.5, got 0"))
			return
		}
		opts.SpeedFactor = *req.SpeedFactor
	}

	job, err := sess.Generate(r.Context(), req.Script, opts)
	if err != nil {
		respondKindError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, jobResponse{Job: job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	var statuses []jobs.Status
	for _, raw := range splitParam(r.URL.Query()["status"]) {
		st := jobs.Status(strings.ToLower(raw))
		switch st {
		case jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusUnknown:
			statuses = append(statuses, st)
		default:
			respondError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("unknown status %q", raw))
			return
		}
	}
	respondJSON(w, http.StatusOK, jobListResponse{
		Jobs:   sess.Jobs.List(statuses...),
		Counts: sess.Jobs.Counts(),
	})
}

func (s *Server) handleRefreshJobs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	report, list := sess.RefreshAll(r.Context())
	respondJSON(w, http.StatusOK, refreshResponse{
		Report: report,
		Jobs:   list,
		Counts: sess.Jobs.Counts(),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	job, err := sess.Jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		respondKindError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobResponse{Job: job})
}

func (s *Server) handlePollJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	job, err := sess.Poll(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		switch pipio.KindOf(err) {
		case pipio.KindValidation, pipio.KindNotFound:
			respondKindError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, jobResponse{Job: job, Warning: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, jobResponse{Job: job})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	job, err := sess.Remove(chi.URLParam(r, "jobID"))
	if err != nil {
		respondKindError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, jobResponse{Job: job})
}

// handleDownloadJob streams the finished video through the service so the
// browser gets a stable same-origin URL and a proper file name.
func (s *Server) handleDownloadJob(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.activeSession(w, r)
	if !ok {
		return
	}
	job, err := sess.Jobs.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		respondKindError(w, err)
		return
	}
	if job.Status != jobs.StatusCompleted || job.ArtifactURL == "" {
		respondError(w, http.StatusConflict, "artifact_not_ready", fmt.Sprintf("job %s is %s", job.ID, job.Status))
		return
	}
	if s.downloader == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "downloads are not configured")
		return
	}

	art, err := s.downloader.Download(r.Context(), job.ArtifactURL)
	if err != nil {
		sess.Diagnostics.Record(diag.FromError(pipio.EndpointArtifact, err))
		respondKindError(w, err)
		return
	}
	defer art.Body.Close()

	contentType := art.ContentType
	if contentType == "" {
		contentType = "video/" + job.Options.Format
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="pipio_video_%s.%s"`, job.ID, job.Options.Format))
	if art.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(art.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, art.Body); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("artifact stream interrupted")
	}
}
