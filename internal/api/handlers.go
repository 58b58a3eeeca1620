package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/content-pipeline/internal/domain"
	"github.com/spherical/content-pipeline/internal/extract"
	"github.com/spherical/content-pipeline/internal/fingerprint"
	"github.com/spherical/content-pipeline/internal/observability"
	"github.com/spherical/content-pipeline/internal/pipeline"
	"github.com/spherical/content-pipeline/internal/state"
	"github.com/spherical/content-pipeline/internal/storage"
)

// Handler serves the pipeline endpoints.
type Handler struct {
	orch       *pipeline.Orchestrator
	tracker    *state.Tracker
	backend    storage.Backend
	sourcePath string
	sources    sourcePolicy
	logger     *observability.Logger
}

// ProcessRequest is the JSON body of POST /v1/process.
type ProcessRequest struct {
	SourcePath   string `json:"sourcePath,omitempty"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "content-pipeline"})
}

// Ready handles GET /ready by probing the storage backend.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.backend.Exists(r.Context(), state.DefaultKey); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "storage unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Process handles POST /v1/process. The body is either a PDF
// (Content-Type application/pdf) or a JSON ProcessRequest. An empty body
// processes the configured source.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	req := pipeline.Request{SourcePath: h.sourcePath}
	if v := r.URL.Query().Get("force"); v != "" {
		req.ForceRefresh, _ = strconv.ParseBool(v)
	}

	body := http.MaxBytesReader(w, r.Body, extract.MaxSourceSize)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/pdf":
		data, err := io.ReadAll(body)
		if err != nil {
			h.writeError(w, http.StatusRequestEntityTooLarge, "cannot read upload", err.Error())
			return
		}
		req.Source = data
		req.SourcePath = ""
	default:
		var pr ProcessRequest
		if err := json.NewDecoder(body).Decode(&pr); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if pr.SourcePath != "" {
			if !h.sources.allows(pr.SourcePath) {
				h.logger.Warn().Str("source_path", pr.SourcePath).Msg("Rejected source path outside the allowed sources")
				h.writeError(w, http.StatusBadRequest, "source path not allowed", "only the configured source or files under the source root may be processed")
				return
			}
			req.SourcePath = pr.SourcePath
		}
		req.ForceRefresh = req.ForceRefresh || pr.ForceRefresh
	}

	if req.Source == nil && req.SourcePath == "" {
		h.writeError(w, http.StatusBadRequest, "no source", "send a PDF body or a sourcePath")
		return
	}

	res := h.orch.Run(r.Context(), req)
	writeJSON(w, statusForResult(res), res)
}

// statusForResult maps a run outcome to an HTTP status. Stale results are
// still a success.
func statusForResult(res *pipeline.Result) int {
	switch {
	case res.Failure == nil:
		return http.StatusOK
	case res.Failure.Stage == domain.StageFingerprint:
		return http.StatusBadRequest
	case res.Failure.Recoverable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// State handles GET /v1/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.GetState())
}

// Freshness handles GET /v1/freshness. The fingerprint comes from the
// query string or, when absent, from hashing the configured source.
func (h *Handler) Freshness(w http.ResponseWriter, r *http.Request) {
	f := r.URL.Query().Get("fingerprint")
	if f == "" {
		if h.sourcePath == "" {
			h.writeError(w, http.StatusBadRequest, "fingerprint is required", "no source path is configured")
			return
		}
		fp, err := fingerprint.FromFile(h.sourcePath)
		if err != nil {
			h.writeError(w, http.StatusNotFound, "cannot read source", err.Error())
			return
		}
		f = fp.String()
	}
	if !fingerprint.Fingerprint(f).Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid fingerprint", f)
		return
	}
	writeJSON(w, http.StatusOK, h.tracker.CheckFreshness(f))
}

// Artifact handles GET /v1/artifacts/{format}.
func (h *Handler) Artifact(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "format")
	f := r.URL.Query().Get("fingerprint")

	a, err := h.orch.Artifact(r.Context(), f, kind)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "artifact not found", fmt.Sprintf("no %s output has been produced", kind))
		return
	case domain.IsType(err, domain.ErrorTypeValidation):
		h.writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	default:
		h.logger.Error().Err(err).Str("format", kind).Msg("Artifact download failed")
		h.writeError(w, http.StatusBadGateway, "storage error", err.Error())
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("X-Content-Fingerprint", a.Fingerprint)
	w.Header().Set("ETag", strconv.Quote(a.Fingerprint+"/"+kind))
	w.WriteHeader(http.StatusOK)
	w.Write(a.Data)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
