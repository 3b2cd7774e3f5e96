// Package server exposes capture jobs over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/porticus-lab/viewcapture/internal/jobs"
	"github.com/porticus-lab/viewcapture/internal/logging"
)

// DownloadName is the file name offered to clients for an artifact.
const DownloadName = "converted.pdf"

// Jobs is the part of the coordinator the handlers use.
type Jobs interface {
	Submit(ctx context.Context, rawURL string) (string, error)
	Status(ctx context.Context, id string) (jobs.Job, error)
	Artifact(ctx context.Context, id string) (string, error)
	Release(ctx context.Context, id string) error
}

// Options configures the handler.
type Options struct {
	// PublicDir is served at /. Empty disables static files.
	PublicDir string
	// LogDir is read by /api/logs. The endpoint is only mounted when LogUser
	// and LogPassword are both set.
	LogDir      string
	LogUser     string
	LogPassword string
	Logger      *slog.Logger
}

// Handler serves the job API.
type Handler struct {
	jobs   Jobs
	opts   Options
	logger *slog.Logger
}

// New returns the router for the service.
func New(j Jobs, opts Options) http.Handler {
	h := &Handler{jobs: j, opts: opts, logger: opts.Logger}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/convert", h.Convert).Methods(http.MethodPost)
	api.HandleFunc("/job/{id}", h.GetJob).Methods(http.MethodGet)
	if opts.LogUser != "" && opts.LogPassword != "" {
		api.Handle("/logs", h.basicAuth(http.HandlerFunc(h.Logs))).Methods(http.MethodGet)
	}

	r.HandleFunc("/download/{id}", h.Download).Methods(http.MethodGet)

	if opts.PublicDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.PublicDir)))
	}
	return r
}

type convertRequest struct {
	DriveURL string `json:"driveUrl"`
}

type convertResponse struct {
	JobID string `json:"jobId"`
}

// Convert handles POST /api/convert.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DriveURL == "" {
		writeError(w, http.StatusBadRequest, "Drive URL is required")
		return
	}

	id, err := h.jobs.Submit(r.Context(), req.DriveURL)
	switch {
	case errors.Is(err, jobs.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusOK, convertResponse{JobID: id})
}

// GetJob handles GET /api/job/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Status(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.logger.Error("job lookup failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Download handles GET /download/{id}. After a full download the job's
// files and record are released, even if the client went away mid-transfer.
// Range requests leave the job in place so the client can fetch the rest;
// such jobs are released by a later full download or expire with the Redis
// TTL.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	path, err := h.jobs.Artifact(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrNotReady) {
		http.Error(w, "File not ready or not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("artifact lookup failed", "job_id", id, "error", err)
		http.Error(w, "artifact lookup failed", http.StatusInternalServerError)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Error("opening artifact", "job_id", id, "error", err)
		http.Error(w, "File not ready or not found", http.StatusNotFound)
		return
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		http.Error(w, "artifact unreadable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadName+`"`)
	http.ServeContent(w, r, DownloadName, stat.ModTime(), f)
	f.Close()

	if r.Header.Get("Range") != "" {
		return
	}

	if err := h.jobs.Release(context.WithoutCancel(r.Context()), id); err != nil {
		h.logger.Warn("releasing job after download", "job_id", id, "error", err)
	}
}

// Logs handles GET /api/logs?date=YYYY-MM-DD.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	data, err := logging.ReadDay(h.opts.LogDir, r.URL.Query().Get("date"))
	switch {
	case errors.Is(err, logging.ErrNoLog):
		writeError(w, http.StatusNotFound, "no log for that date")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Write(data)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) basicAuth(next http.Handler) http.Handler {
	user, pass := []byte(h.opts.LogUser), []byte(h.opts.LogPassword)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), user) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pass) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="logs"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
