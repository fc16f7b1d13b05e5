package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kinedeck/kinedeck-agent/internal/trial"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoopbackGuard())

	r.Get("/health", healthHandler(cfg))
	r.Get("/events", eventsHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/sources", listSourcesHandler(cfg))
		r.Post("/sources/folders", addFolderHandler(cfg))
		r.Delete("/sources/{id}", deleteSourceHandler(cfg))
		r.Get("/sources/{id}/trials", listSourceTrialsHandler(cfg))
		r.Get("/trials", listTrialsHandler(cfg))
		r.Get("/trials/{id}", getTrialHandler(cfg))
		r.Post("/scan", scanHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Post("/sessions", openSessionHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cfg))
		r.Delete("/sessions/{id}", closeSessionHandler(cfg))
		r.Post("/sessions/{id}/frame", frameHandler(cfg))
		r.Post("/sessions/{id}/sample", sampleHandler(cfg))
		r.Post("/sessions/{id}/exports/data", exportDataHandler(cfg))
		r.Post("/sessions/{id}/exports/video", exportVideoHandler(cfg))

		r.Get("/exports", listExportsHandler(cfg))
		r.Get("/exports/{name}", downloadExportHandler(cfg))

		r.Get("/playback/trial", playbackTrialHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sources, _ := cfg.TrialService.GetSources(ctx)
		trialsCount, _ := cfg.TrialService.CountTrials(ctx)
		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		state := "idle"
		var activeJob *JobResponse
		jobsRunning := 0
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, j := range jobs {
			if j.Status == trial.JobStatusRunning {
				switch j.Type {
				case trial.JobTypeExportVideo:
					state = "exporting"
				default:
					state = "scanning"
				}
				resp := JobToResponse(j)
				activeJob = &resp
				jobsRunning++
			}
			if j.Status == trial.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		resp := StatusResponse{
			State:        state,
			LastError:    lastError,
			SourcesCount: len(sources),
			TrialsCount:  trialsCount,
			JobsRunning:  jobsRunning,
			ActiveJob:    activeJob,
		}

		if cfg.Reviews != nil {
			resp.SessionsOpen = cfg.Reviews.Count()
		}

		if cfg.Prober != nil {
			caps, err := cfg.Prober.Get(ctx)
			if err == nil && caps != nil {
				capture := &CaptureStatusResponse{
					FFmpeg:           caps.FFmpeg.Available,
					FFprobe:          caps.FFprobe.Available,
					CaptureAvailable: caps.CaptureAvailable,
					FFmpegVersion:    caps.FFmpeg.Version,
				}
				if !caps.ProbedAt.IsZero() {
					capture.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
				}
				resp.Capture = capture
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// eventsHandler authenticates the websocket handshake itself: browsers cannot
// set an Authorization header on WebSocket upgrades, so the token may arrive
// as a query parameter instead.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		expected, err := cfg.Repository.GetConfig(r.Context(), authTokenKey)
		if err != nil || expected == "" || token != expected {
			WriteError(w, http.StatusUnauthorized, "invalid or missing token", "UNAUTHORIZED")
			return
		}

		cfg.Hub.ServeWS(w, r)
	}
}

func listSourcesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := cfg.TrialService.GetSources(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sources", "INTERNAL_ERROR")
			return
		}

		resp := SourcesResponse{Sources: make([]SourceResponse, len(sources))}
		for i, s := range sources {
			resp.Sources[i] = SourceToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addFolderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddFolderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		source, err := cfg.TrialService.AddFolder(r.Context(), req.Path, req.DisplayName)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusCreated, AddFolderResponse{SourceID: source.ID})
	}
}

func deleteSourceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "source id required", "BAD_REQUEST")
			return
		}

		if err := cfg.TrialService.RemoveSource(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listSourceTrialsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceID := chi.URLParam(r, "id")
		if sourceID == "" {
			WriteError(w, http.StatusBadRequest, "source id required", "BAD_REQUEST")
			return
		}

		trials, err := cfg.TrialService.GetTrials(r.Context(), sourceID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := TrialsResponse{Trials: make([]TrialResponse, len(trials))}
		for i, t := range trials {
			resp.Trials[i] = TrialToResponse(t)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func listTrialsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trials, err := cfg.TrialService.ListTrials(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list trials", "INTERNAL_ERROR")
			return
		}

		resp := TrialsResponse{Trials: make([]TrialResponse, len(trials))}
		for i, t := range trials {
			resp.Trials[i] = TrialToResponse(t)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getTrialHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "trial id required", "BAD_REQUEST")
			return
		}

		t, err := cfg.TrialService.GetTrial(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if t == nil {
			WriteError(w, http.StatusNotFound, "trial not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, TrialToResponse(t))
	}
}

func scanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.SourceID == "" {
			sources, err := cfg.TrialService.GetSources(r.Context())
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
			if len(sources) == 0 {
				WriteError(w, http.StatusBadRequest, "no sources configured", "BAD_REQUEST")
				return
			}
			req.SourceID = sources[0].ID
		}

		job, err := cfg.TrialService.ScanSource(r.Context(), req.SourceID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusAccepted, ScanResponse{JobID: job.ID})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		saved, err := cfg.Artifacts.List()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list exports", "INTERNAL_ERROR")
			return
		}

		resp := ArtifactsResponse{Artifacts: make([]ArtifactResponse, len(saved))}
		for i, s := range saved {
			resp.Artifacts[i] = ArtifactToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func downloadExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if name == "" {
			WriteError(w, http.StatusBadRequest, "artifact name required", "BAD_REQUEST")
			return
		}

		f, saved, err := cfg.Artifacts.Open(name)
		if err != nil {
			WriteError(w, http.StatusNotFound, "artifact not found", "NOT_FOUND")
			return
		}
		defer f.Close()

		w.Header().Set("Content-Disposition", `attachment; filename="`+saved.Name+`"`)
		if err := cfg.Playback.ServeContent(w, r, f, saved.Bytes, saved.MIME); err != nil {
			cfg.Logger.Error("artifact download error", "error", err, "name", name)
		}
	}
}

func playbackTrialHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trialID := r.URL.Query().Get("trial_id")
		if trialID == "" {
			WriteError(w, http.StatusBadRequest, "trial_id is required", "BAD_REQUEST")
			return
		}

		t, err := cfg.TrialService.GetTrial(r.Context(), trialID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if t == nil {
			WriteError(w, http.StatusNotFound, "trial not found", "NOT_FOUND")
			return
		}

		source, _ := cfg.TrialService.GetSource(r.Context(), t.SourceID)
		if source != nil && !source.Present {
			WriteError(w, http.StatusNotFound,
				"trial not available - source '"+source.DisplayName+"' is offline",
				"SOURCE_OFFLINE")
			return
		}

		if err := cfg.Playback.ServeTrial(w, r, t); err != nil {
			cfg.Logger.Error("playback error", "error", err, "trial_id", trialID)
		}
	}
}
