package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kinedeck/kinedeck-agent/internal/review"
)

// sessionFromRequest resolves the {id} route param to an open session,
// writing the error response itself when it cannot.
func sessionFromRequest(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*review.Session, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "session id required", "BAD_REQUEST")
		return nil, false
	}

	sess, ok := cfg.Reviews.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
		return nil, false
	}
	return sess, true
}

func openSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.TrialID == "" {
			WriteError(w, http.StatusBadRequest, "trial_id is required", "BAD_REQUEST")
			return
		}

		t, err := cfg.TrialService.GetTrial(r.Context(), req.TrialID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if t == nil {
			WriteError(w, http.StatusNotFound, "trial not found", "NOT_FOUND")
			return
		}

		sess, err := cfg.Reviews.Open(r.Context(), t.ID, t.VideoPath, t.DataPath)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, SessionToResponse(sess))
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, SessionToResponse(sess))
	}
}

func closeSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "session id required", "BAD_REQUEST")
			return
		}

		if !cfg.Reviews.Close(id) {
			WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// frameHandler moves the frame cursor. A relative move that would land
// outside the video is ignored and the unchanged position comes back; an
// absolute move clamps into range instead.
func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(cfg, w, r)
		if !ok {
			return
		}

		var req FrameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		switch {
		case req.Delta != nil && req.Frame != nil:
			WriteError(w, http.StatusBadRequest, "delta and frame are mutually exclusive", "BAD_REQUEST")
		case req.Delta != nil:
			pos, _ := sess.MoveFrame(*req.Delta)
			WriteJSON(w, http.StatusOK, PositionToResponse(sess.ID, pos))
		case req.Frame != nil:
			pos := sess.SetFrame(*req.Frame)
			WriteJSON(w, http.StatusOK, PositionToResponse(sess.ID, pos))
		default:
			WriteError(w, http.StatusBadRequest, "either delta or frame is required", "BAD_REQUEST")
		}
	}
}

func sampleHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(cfg, w, r)
		if !ok {
			return
		}

		var req SampleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		pos := sess.SetSample(req.Index)
		WriteJSON(w, http.StatusOK, PositionToResponse(sess.ID, pos))
	}
}

func exportDataHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(cfg, w, r)
		if !ok {
			return
		}

		saved, err := cfg.Reviews.ExportData(r.Context(), sess.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, ArtifactToResponse(saved))
	}
}

// exportVideoHandler queues the capture job. The session's exporting flag
// is claimed here, before the job lands in the queue, so a double-click
// cannot start two captures; the runner releases the flag when the job
// settles. A request that loses the claim still gets 202 with the job
// already in flight.
func exportVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(cfg, w, r)
		if !ok {
			return
		}

		if !sess.BeginExport() {
			resp := ExportVideoResponse{Status: "exporting"}
			if job, err := cfg.Repository.GetActiveExportJob(r.Context(), sess.ID); err == nil && job != nil {
				resp.JobID = job.ID
				resp.Status = job.Status
			}
			WriteJSON(w, http.StatusAccepted, resp)
			return
		}

		job, err := cfg.TrialService.CreateExportJob(r.Context(), sess.ID, sess.TrialID)
		if err != nil {
			sess.EndExport()
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, ExportVideoResponse{JobID: job.ID, Status: job.Status})
	}
}
