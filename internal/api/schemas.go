package api

import (
	"time"

	"github.com/kinedeck/kinedeck-agent/internal/review"
	"github.com/kinedeck/kinedeck-agent/internal/sink"
	"github.com/kinedeck/kinedeck-agent/internal/trial"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State        string                 `json:"state"`
	LastError    string                 `json:"last_error,omitempty"`
	SourcesCount int                    `json:"sources_count"`
	TrialsCount  int                    `json:"trials_count"`
	SessionsOpen int                    `json:"sessions_open"`
	JobsRunning  int                    `json:"jobs_running"`
	ActiveJob    *JobResponse           `json:"active_job,omitempty"`
	Capture      *CaptureStatusResponse `json:"capture,omitempty"`
}

type CaptureStatusResponse struct {
	FFmpeg           bool   `json:"ffmpeg"`
	FFprobe          bool   `json:"ffprobe"`
	CaptureAvailable bool   `json:"capture_available"`
	FFmpegVersion    string `json:"ffmpeg_version,omitempty"`
	LastProbeAt      string `json:"last_probe_at,omitempty"`
}

type AddFolderRequest struct {
	Path        string `json:"path"`
	DisplayName string `json:"display_name,omitempty"`
}

type AddFolderResponse struct {
	SourceID string `json:"source_id"`
}

type SourceResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
	Present     bool   `json:"present"`
	CreatedAt   string `json:"created_at"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

type ScanRequest struct {
	SourceID string `json:"source_id,omitempty"`
}

type ScanResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	SourceID  string `json:"source_id,omitempty"`
	TrialID   string `json:"trial_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	Artifact  string `json:"artifact,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type TrialResponse struct {
	ID        string  `json:"id"`
	SourceID  string  `json:"source_id"`
	Name      string  `json:"name"`
	VideoPath string  `json:"video_path"`
	HasData   bool    `json:"has_data"`
	VideoSize int64   `json:"video_size"`
	Duration  float64 `json:"duration_s"`
	FrameRate float64 `json:"frame_rate"`
	Codec     string  `json:"codec,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type TrialsResponse struct {
	Trials []TrialResponse `json:"trials"`
}

type OpenSessionRequest struct {
	TrialID string `json:"trial_id"`
}

type SessionResponse struct {
	ID          string           `json:"id"`
	TrialID     string           `json:"trial_id"`
	MediaLoaded bool             `json:"media_loaded"`
	DataLoaded  bool             `json:"data_loaded"`
	CreatedAt   string           `json:"created_at"`
	Position    PositionResponse `json:"position"`
}

// FrameRequest moves the frame cursor. Exactly one of Delta or Frame must
// be set: Delta is a relative step, Frame an absolute target.
type FrameRequest struct {
	Delta *int `json:"delta,omitempty"`
	Frame *int `json:"frame,omitempty"`
}

type SampleRequest struct {
	Index int `json:"index"`
}

type PositionResponse struct {
	SessionID   string  `json:"session_id"`
	Frame       int     `json:"frame"`
	TotalFrames int     `json:"total_frames"`
	FrameTime   float64 `json:"frame_time_s"`
	Sample      int     `json:"sample"`
	SampleCount int     `json:"sample_count"`
	SampleTime  float64 `json:"sample_time_s"`
	Exporting   bool    `json:"exporting"`
}

type ArtifactResponse struct {
	Name    string `json:"name"`
	MIME    string `json:"mime"`
	Bytes   int64  `json:"bytes"`
	SavedAt string `json:"saved_at"`
}

type ArtifactsResponse struct {
	Artifacts []ArtifactResponse `json:"artifacts"`
}

type ExportVideoResponse struct {
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func SourceToResponse(s *trial.Source) SourceResponse {
	return SourceResponse{
		ID:          s.ID,
		Type:        s.Type,
		Path:        s.Path,
		DisplayName: s.DisplayName,
		Present:     s.Present,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *trial.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		SourceID:  j.SourceID,
		TrialID:   j.TrialID,
		SessionID: j.SessionID,
		Progress:  j.Progress,
		Error:     j.Error,
		Artifact:  j.Artifact,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func TrialToResponse(t *trial.Trial) TrialResponse {
	return TrialResponse{
		ID:        t.ID,
		SourceID:  t.SourceID,
		Name:      t.Name,
		VideoPath: t.VideoPath,
		HasData:   t.DataPath != "",
		VideoSize: t.VideoSize,
		Duration:  t.Duration,
		FrameRate: t.FrameRate,
		Codec:     t.Codec,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

func SessionToResponse(s *review.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID,
		TrialID:     s.TrialID,
		MediaLoaded: s.MediaLoaded,
		DataLoaded:  s.DataLoaded,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		Position:    PositionToResponse(s.ID, s.Position()),
	}
}

func PositionToResponse(sessionID string, pos review.Position) PositionResponse {
	return PositionResponse{
		SessionID:   sessionID,
		Frame:       pos.Frame,
		TotalFrames: pos.TotalFrames,
		FrameTime:   pos.FrameTime,
		Sample:      pos.Sample,
		SampleCount: pos.SampleCount,
		SampleTime:  pos.SampleTime,
		Exporting:   pos.Exporting,
	}
}

func ArtifactToResponse(s sink.Saved) ArtifactResponse {
	return ArtifactResponse{
		Name:    s.Name,
		MIME:    s.MIME,
		Bytes:   s.Bytes,
		SavedAt: s.SavedAt.Format(time.RFC3339),
	}
}
