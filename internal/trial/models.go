package trial

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Source struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Path        string    `json:"path"`
	DisplayName string    `json:"display_name"`
	Present     bool      `json:"present"`
	CreatedAt   time.Time `json:"created_at"`
}

// Trial pairs a recorded video with the channel CSV captured alongside it.
// DataPath is empty when no CSV sits next to the video; such a trial is still
// reviewable, just without channel data.
type Trial struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Name        string    `json:"name"`
	VideoPath   string    `json:"video_path"`
	DataPath    string    `json:"data_path,omitempty"`
	VideoSize   int64     `json:"video_size"`
	VideoMtime  time.Time `json:"video_mtime"`
	Fingerprint string    `json:"fingerprint"`
	Duration    float64   `json:"duration_s"`
	FrameRate   float64   `json:"frame_rate"`
	Codec       string    `json:"codec,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	JobTypeScan        = "scan"
	JobTypeExportVideo = "export_video"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	SourceID  string    `json:"source_id,omitempty"`
	TrialID   string    `json:"trial_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

// DataExtension is the extension of the channel file expected next to each
// trial video.
const DataExtension = ".csv"

func NewID() string {
	return uuid.NewString()
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DataPathFor returns the sibling CSV path for a video: the same base name
// with the extension swapped.
func DataPathFor(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + DataExtension
}

// TrialName derives a trial's display name from its video filename.
func TrialName(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
