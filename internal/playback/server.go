// Package playback streams trial videos and export artifacts to the review
// UI over HTTP, with the byte-range support scrubbing depends on.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kinedeck/kinedeck-agent/internal/trial"
)

type PlaybackService interface {
	ServeTrial(w http.ResponseWriter, r *http.Request, tr *trial.Trial) error
	ServeContent(w http.ResponseWriter, r *http.Request, content io.ReadSeeker, size int64, contentType string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeTrial streams a trial's source video. The scan fingerprint doubles as
// a cache validator so players revalidate cheaply between scrub sessions.
func (s *Server) ServeTrial(w http.ResponseWriter, r *http.Request, tr *trial.Trial) error {
	file, err := os.Open(tr.VideoPath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "video not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat video: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(tr.VideoPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if tr.Fingerprint != "" {
		etag := `"` + tr.Fingerprint + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	}

	return s.ServeContent(w, r, file, stat.Size(), contentType)
}

// ServeContent writes a full or partial response for any seekable content.
// Artifact downloads reuse it with readers handed out by the sink.
func (s *Server) ServeContent(w http.ResponseWriter, r *http.Request, content io.ReadSeeker, size int64, contentType string) error {
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)

	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if err != nil && err != ErrInvalidRange {
		return err
	}

	if parsedRange == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, content)
		return nil
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", parsedRange.ContentLength()))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := content.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	io.CopyN(w, content, parsedRange.ContentLength())
	return nil
}
