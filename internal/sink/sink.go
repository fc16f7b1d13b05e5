// Package sink receives export artifacts. The agent's sink is a local
// directory the UI downloads from; saving an artifact is the whole export
// action, so fixed-name artifacts overwrite their predecessor rather than
// accumulate.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Saved describes one stored artifact.
type Saved struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	MIME    string    `json:"mime"`
	Bytes   int64     `json:"bytes"`
	SavedAt time.Time `json:"saved_at"`
}

// Sink stores export artifacts.
type Sink interface {
	Save(ctx context.Context, name, mime string, data []byte) (Saved, error)
}

// Store is a Sink whose artifacts can be listed and read back for download.
type Store interface {
	Sink
	Open(name string) (io.ReadSeekCloser, Saved, error)
	List() ([]Saved, error)
}

// DirSink writes artifacts into a single directory.
type DirSink struct {
	dir    string
	logger *slog.Logger
}

// NewDirSink creates the directory if needed and returns a sink over it.
func NewDirSink(dir string, logger *slog.Logger) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create export dir: %w", err)
	}
	return &DirSink{dir: dir, logger: logger}, nil
}

// Dir returns the directory artifacts are written to.
func (s *DirSink) Dir() string {
	return s.dir
}

// Save writes data under a sanitized name, replacing any previous artifact
// with that name.
func (s *DirSink) Save(ctx context.Context, name, mime string, data []byte) (Saved, error) {
	if err := ctx.Err(); err != nil {
		return Saved{}, err
	}

	clean := SanitizeName(name, 255)
	if clean == "" {
		return Saved{}, fmt.Errorf("artifact name %q sanitizes to nothing", name)
	}

	path := filepath.Join(s.dir, clean)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Saved{}, fmt.Errorf("write artifact: %w", err)
	}

	saved := Saved{
		Name:    clean,
		Path:    path,
		MIME:    mime,
		Bytes:   int64(len(data)),
		SavedAt: time.Now(),
	}

	if s.logger != nil {
		s.logger.Info("artifact saved",
			"name", clean,
			"bytes", saved.Bytes,
			"mime", mime,
		)
	}
	return saved, nil
}

// Open returns a reader over a stored artifact. The name must be a bare
// filename; anything path-like is rejected.
func (s *DirSink) Open(name string) (io.ReadSeekCloser, Saved, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, Saved{}, fmt.Errorf("invalid artifact name %q", name)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, Saved{}, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Saved{}, err
	}

	return f, Saved{
		Name:    name,
		Path:    path,
		MIME:    MIMEForName(name),
		Bytes:   info.Size(),
		SavedAt: info.ModTime(),
	}, nil
}

// List returns the stored artifacts, newest first.
func (s *DirSink) List() ([]Saved, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var out []Saved
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Saved{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			MIME:    MIMEForName(e.Name()),
			Bytes:   info.Size(),
			SavedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out, nil
}

// MIMEForName maps artifact filenames to the content types the agent
// produces.
func MIMEForName(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
