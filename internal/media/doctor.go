package media

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const defaultProbeCacheTTL = 5 * time.Minute

// ToolInfo reports the availability of one external binary.
type ToolInfo struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Capabilities describes what the local media toolchain can do.
type Capabilities struct {
	FFmpeg  ToolInfo `json:"ffmpeg"`
	FFprobe ToolInfo `json:"ffprobe"`

	// CaptureAvailable is true when both tools resolved, i.e. trials can
	// be probed and media exports produced.
	CaptureAvailable bool      `json:"capture_available"`
	ProbedAt         time.Time `json:"-"`
}

// Prober checks the media toolchain.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// ToolProber probes the real ffmpeg/ffprobe binaries.
type ToolProber struct {
	FFmpegPath  string // explicit path; empty = PATH lookup
	FFprobePath string
}

func (p *ToolProber) Probe(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{
		FFmpeg:   probeTool(ctx, p.FFmpegPath, "ffmpeg"),
		FFprobe:  probeTool(ctx, p.FFprobePath, "ffprobe"),
		ProbedAt: time.Now(),
	}
	caps.CaptureAvailable = caps.FFmpeg.Available && caps.FFprobe.Available
	return caps, nil
}

func probeTool(ctx context.Context, preferred, name string) ToolInfo {
	path, err := resolveTool(preferred, name)
	if err != nil {
		return ToolInfo{Error: err.Error()}
	}

	info := ToolInfo{Available: true, Path: path}

	// First line of `-version` output, e.g. "ffmpeg version 6.1 ...".
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "-version")
	cmd.Stdout = &limitedWriter{w: &out, limit: maxStderrBytes}
	if err := cmd.Run(); err == nil {
		if line, _, found := strings.Cut(out.String(), "\n"); found || line != "" {
			info.Version = strings.TrimSpace(line)
		}
	}
	return info
}

// CachedProber wraps a Prober to cache toolchain probes with a TTL, so
// status requests do not spawn subprocesses on every poll.
type CachedProber struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedProber creates a caching wrapper around toolchain probes.
func NewCachedProber(prober Prober, logger *slog.Logger) *CachedProber {
	return &CachedProber{
		prober: prober,
		ttl:    defaultProbeCacheTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (c *CachedProber) Get(ctx context.Context) (*Capabilities, error) {
	c.mu.RLock()
	if c.cached != nil && time.Since(c.cached.ProbedAt) < c.ttl {
		caps := c.cached
		c.mu.RUnlock()
		return caps, nil
	}
	c.mu.RUnlock()

	return c.Refresh(ctx)
}

// Peek returns the cached capabilities without probing, or nil.
func (c *CachedProber) Peek() *Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (c *CachedProber) Refresh(ctx context.Context) (*Capabilities, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	caps, err := c.prober.Probe(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("toolchain probe failed", "error", err)
		}
		// Return stale cache if available
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}

	c.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (c *CachedProber) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
