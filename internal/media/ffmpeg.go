package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	defaultProbeTimeout   = 30 * time.Second
	defaultCaptureTimeout = 30 * time.Minute
)

// Config holds the ffmpeg toolchain configuration.
type Config struct {
	FFmpegPath     string // path to ffmpeg binary; empty = PATH lookup
	FFprobePath    string // path to ffprobe binary; empty = PATH lookup
	ProbeTimeout   time.Duration
	CaptureTimeout time.Duration
	Logger         *slog.Logger
}

// FFmpeg opens surfaces backed by the ffmpeg toolchain: metadata via an
// ffprobe subprocess, capture via an ffmpeg stream-copy subprocess.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string // resolved ffmpeg path
	ffprobe string // resolved ffprobe path
}

// NewFFmpeg creates an FFmpeg opener, resolving both binaries.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	ffmpeg, err := resolveTool(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveTool(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = defaultCaptureTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cfg.Logger.Info("media toolchain initialised",
		"ffmpeg", ffmpeg,
		"ffprobe", ffprobe,
	)

	return &FFmpeg{cfg: cfg, ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

// Open probes path and returns a surface over it. A successful return means
// the metadata is loaded and Duration is known.
func (f *FFmpeg) Open(ctx context.Context, path string) (Surface, error) {
	info, err := f.probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return &ffmpegSurface{owner: f, path: path, info: info}, nil
}

// probe runs ffprobe and parses its JSON output.
func (f *FFmpeg) probe(ctx context.Context, path string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w: %s", err, stderrBuf.String())
	}

	return parseProbeOutput(output)
}

func parseProbeOutput(data []byte) (Info, error) {
	var probed struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(data, &probed); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := Info{}
	if probed.Format.Duration != "" {
		d, err := strconv.ParseFloat(probed.Format.Duration, 64)
		if err != nil {
			return Info{}, fmt.Errorf("parse duration %q: %w", probed.Format.Duration, err)
		}
		info.Duration = d
	}
	for _, s := range probed.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Codec = s.CodecName
		info.Width = s.Width
		info.Height = s.Height
		info.FrameRate = parseRational(s.RFrameRate)
		break
	}
	return info, nil
}

// parseRational converts ffprobe's "30000/1001" rate form to a float.
// Malformed input yields 0.
func parseRational(s string) float64 {
	if s == "" {
		return 0
	}
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// ffmpegSurface is a Surface over one probed file.
type ffmpegSurface struct {
	owner *FFmpeg
	path  string
	info  Info

	mu  sync.Mutex
	pos float64
}

func (s *ffmpegSurface) Info() Info {
	return s.info
}

func (s *ffmpegSurface) Duration() float64 {
	return s.info.Duration
}

func (s *ffmpegSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *ffmpegSurface) Seek(t float64) error {
	if t < 0 {
		t = 0
	}
	if t > s.info.Duration {
		t = s.info.Duration
	}
	s.mu.Lock()
	s.pos = t
	s.mu.Unlock()
	return nil
}

// Capture spawns a stream-copy subprocess emitting fragmented MP4 on
// stdout, so the byte stream is a valid video/mp4 payload from the first
// fragment onward even when truncated.
func (s *ffmpegSurface) Capture(ctx context.Context, from float64) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.owner.cfg.CaptureTimeout)

	cmd := exec.CommandContext(ctx, s.owner.ffmpeg, captureArgs(s.path, from)...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start capture: %w", err)
	}

	s.owner.cfg.Logger.Info("capture started",
		"from_s", from,
		"duration_s", s.info.Duration,
	)

	return &captureReader{
		stdout: stdout,
		cmd:    cmd,
		cancel: cancel,
		stderr: &stderrBuf,
		logger: s.owner.cfg.Logger,
	}, nil
}

// captureArgs builds the ffmpeg argument list for a from-to-end stream copy.
// -ss before -i seeks on the demuxer, which is fast and lands on the
// preceding keyframe.
func captureArgs(path string, from float64) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if from > 0 {
		args = append(args, "-ss", strconv.FormatFloat(from, 'f', -1, 64))
	}
	args = append(args,
		"-i", path,
		"-c", "copy",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	)
	return args
}

// captureReader streams a capture subprocess's stdout and reaps the
// process on Close.
type captureReader struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *bytes.Buffer
	logger *slog.Logger

	closeOnce sync.Once
	waitErr   error
}

func (r *captureReader) Read(p []byte) (int, error) {
	return r.stdout.Read(p)
}

// Close reaps the subprocess. A non-nil return means the capture did not
// run to completion; bytes already read remain valid fragments.
func (r *captureReader) Close() error {
	r.closeOnce.Do(func() {
		r.stdout.Close()
		r.cancel()
		err := r.cmd.Wait()
		if err != nil {
			tail := r.stderr.String()
			r.logger.Warn("capture subprocess exited with error",
				"error", err,
				"stderr_tail", truncate(tail, 512),
			)
			r.waitErr = fmt.Errorf("capture: %w: %s", err, tail)
		}
	})
	return r.waitErr
}

// resolveTool finds a binary, preferring an explicitly configured path.
func resolveTool(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("no %s binary found on PATH", name)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
