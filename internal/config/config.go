// Package config provides configuration management for the Kinedeck Agent.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// Default values
	DefaultPort     = 8707
	DefaultLogLevel = "info"
	DefaultDataDir  = ".kinedeck"

	// DefaultFrameRate is the assumed frames-per-second of trial video.
	// Lab cameras record at a fixed rate; media encoded at a different
	// rate drifts against the force series and is logged as a warning.
	DefaultFrameRate = 30.0

	// Environment variable names
	EnvPort      = "KINEDECK_PORT"
	EnvLogLevel  = "KINEDECK_LOG_LEVEL"
	EnvDataDir   = "KINEDECK_DATA_DIR"
	EnvFrameRate = "KINEDECK_FRAME_RATE"
	EnvExportDir = "KINEDECK_EXPORT_DIR"
	EnvHeadless  = "KINEDECK_HEADLESS"
	EnvWatch     = "KINEDECK_WATCH"

	// Capture environment variable names
	EnvFFmpeg       = "KINEDECK_FFMPEG"
	EnvFFprobe      = "KINEDECK_FFPROBE"
	EnvSeriesLayout = "KINEDECK_SERIES_LAYOUT"

	// Database filename
	DBFilename = "kinedeck.db"

	// Capture defaults
	DefaultProbeTimeout   = 30   // seconds
	DefaultCaptureTimeout = 1800 // 30 minutes
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ExportDir() string
	FrameRate() float64
	FFmpegPath() string
	FFprobePath() string
	SeriesLayoutPath() string
	Headless() bool
	WatchEnabled() bool
	ProbeTimeout() time.Duration
	CaptureTimeout() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port      int
	logLevel  string
	dataDir   string
	exportDir string
	frameRate float64
	headless  bool
	watch     bool

	ffmpegPath       string
	ffprobePath      string
	seriesLayoutPath string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:      DefaultPort,
		logLevel:  DefaultLogLevel,
		dataDir:   defaultDataDir(),
		frameRate: DefaultFrameRate,
		watch:     true,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	// Override export directory from environment
	if ed := os.Getenv(EnvExportDir); ed != "" {
		cfg.exportDir = ed
	}

	// Override frame rate from environment
	if fr := os.Getenv(EnvFrameRate); fr != "" {
		rate, err := strconv.ParseFloat(fr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvFrameRate, err)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("invalid %s: frame rate must be positive", EnvFrameRate)
		}
		cfg.frameRate = rate
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if w := os.Getenv(EnvWatch); w != "" {
		watch, err := strconv.ParseBool(w)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvWatch, err)
		}
		cfg.watch = watch
	}

	cfg.ffmpegPath = os.Getenv(EnvFFmpeg)
	cfg.ffprobePath = os.Getenv(EnvFFprobe)
	cfg.seriesLayoutPath = os.Getenv(EnvSeriesLayout)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ExportDir returns the directory trim artifacts are written to
func (c *EnvConfig) ExportDir() string {
	if c.exportDir != "" {
		return c.exportDir
	}
	return filepath.Join(c.dataDir, "exports")
}

// FrameRate returns the configured frames-per-second of trial video
func (c *EnvConfig) FrameRate() float64 {
	return c.frameRate
}

// FFmpegPath returns an explicit ffmpeg binary path, or empty for PATH lookup
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// FFprobePath returns an explicit ffprobe binary path, or empty for PATH lookup
func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

// SeriesLayoutPath returns the path to a YAML series layout file, or empty
// for the built-in force plate layout
func (c *EnvConfig) SeriesLayoutPath() string {
	return c.seriesLayoutPath
}

// Headless reports whether the tray UI is disabled
func (c *EnvConfig) Headless() bool {
	return c.headless
}

// WatchEnabled reports whether source folders are watched for new recordings
func (c *EnvConfig) WatchEnabled() bool {
	return c.watch
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return time.Duration(DefaultProbeTimeout) * time.Second
}

func (c *EnvConfig) CaptureTimeout() time.Duration {
	return time.Duration(DefaultCaptureTimeout) * time.Second
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
