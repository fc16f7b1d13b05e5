package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// StubOpener opens StubSurfaces. It is wired in when the ffmpeg toolchain
// is unavailable, keeping data review working with media features inert,
// and serves as the test double for anything that opens surfaces.
type StubOpener struct {
	logger *slog.Logger

	// Template fields for opened surfaces. The zero value opens surfaces
	// with no duration and empty captures.
	Dur         float64
	Rate        float64
	CaptureData []byte
	CaptureErr  error
	FailAfter   int

	// OpenErr, when set, makes Open fail.
	OpenErr error

	mu     sync.Mutex
	opened []*StubSurface
}

func NewStubOpener(logger *slog.Logger) *StubOpener {
	return &StubOpener{logger: logger}
}

func (o *StubOpener) Open(ctx context.Context, path string) (Surface, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	if o.logger != nil {
		o.logger.Info("media stub: open requested", "path", path)
	}
	s := &StubSurface{
		Path:        path,
		Dur:         o.Dur,
		Rate:        o.Rate,
		CaptureData: o.CaptureData,
		CaptureErr:  o.CaptureErr,
		FailAfter:   o.FailAfter,
	}
	o.mu.Lock()
	o.opened = append(o.opened, s)
	o.mu.Unlock()
	return s, nil
}

// LastOpened returns the most recently opened surface, or nil.
func (o *StubOpener) LastOpened() *StubSurface {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.opened) == 0 {
		return nil
	}
	return o.opened[len(o.opened)-1]
}

// StubSurface is a canned Surface for tests and degraded operation.
type StubSurface struct {
	Path        string
	Dur         float64
	Rate        float64
	CaptureData []byte // bytes returned by Capture
	CaptureErr  error  // error returned by Capture itself
	FailAfter   int    // when > 0, the capture stream errors after this many bytes

	mu    sync.Mutex
	pos   float64
	seeks []float64
}

func (s *StubSurface) Info() Info {
	return Info{Duration: s.Dur, FrameRate: s.Rate}
}

func (s *StubSurface) Duration() float64 {
	return s.Dur
}

func (s *StubSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *StubSurface) Seek(t float64) error {
	if t < 0 {
		t = 0
	}
	if t > s.Dur {
		t = s.Dur
	}
	s.mu.Lock()
	s.pos = t
	s.seeks = append(s.seeks, t)
	s.mu.Unlock()
	return nil
}

// Seeks returns every target Seek has been called with, in order.
func (s *StubSurface) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.seeks))
	copy(out, s.seeks)
	return out
}

func (s *StubSurface) Capture(ctx context.Context, from float64) (io.ReadCloser, error) {
	if s.CaptureErr != nil {
		return nil, s.CaptureErr
	}
	if s.FailAfter > 0 && s.FailAfter < len(s.CaptureData) {
		return &failingReader{
			Reader: bytes.NewReader(s.CaptureData[:s.FailAfter]),
			err:    fmt.Errorf("stub stream interrupted after %d bytes", s.FailAfter),
		}, nil
	}
	return io.NopCloser(bytes.NewReader(s.CaptureData)), nil
}

// failingReader yields its wrapped bytes, then an error instead of EOF.
type failingReader struct {
	*bytes.Reader
	err error
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.Reader.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func (f *failingReader) Close() error { return nil }
