// Package media gives the agent a handle on trial video: probing metadata,
// tracking a playhead, and capturing the remainder of the stream for export.
package media

import (
	"context"
	"io"
)

// Info holds the probed metadata of an opened video.
type Info struct {
	Duration  float64 // seconds; 0 when unknown
	Width     int
	Height    int
	Codec     string
	FrameRate float64 // encoded rate as reported by the container; 0 when unknown
}

// Surface is an opened trial video. A Surface carries the probed metadata
// and a playhead; Capture streams the source from a timestamp to its end.
// The capture reader returning io.EOF is the end-of-playback signal.
type Surface interface {
	// Info returns the metadata probed when the surface was opened.
	Info() Info

	// Duration returns the probed duration in seconds (0 when unknown).
	Duration() float64

	// Position returns the playhead in seconds.
	Position() float64

	// Seek moves the playhead. Targets are clamped into [0, Duration].
	Seek(t float64) error

	// Capture returns a stream of the source from `from` seconds to the
	// end. The caller must close the reader; closing before EOF abandons
	// the capture.
	Capture(ctx context.Context, from float64) (io.ReadCloser, error)
}

// Opener opens surfaces over video files.
type Opener interface {
	Open(ctx context.Context, path string) (Surface, error)
}
