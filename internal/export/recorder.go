package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kinedeck/kinedeck-agent/internal/media"
	"github.com/kinedeck/kinedeck-agent/internal/sink"
)

// Recorder produces the media trim artifact by capturing a surface's
// stream from the cut point to the end of the source.
//
// The recorder does not guard against concurrent exports; the session
// layer owns the exporting flag and keeps a second export from starting
// while one is in flight.
type Recorder struct {
	sink   sink.Sink
	logger *slog.Logger
}

func NewRecorder(s sink.Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sink: s, logger: logger}
}

// Record captures from `from` seconds to the end of the surface's source
// and saves the result as the trimmed video artifact.
//
// A capture that cannot start saves nothing and returns the error. A
// stream that dies after producing bytes is logged and the partial buffer
// is saved anyway; truncated fragmented MP4 still plays up to the break.
func (r *Recorder) Record(ctx context.Context, surface media.Surface, from float64) (sink.Saved, error) {
	rc, err := surface.Capture(ctx, from)
	if err != nil {
		return sink.Saved{}, fmt.Errorf("capture from %gs: %w", from, err)
	}

	var buf bytes.Buffer
	_, readErr := io.Copy(&buf, rc)
	closeErr := rc.Close()

	streamErr := readErr
	if streamErr == nil {
		streamErr = closeErr
	}
	if streamErr != nil {
		if buf.Len() == 0 {
			return sink.Saved{}, fmt.Errorf("capture produced no data: %w", streamErr)
		}
		if r.logger != nil {
			r.logger.Warn("capture stream ended early, keeping partial result",
				"bytes", buf.Len(),
				"error", streamErr,
			)
		}
	}

	saved, err := r.sink.Save(ctx, VideoArtifactName, VideoMIME, buf.Bytes())
	if err != nil {
		return sink.Saved{}, fmt.Errorf("save media artifact: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("media trim recorded",
			"from_s", from,
			"bytes", saved.Bytes,
			"artifact", saved.Name,
		)
	}
	return saved, nil
}
