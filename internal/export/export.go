// Package export produces the two trim artifacts of a review session: the
// force data suffix as CSV and the remainder of the trial video as MP4.
// Both trims run from a cut point to the end of their source; there is no
// user-chosen end point.
package export

import (
	"github.com/kinedeck/kinedeck-agent/internal/series"
	"github.com/kinedeck/kinedeck-agent/internal/timeline"
)

// Artifact names and content types are fixed; a new export replaces the
// previous artifact of the same kind.
const (
	DataArtifactName = "trimmed-data.csv"
	DataMIME         = "text/csv"

	VideoArtifactName = "trimmed-video.mp4"
	VideoMIME         = "video/mp4"
)

// Artifact is a produced export payload, not yet handed to a sink.
type Artifact struct {
	Name string
	MIME string
	Data []byte
}

// Data builds the tabular trim artifact: every sample at or after the cut
// time, serialized with the Time,Force1,Force2 header. A cut past the last
// sample, or an empty series, yields a valid header-only artifact. The
// source series is never modified. Data cannot fail.
func Data(s *series.Series, at float64) Artifact {
	cut := timeline.CutIndex(s.Time, at)
	return Artifact{
		Name: DataArtifactName,
		MIME: DataMIME,
		Data: s.SuffixFrom(cut).EncodeCSV(),
	}
}
