// Package timeline converts between the three coordinate systems of a trial:
// media frame numbers, seconds on the shared clock, and force series sample
// indexes. All conversions are pure; degenerate inputs clamp rather than fail.
package timeline

import (
	"math"
	"sort"
)

// DefaultRate is the fallback frames-per-second when a clock is built
// with a non-positive rate.
const DefaultRate = 30.0

// frameEpsilon absorbs float rounding when mapping seconds back to frames.
// frame/rate is not exactly representable for most frames (123/30 among
// them), so a bare floor(t*rate) lands one frame short of the frame the
// time was derived from. The epsilon is in frame units.
const frameEpsilon = 1e-6

// Clock maps frame numbers to seconds and back at a fixed frame rate.
type Clock struct {
	rate float64
}

// NewClock returns a Clock at the given frames-per-second.
// Non-positive rates fall back to DefaultRate.
func NewClock(rate float64) Clock {
	if rate <= 0 {
		rate = DefaultRate
	}
	return Clock{rate: rate}
}

// Rate returns the clock's frames-per-second.
func (c Clock) Rate() float64 {
	return c.rate
}

// TimeAt returns the timestamp in seconds of the given frame number.
func (c Clock) TimeAt(frame int) float64 {
	return float64(frame) / c.rate
}

// FrameAt returns the frame number containing the given timestamp.
// Times produced by TimeAt round-trip to their original frame.
// Negative times map to frame 0.
func (c Clock) FrameAt(t float64) int {
	if t <= 0 {
		return 0
	}
	return int(math.Floor(t*c.rate + frameEpsilon))
}

// TotalFrames returns the number of whole frames in a media duration.
// Unknown or negative durations yield 0.
func (c Clock) TotalFrames(duration float64) int {
	if duration <= 0 {
		return 0
	}
	return c.FrameAt(duration)
}

// CutIndex returns the first index whose time is at or after t, or
// len(times) when t is past the final sample. times must be sorted
// ascending; an empty slice yields 0.
func CutIndex(times []float64, t float64) int {
	return sort.SearchFloat64s(times, t)
}

// ClampFrame clamps frame into [0, max]. Absolute positioning is allowed
// to land on max itself, one past the final playable frame.
func ClampFrame(frame, max int) int {
	if max < 0 {
		max = 0
	}
	if frame < 0 {
		return 0
	}
	if frame > max {
		return max
	}
	return frame
}
