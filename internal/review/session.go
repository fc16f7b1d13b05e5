// Package review owns live trial review sessions: the in-memory state an
// analyst drives while deciding where to cut a trial.
//
// A session keeps two independent cursors over the shared timeline. The
// frame cursor follows the video modality and feeds the media trim; the
// sample cursor follows the force data modality and feeds the tabular
// trim. Moving one never moves the other.
package review

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kinedeck/kinedeck-agent/internal/media"
	"github.com/kinedeck/kinedeck-agent/internal/series"
	"github.com/kinedeck/kinedeck-agent/internal/timeline"
)

// Session is one open review of a trial.
type Session struct {
	ID        string
	TrialID   string
	CreatedAt time.Time

	// MediaLoaded and DataLoaded report whether each modality opened
	// cleanly. A session degrades rather than fails: a missing video
	// leaves zero frames to navigate, a missing data file an empty
	// series, and the other modality keeps working.
	MediaLoaded bool
	DataLoaded  bool

	clock       timeline.Clock
	surface     media.Surface
	data        *series.Series
	totalFrames int

	events Events
	logger *slog.Logger

	mu     sync.Mutex
	frame  int
	sample int

	exporting atomic.Bool
}

// Position is a consistent snapshot of both cursors.
type Position struct {
	Frame       int     `json:"frame"`
	TotalFrames int     `json:"total_frames"`
	FrameTime   float64 `json:"frame_time"`
	Sample      int     `json:"sample"`
	SampleCount int     `json:"sample_count"`
	SampleTime  float64 `json:"sample_time"`
	Exporting   bool    `json:"exporting"`
}

// TotalFrames returns the whole frames of the trial video, derived once
// from the probed duration when the session opened.
func (s *Session) TotalFrames() int {
	return s.totalFrames
}

// SampleCount returns the number of force samples.
func (s *Session) SampleCount() int {
	return s.data.Len()
}

// Clock returns the session's frame clock.
func (s *Session) Clock() timeline.Clock {
	return s.clock
}

// Position returns a snapshot of both cursors.
func (s *Session) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Session) positionLocked() Position {
	return Position{
		Frame:       s.frame,
		TotalFrames: s.totalFrames,
		FrameTime:   s.clock.TimeAt(s.frame),
		Sample:      s.sample,
		SampleCount: s.data.Len(),
		SampleTime:  s.sampleTimeLocked(),
		Exporting:   s.exporting.Load(),
	}
}

// FrameTime returns the media cursor's position on the clock, the cut
// point a media export starts from.
func (s *Session) FrameTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.TimeAt(s.frame)
}

// SampleTime returns the sample cursor's timestamp, the cut point a
// tabular export starts from. An empty series pins it to 0.
func (s *Session) SampleTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleTimeLocked()
}

func (s *Session) sampleTimeLocked() float64 {
	if s.data.Len() == 0 {
		return 0
	}
	return s.data.Time[s.sample]
}

// MoveFrame shifts the frame cursor by delta. The move is accepted only
// when the result stays inside [0, TotalFrames); anything else is a
// silent no-op — no wraparound, no clamping, no error. An accepted move
// seeks the media surface to the new frame's time.
func (s *Session) MoveFrame(delta int) (Position, bool) {
	s.mu.Lock()
	next := s.frame + delta
	if next < 0 || next >= s.totalFrames {
		pos := s.positionLocked()
		s.mu.Unlock()
		return pos, false
	}
	s.frame = next
	s.surface.Seek(s.clock.TimeAt(next))
	pos := s.positionLocked()
	s.mu.Unlock()

	s.emitPosition(pos)
	return pos, true
}

// SetFrame positions the frame cursor absolutely, clamped into
// [0, TotalFrames]. Unlike relative moves, the cursor may land on
// TotalFrames itself, one past the final playable frame. The surface
// always seeks to the clamped target.
func (s *Session) SetFrame(n int) Position {
	s.mu.Lock()
	s.frame = timeline.ClampFrame(n, s.totalFrames)
	s.surface.Seek(s.clock.TimeAt(s.frame))
	pos := s.positionLocked()
	s.mu.Unlock()

	s.emitPosition(pos)
	return pos
}

// SetSample positions the sample cursor, clamped into [0, SampleCount-1].
// With no samples the cursor stays at 0.
func (s *Session) SetSample(i int) Position {
	s.mu.Lock()
	s.sample = timeline.ClampFrame(i, s.data.Len()-1)
	pos := s.positionLocked()
	s.mu.Unlock()

	s.emitPosition(pos)
	return pos
}

// BeginExport marks the session as exporting. It returns false when an
// export is already in flight; the caller must then treat the request
// as a no-op instead of starting a second capture.
func (s *Session) BeginExport() bool {
	return s.exporting.CompareAndSwap(false, true)
}

// EndExport clears the exporting flag, on success and failure alike.
func (s *Session) EndExport() {
	s.exporting.Store(false)
}

// Exporting reports whether a media export is in flight.
func (s *Session) Exporting() bool {
	return s.exporting.Load()
}

func (s *Session) emitPosition(pos Position) {
	if s.events == nil {
		return
	}
	s.events.Emit(Event{
		Type:      EventPositionChanged,
		SessionID: s.ID,
		TrialID:   s.TrialID,
		Frame:     pos.Frame,
		Time:      pos.FrameTime,
	})
}
