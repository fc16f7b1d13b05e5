package review

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kinedeck/kinedeck-agent/internal/export"
	"github.com/kinedeck/kinedeck-agent/internal/media"
	"github.com/kinedeck/kinedeck-agent/internal/series"
	"github.com/kinedeck/kinedeck-agent/internal/sink"
	"github.com/kinedeck/kinedeck-agent/internal/timeline"
)

// rateDriftTolerance is how far the encoded frame rate may sit from the
// configured clock before the drift warning fires.
const rateDriftTolerance = 0.01

// Manager opens and tracks review sessions.
type Manager struct {
	opener   media.Opener
	clock    timeline.Clock
	layout   series.Layout
	snk      sink.Sink
	recorder *export.Recorder
	events   Events
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager wires the session manager. events may be nil.
func NewManager(opener media.Opener, clock timeline.Clock, layout series.Layout, snk sink.Sink, recorder *export.Recorder, events Events, logger *slog.Logger) *Manager {
	return &Manager{
		opener:   opener,
		clock:    clock,
		layout:   layout,
		snk:      snk,
		recorder: recorder,
		events:   events,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open starts a review session over a trial's video and data files.
//
// Either modality may fail to load without failing the open: a video that
// cannot be probed leaves a zero-duration surface (no frames to navigate),
// a data file that cannot be read leaves an empty series. The failure is
// logged and reflected in the session's MediaLoaded/DataLoaded flags, and
// the surviving modality stays fully usable.
func (m *Manager) Open(ctx context.Context, trialID, videoPath, dataPath string) (*Session, error) {
	sess := &Session{
		ID:        uuid.NewString(),
		TrialID:   trialID,
		CreatedAt: time.Now(),
		clock:     m.clock,
		events:    m.events,
		logger:    m.logger,
	}

	surface, err := m.opener.Open(ctx, videoPath)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("video unavailable for session, continuing with data only",
				"trial_id", trialID,
				"error", err,
			)
		}
		surface = &media.StubSurface{}
	} else {
		sess.MediaLoaded = true
	}
	sess.surface = surface
	sess.totalFrames = m.clock.TotalFrames(surface.Duration())

	data, err := series.ParseFile(dataPath, m.layout)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("force data unavailable for session, continuing with video only",
				"trial_id", trialID,
				"error", err,
			)
		}
		data = &series.Series{}
	} else {
		sess.DataLoaded = true
	}
	sess.data = data

	if !data.SortedByTime() && m.logger != nil {
		m.logger.Warn("series time column not sorted; cut resolution assumes ascending times",
			"trial_id", trialID,
		)
	}
	if encoded := surface.Info().FrameRate; encoded > 0 &&
		math.Abs(encoded-m.clock.Rate()) > rateDriftTolerance && m.logger != nil {
		m.logger.Warn("encoded frame rate differs from configured clock, frame mapping will drift",
			"trial_id", trialID,
			"encoded_fps", encoded,
			"clock_fps", m.clock.Rate(),
		)
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("session opened",
			"session_id", sess.ID,
			"trial_id", trialID,
			"total_frames", sess.totalFrames,
			"samples", data.Len(),
		)
	}
	m.emit(Event{Type: EventSessionOpened, SessionID: sess.ID, TrialID: trialID})
	return sess, nil
}

// Get returns a session by ID.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes a session. Closing an unknown ID is a no-op.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		if m.logger != nil {
			m.logger.Info("session closed", "session_id", id, "trial_id", s.TrialID)
		}
		m.emit(Event{Type: EventSessionClosed, SessionID: id, TrialID: s.TrialID})
	}
	return ok
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExportData performs the tabular trim for a session: all samples at or
// after the sample cursor's time, saved as the fixed CSV artifact. The
// export is synchronous and cannot fail for data reasons — an empty
// suffix is a valid header-only file.
func (m *Manager) ExportData(ctx context.Context, sessionID string) (sink.Saved, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return sink.Saved{}, fmt.Errorf("session %s not found", sessionID)
	}

	artifact := export.Data(sess.data, sess.SampleTime())
	saved, err := m.snk.Save(ctx, artifact.Name, artifact.MIME, artifact.Data)
	if err != nil {
		return sink.Saved{}, fmt.Errorf("save data artifact: %w", err)
	}

	m.emit(Event{
		Type:      EventExportCompleted,
		SessionID: sess.ID,
		TrialID:   sess.TrialID,
		Artifact:  saved.Name,
	})
	return saved, nil
}

// ExportMedia performs the media trim for a session: capture from the
// frame cursor's time to the end of the source. It is called from the job
// runner after the caller has claimed the session's exporting flag; the
// flag is cleared on the way out regardless of outcome, so a failed
// export never wedges the session.
func (m *Manager) ExportMedia(ctx context.Context, sessionID string) (sink.Saved, error) {
	sess, ok := m.Get(sessionID)
	if !ok {
		return sink.Saved{}, fmt.Errorf("session %s not found", sessionID)
	}
	defer sess.EndExport()

	from := sess.FrameTime()
	m.emit(Event{
		Type:      EventExportStarted,
		SessionID: sess.ID,
		TrialID:   sess.TrialID,
		Time:      from,
	})

	saved, err := m.recorder.Record(ctx, sess.surface, from)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("media export failed",
				"session_id", sess.ID,
				"trial_id", sess.TrialID,
				"error", err,
			)
		}
		m.emit(Event{
			Type:      EventExportFailed,
			SessionID: sess.ID,
			TrialID:   sess.TrialID,
			Detail:    err.Error(),
		})
		return sink.Saved{}, err
	}

	m.emit(Event{
		Type:      EventExportCompleted,
		SessionID: sess.ID,
		TrialID:   sess.TrialID,
		Artifact:  saved.Name,
	})
	return saved, nil
}

func (m *Manager) emit(e Event) {
	if m.events != nil {
		m.events.Emit(e)
	}
}
