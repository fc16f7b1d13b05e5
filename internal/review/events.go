package review

// Event types pushed to the UI over the events stream.
const (
	EventSessionOpened   = "session.opened"
	EventSessionClosed   = "session.closed"
	EventPositionChanged = "position.changed"
	EventExportStarted   = "export.started"
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
)

// Event is one review lifecycle notification.
type Event struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	TrialID   string  `json:"trial_id,omitempty"`
	Frame     int     `json:"frame,omitempty"`
	Time      float64 `json:"time,omitempty"`
	Artifact  string  `json:"artifact,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// Events receives review lifecycle notifications. Emit must not block;
// implementations fan out on their own goroutines.
type Events interface {
	Emit(Event)
}
