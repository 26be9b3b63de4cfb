package protocol

// SessionEventType classifies AI session lifecycle events delivered by the
// agent runtime.
type SessionEventType string

const (
	EventTextComplete SessionEventType = "text_complete"
	EventComplete     SessionEventType = "complete"
	EventError        SessionEventType = "error"
)

// SessionEvent is a lifecycle notification for one AI session. Error and
// complete events change queue state; text_complete is informational.
type SessionEvent struct {
	SessionID string           `json:"session_id"`
	Type      SessionEventType `json:"type"`
	Error     string           `json:"error,omitempty"`
}
