package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/eventsnap/facefinder/internal/domain"
)

type EventType string

const (
	EventSessionProgress  EventType = "session.progress"
	EventSessionCompleted EventType = "session.completed"
	EventSessionFailed    EventType = "session.failed"
	EventSessionExpired   EventType = "session.expired"
)

type Event struct {
	SessionID uuid.UUID   `json:"-"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProgressData is the payload pushed while a session is matched.
type ProgressData struct {
	Status   domain.SessionStatus `json:"status"`
	Progress int                  `json:"progress_percent"`
	Step     string               `json:"current_step"`
}

func eventTypeFor(status domain.SessionStatus) EventType {
	switch status {
	case domain.StatusCompleted:
		return EventSessionCompleted
	case domain.StatusFailed:
		return EventSessionFailed
	case domain.StatusExpired:
		return EventSessionExpired
	default:
		return EventSessionProgress
	}
}
