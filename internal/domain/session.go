package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a matching session. Transitions
// only move forward through the listed order; Failed and Expired are
// terminal and reachable from any non-terminal state.
type SessionStatus string

const (
	StatusDetecting         SessionStatus = "detecting"
	StatusAwaitingSelection SessionStatus = "awaiting_selection"
	StatusQueued            SessionStatus = "queued"
	StatusMatching          SessionStatus = "matching"
	StatusCompleted         SessionStatus = "completed"
	StatusFailed            SessionStatus = "failed"
	StatusExpired           SessionStatus = "expired"
)

var statusOrder = map[SessionStatus]int{
	StatusDetecting:         0,
	StatusAwaitingSelection: 1,
	StatusQueued:            2,
	StatusMatching:          3,
	StatusCompleted:         4,
}

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// CanTransition reports whether moving from s to next is a legal forward
// transition. Failed and Expired are reachable from any non-terminal state.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed || next == StatusExpired {
		return true
	}
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// Session is one user's end-to-end matching request: reference photo
// upload, face selection, queued matching against one or more indexes and
// packaged results. Persisted so polling survives process restarts.
type Session struct {
	ID                  uuid.UUID                `json:"id"`
	Identity            string                   `json:"identity"`
	Status              SessionStatus            `json:"status"`
	Progress            int                      `json:"progress_percent"`
	CurrentStep         string                   `json:"current_step"`
	QueuePosition       int                      `json:"queue_position,omitempty"`
	ErrorMessage        string                   `json:"error_message,omitempty"`
	TargetIndexes       []string                 `json:"target_indexes"`
	DetectedFaces       []DetectedFace           `json:"detected_faces,omitempty"`
	ReferenceEmbeddings []Embedding              `json:"-"`
	Threshold           float64                  `json:"threshold"`
	ResultsByIndex      map[string][]MatchResult `json:"-"`
	CreatedAt           time.Time                `json:"created_at"`
	TimeoutAt           time.Time                `json:"timeout_at"`
	CompletedAt         *time.Time               `json:"completed_at,omitempty"`
}

// ExpiredAt reports whether the session deadline has passed without the
// session reaching a terminal state.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !s.Status.Terminal() && now.After(s.TimeoutAt)
}

// Summaries digests ResultsByIndex for polling responses, ordered by
// model id so repeated polls of the same session agree.
func (s *Session) Summaries() []ResultSummary {
	if len(s.ResultsByIndex) == 0 {
		return nil
	}
	out := make([]ResultSummary, 0, len(s.ResultsByIndex))
	for model, results := range s.ResultsByIndex {
		summary := ResultSummary{ModelID: model, Matches: len(results)}
		if len(results) > 0 {
			summary.TopScore = results[0].BestSimilarity
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}
