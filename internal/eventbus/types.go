package eventbus

import "time"

// EventType identifies an event flowing through the bus.
type EventType string

const (
	// EventIssuesRefreshed is raised after a merge, buffer change or criteria
	// change has produced a new displayed view for a resource.
	EventIssuesRefreshed EventType = "issues.refreshed"

	// Analysis lifecycle events.
	EventAnalysisStarted   EventType = "analysis.started"
	EventAnalysisFailed    EventType = "analysis.failed"
	EventAnalysisCancelled EventType = "analysis.cancelled"
	EventAnalysisSkipped   EventType = "analysis.skipped"

	// EventCacheCleared is raised when every cached resource is dropped.
	EventCacheCleared EventType = "cache.cleared"
)

// AllEventTypes lists every event the engine raises.
var AllEventTypes = []EventType{
	EventIssuesRefreshed,
	EventAnalysisStarted,
	EventAnalysisFailed,
	EventAnalysisCancelled,
	EventAnalysisSkipped,
	EventCacheCleared,
}

// IsAnalysisEvent returns true for analysis lifecycle events.
func (t EventType) IsAnalysisEvent() bool {
	switch t {
	case EventAnalysisStarted, EventAnalysisFailed,
		EventAnalysisCancelled, EventAnalysisSkipped:
		return true
	}
	return false
}

// Event is a notification about one resource (or all resources for
// EventCacheCleared).
type Event struct {
	Type     EventType `json:"type"`
	Resource string    `json:"resource,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	Seq      uint64    `json:"seq,omitempty"`   // Analysis request sequence number
	Count    int       `json:"count,omitempty"` // Displayed issue count for refreshes
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Result aggregates handler responses for an event.
type Result struct {
	Warnings []string `json:"warnings,omitempty"`
}
