package model

// RefreshRun records one aggregator execution. Immutable once finalized.
type RefreshRun struct {
	ID              string          `json:"id"`
	Scope           Scope           `json:"scope"`
	StartedAt       int64           `json:"started_at"`
	FinishedAt      int64           `json:"finished_at"`
	InProgress      bool            `json:"in_progress"`
	Success         bool            `json:"success"`
	SourceBreakdown map[string]int  `json:"source_breakdown"`
	SourceSuccess   map[string]bool `json:"source_success"`
	Errors          []string        `json:"errors"`
	TopicCount      int             `json:"topic_count"`
}
