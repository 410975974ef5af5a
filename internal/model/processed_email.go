package model

import "time"

// ProcessedEmailResult is the outcome of processing one message
type ProcessedEmailResult struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	Category    Category  `json:"category"`
	Response    string    `json:"response"`
	ProcessedAt time.Time `json:"processed_at"`
}

// BatchRunSummary aggregates one pipeline invocation
type BatchRunSummary struct {
	TotalProcessed int                    `json:"total_processed"`
	Categories     CategoryCounts         `json:"categories"`
	Emails         []ProcessedEmailResult `json:"emails"`
	Timestamp      time.Time              `json:"timestamp"`
	Note           string                 `json:"note,omitempty"`
}

// NewBatchRunSummary returns an empty summary with zeroed category counts.
func NewBatchRunSummary() *BatchRunSummary {
	return &BatchRunSummary{
		Categories: NewCategoryCounts(),
		Emails:     []ProcessedEmailResult{},
	}
}

// Add appends a result and updates the aggregate counters.
func (s *BatchRunSummary) Add(result ProcessedEmailResult) {
	s.Emails = append(s.Emails, result)
	s.Categories.Inc(result.Category)
	s.TotalProcessed++
}
