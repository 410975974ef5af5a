package handler

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Mailbox   string            `json:"mailbox"`
	Generator string            `json:"generator"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// SchedulerStatusResponse reports the scheduler state
type SchedulerStatusResponse struct {
	Status   string     `json:"status"`
	Interval string     `json:"interval"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
