package models

import "time"

type Operation string

const (
	OperationConversations Operation = "conversations"
	OperationAnalyze       Operation = "analyze"
	OperationMetrics       Operation = "metrics"
	OperationReset         Operation = "reset"
	OperationDelete        Operation = "delete"
)

type ImportStatus string

const (
	ImportStarted   ImportStatus = "started"
	ImportCompleted ImportStatus = "completed"
	ImportFailed    ImportStatus = "failed"
)

// ImportLog records one pipeline operation so runs can be audited later.
type ImportLog struct {
	ID             string        `json:"id"`
	Operation      Operation     `json:"operation"`
	Status         ImportStatus  `json:"status"`
	FileName       string        `json:"file_name,omitempty"`
	FileSize       int64         `json:"file_size,omitempty"`
	TotalItems     int           `json:"total_items"`
	ProcessedItems int           `json:"processed_items"`
	ErrorCount     int           `json:"error_count"`
	Errors         []string      `json:"errors,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}
