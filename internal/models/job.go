package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeDocumentProcessing = "document-processing"

	QueueDocumentProcessing = "queue:document-processing"
)

// Job is a queued document-processing task consumed by the worker pool.
type Job struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChatID     int64     `json:"chat_id"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}
