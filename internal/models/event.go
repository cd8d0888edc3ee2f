package models

import (
	"time"

	"github.com/google/uuid"
)

// DashboardEvent is published on the dashboard pub/sub channel and relayed
// to connected dashboard WebSocket clients.
type DashboardEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ChannelDashboardEvents is the Redis pub/sub channel dashboard events
// travel on before being fanned out over WebSocket.
const ChannelDashboardEvents = "dashboard:events"

const (
	EventDocumentProcessed = "document_processed"
	EventQuestionAnswered  = "question_answered"
	EventSessionStarted    = "session_started"
	EventSessionStopped    = "session_stopped"
)

type DocumentProcessedEvent struct {
	DocumentID    uuid.UUID `json:"document_id"`
	OriginalName  string    `json:"original_name"`
	QuestionCount int       `json:"question_count"`
}

type QuestionAnsweredEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Score     int       `json:"score"`
}

type SessionEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Mode      string    `json:"mode"`
}
