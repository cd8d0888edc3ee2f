package models

import (
	"time"

	"github.com/google/uuid"
)

type Question struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	Question       string    `json:"question"`
	ExpectedAnswer string    `json:"expected_answer"`
	Difficulty     string    `json:"difficulty"`
	Category       *string   `json:"category,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// GeneratedQuestion is the shape Gemini returns before persistence.
type GeneratedQuestion struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expectedAnswer"`
	Difficulty     string `json:"difficulty"`
	Category       string `json:"category"`
}

// AnswerEvaluation is the scoring oracle's verdict on a submitted answer.
type AnswerEvaluation struct {
	Score       int      `json:"score"`
	Feedback    string   `json:"feedback"`
	Suggestions []string `json:"suggestions"`
}
