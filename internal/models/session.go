package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionModeStudy = "study"
	SessionModeExam  = "exam"
)

// StudySession is the unit of scheduling. In study mode questions arrive
// every IntervalMinutes; in exam mode ExamQuestionCount questions are asked
// back to back and IntervalMinutes is ignored.
type StudySession struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	DocumentID        uuid.UUID  `json:"document_id"`
	Mode              string     `json:"mode"`
	IsActive          bool       `json:"is_active"`
	IntervalMinutes   int        `json:"interval_minutes"`
	QuestionsAsked    int        `json:"questions_asked"`
	ExamQuestionCount int        `json:"exam_question_count"`
	LastQuestionAt    *time.Time `json:"last_question_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (s *StudySession) IsExamMode() bool {
	return s.Mode == SessionModeExam
}

type QuestionResponse struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	QuestionID uuid.UUID `json:"question_id"`
	UserAnswer string    `json:"user_answer"`
	Score      int       `json:"score"`
	Feedback   *string   `json:"feedback,omitempty"`
	AnsweredAt time.Time `json:"answered_at"`
}
