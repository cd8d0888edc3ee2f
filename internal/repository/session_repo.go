package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studybot-backend/internal/models"
)

// SessionRepo persists study sessions and question responses. It is the
// concrete SessionStore behind the scheduler.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) CreateSession(ctx context.Context, s *models.StudySession) error {
	s.ID = uuid.New()
	query := `INSERT INTO study_sessions (id, user_id, document_id, mode, is_active, interval_minutes, questions_asked, exam_question_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, s.DocumentID, s.Mode, s.IsActive, s.IntervalMinutes, s.QuestionsAsked, s.ExamQuestionCount,
	).Scan(&s.CreatedAt)
}

func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	s := &models.StudySession{}
	query := `SELECT id, user_id, document_id, mode, is_active, interval_minutes, questions_asked, exam_question_count, last_question_at, created_at
		FROM study_sessions WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.DocumentID, &s.Mode, &s.IsActive, &s.IntervalMinutes, &s.QuestionsAsked, &s.ExamQuestionCount, &s.LastQuestionAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepo) MarkQuestionAsked(ctx context.Context, sessionID uuid.UUID, askedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET last_question_at = $1,
			questions_asked = questions_asked + 1
		WHERE id = $2
	`, askedAt, sessionID)
	return err
}

// DeactivateSession is idempotent; deactivating an already inactive session
// is harmless.
func (r *SessionRepo) DeactivateSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE study_sessions SET is_active = FALSE WHERE id = $1", sessionID)
	return err
}

func (r *SessionRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*models.StudySession, error) {
	query := `SELECT id, user_id, document_id, mode, is_active, interval_minutes, questions_asked, exam_question_count, last_question_at, created_at
		FROM study_sessions WHERE user_id = $1 AND is_active ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.StudySession
	for rows.Next() {
		s := &models.StudySession{}
		err := rows.Scan(&s.ID, &s.UserID, &s.DocumentID, &s.Mode, &s.IsActive, &s.IntervalMinutes, &s.QuestionsAsked, &s.ExamQuestionCount, &s.LastQuestionAt, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM study_sessions WHERE is_active").Scan(&count)
	return count, err
}

// ─── Responses ───

func (r *SessionRepo) CreateResponse(ctx context.Context, resp *models.QuestionResponse) error {
	resp.ID = uuid.New()
	query := `INSERT INTO question_responses (id, session_id, question_id, user_answer, score, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING answered_at`

	return r.pool.QueryRow(ctx, query,
		resp.ID, resp.SessionID, resp.QuestionID, resp.UserAnswer, resp.Score, resp.Feedback,
	).Scan(&resp.AnsweredAt)
}

func (r *SessionRepo) ListResponsesBySession(ctx context.Context, sessionID uuid.UUID) ([]*models.QuestionResponse, error) {
	query := `SELECT id, session_id, question_id, user_answer, score, feedback, answered_at
		FROM question_responses WHERE session_id = $1 ORDER BY answered_at`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*models.QuestionResponse
	for rows.Next() {
		resp := &models.QuestionResponse{}
		err := rows.Scan(&resp.ID, &resp.SessionID, &resp.QuestionID, &resp.UserAnswer, &resp.Score, &resp.Feedback, &resp.AnsweredAt)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// UserStats aggregates responses across all of a participant's sessions.
func (r *SessionRepo) UserStats(ctx context.Context, userID uuid.UUID) (answered int, averageScore int, asked int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(qr.id),
			COALESCE(ROUND(AVG(qr.score)), 0)
		FROM question_responses qr
		JOIN study_sessions ss ON ss.id = qr.session_id
		WHERE ss.user_id = $1
	`, userID).Scan(&answered, &averageScore)
	if err != nil {
		return 0, 0, 0, err
	}

	err = r.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(questions_asked), 0) FROM study_sessions WHERE user_id = $1", userID,
	).Scan(&asked)
	if err != nil {
		return 0, 0, 0, err
	}
	return answered, averageScore, asked, nil
}

// GlobalStats backs the dashboard overview.
func (r *SessionRepo) GlobalStats(ctx context.Context) (totalAsked int, averageScore int, err error) {
	err = r.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(questions_asked), 0) FROM study_sessions",
	).Scan(&totalAsked)
	if err != nil {
		return 0, 0, err
	}

	err = r.pool.QueryRow(ctx,
		"SELECT COALESCE(ROUND(AVG(score)), 0) FROM question_responses",
	).Scan(&averageScore)
	if err != nil {
		return 0, 0, err
	}
	return totalAsked, averageScore, nil
}

// RecentResponses backs the dashboard activity feed.
func (r *SessionRepo) RecentResponses(ctx context.Context, limit int) ([]*models.QuestionResponse, error) {
	query := `SELECT id, session_id, question_id, user_answer, score, feedback, answered_at
		FROM question_responses ORDER BY answered_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*models.QuestionResponse
	for rows.Next() {
		resp := &models.QuestionResponse{}
		err := rows.Scan(&resp.ID, &resp.SessionID, &resp.QuestionID, &resp.UserAnswer, &resp.Score, &resp.Feedback, &resp.AnsweredAt)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}
