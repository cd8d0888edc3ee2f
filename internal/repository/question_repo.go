package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studybot-backend/internal/models"
)

type QuestionRepo struct {
	pool *pgxpool.Pool
}

func NewQuestionRepo(pool *pgxpool.Pool) *QuestionRepo {
	return &QuestionRepo{pool: pool}
}

func (r *QuestionRepo) Create(ctx context.Context, q *models.Question) error {
	q.ID = uuid.New()
	if q.Difficulty == "" {
		q.Difficulty = "medium"
	}

	query := `INSERT INTO questions (id, document_id, question, expected_answer, difficulty, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		q.ID, q.DocumentID, q.Question, q.ExpectedAnswer, q.Difficulty, q.Category,
	).Scan(&q.CreatedAt)
}

func (r *QuestionRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.Question, error) {
	query := `SELECT id, document_id, question, expected_answer, difficulty, category, created_at
		FROM questions WHERE document_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		q := &models.Question{}
		err := rows.Scan(&q.ID, &q.DocumentID, &q.Question, &q.ExpectedAnswer, &q.Difficulty, &q.Category, &q.CreatedAt)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// RandomQuestion returns (nil, nil) when the document has no questions,
// which the scheduler treats as pool exhaustion.
func (r *QuestionRepo) RandomQuestion(ctx context.Context, documentID uuid.UUID) (*models.Question, error) {
	q := &models.Question{}
	query := `SELECT id, document_id, question, expected_answer, difficulty, category, created_at
		FROM questions WHERE document_id = $1 ORDER BY random() LIMIT 1`

	err := r.pool.QueryRow(ctx, query, documentID).Scan(
		&q.ID, &q.DocumentID, &q.Question, &q.ExpectedAnswer, &q.Difficulty, &q.Category, &q.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *QuestionRepo) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM questions WHERE document_id = $1", documentID).Scan(&count)
	return count, err
}

func (r *QuestionRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM questions").Scan(&count)
	return count, err
}
