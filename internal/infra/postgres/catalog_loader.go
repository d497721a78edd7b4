package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// CatalogLoader is the read path for quiz content, served straight from
// Postgres over a pgx pool. The Redis cache sits in front of it in
// production wiring.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) Quiz(ctx context.Context, id int64) (domain.Quiz, error) {
	var q domain.Quiz
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, description, duration_minutes, per_question_seconds,
		       total_questions, randomize_questions, randomize_options,
		       created_by, created_at, is_active, start_time, end_time
		FROM quizzes WHERE id = $1`, id).Scan(
		&q.ID, &q.Title, &q.Description, &q.DurationMinutes, &q.PerQuestionSeconds,
		&q.TotalQuestions, &q.RandomizeQuestions, &q.RandomizeOptions,
		&q.CreatedBy, &q.CreatedAt, &q.IsActive, &q.StartTime, &q.EndTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	return q, nil
}

func (l *CatalogLoader) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, quiz_id, question_text, option_a, option_b, option_c, option_d,
		       correct_answer, position, time_bonus_factor
		FROM questions WHERE quiz_id = $1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var q domain.Question
		var a, b, c, d string
		var correct string
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Text, &a, &b, &c, &d,
			&correct, &q.Position, &q.TimeBonusFactor); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Options = domain.OptionSet{
			domain.LetterA: a,
			domain.LetterB: b,
			domain.LetterC: c,
			domain.LetterD: d,
		}
		q.Correct = domain.Letter(correct)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return out, nil
}
