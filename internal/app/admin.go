package app

import (
	"context"

	"quiz-session-service/internal/domain"
)

// CatalogAdmin is the write side of the catalog, used only by
// administrative flows. Question writes keep the owning quiz's
// TotalQuestions in step.
type CatalogAdmin interface {
	ListQuizzes(ctx context.Context) ([]domain.Quiz, error)
	CreateQuiz(ctx context.Context, q *domain.Quiz) error
	UpdateQuiz(ctx context.Context, q domain.Quiz) error
	DeactivateQuiz(ctx context.Context, id int64) error
	CreateQuestion(ctx context.Context, q *domain.Question) error
	UpdateQuestion(ctx context.Context, q domain.Question) error
	DeleteQuestion(ctx context.Context, quizID, questionID int64) error
}
