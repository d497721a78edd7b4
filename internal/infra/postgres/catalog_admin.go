package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID                 int64      `bun:"id,pk,autoincrement"`
	Title              string     `bun:"title,notnull"`
	Description        string     `bun:"description,notnull"`
	DurationMinutes    int        `bun:"duration_minutes,notnull"`
	PerQuestionSeconds int        `bun:"per_question_seconds,notnull"`
	TotalQuestions     int        `bun:"total_questions,notnull"`
	RandomizeQuestions bool       `bun:"randomize_questions,notnull"`
	RandomizeOptions   bool       `bun:"randomize_options,notnull"`
	CreatedBy          int64      `bun:"created_by,notnull"`
	CreatedAt          time.Time  `bun:"created_at,notnull"`
	IsActive           bool       `bun:"is_active,notnull"`
	StartTime          *time.Time `bun:"start_time"`
	EndTime            *time.Time `bun:"end_time"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qu"`

	ID              int64   `bun:"id,pk,autoincrement"`
	QuizID          int64   `bun:"quiz_id,notnull"`
	Text            string  `bun:"question_text,notnull"`
	OptionA         string  `bun:"option_a,notnull"`
	OptionB         string  `bun:"option_b,notnull"`
	OptionC         string  `bun:"option_c,notnull"`
	OptionD         string  `bun:"option_d,notnull"`
	Correct         string  `bun:"correct_answer,notnull"`
	Position        int     `bun:"position,notnull"`
	TimeBonusFactor float64 `bun:"time_bonus_factor,notnull"`
}

// CatalogAdmin is the write side of the catalog. Question writes recount
// the owning quiz's total_questions inside the same transaction.
type CatalogAdmin struct {
	db *bun.DB
}

func NewCatalogAdmin(db *bun.DB) *CatalogAdmin {
	return &CatalogAdmin{db: db}
}

func (c *CatalogAdmin) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	var rows []quizRow
	if err := c.db.NewSelect().Model(&rows).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	out := make([]domain.Quiz, len(rows))
	for i, row := range rows {
		out[i] = quizFromRow(row)
	}
	return out, nil
}

func (c *CatalogAdmin) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	row := quizToRow(*q)
	if _, err := c.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	q.ID = row.ID
	return nil
}

func (c *CatalogAdmin) UpdateQuiz(ctx context.Context, q domain.Quiz) error {
	row := quizToRow(q)
	res, err := c.db.NewUpdate().Model(&row).
		Column("title", "description", "duration_minutes", "per_question_seconds",
			"randomize_questions", "randomize_options", "is_active",
			"start_time", "end_time").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (c *CatalogAdmin) DeactivateQuiz(ctx context.Context, id int64) error {
	res, err := c.db.NewUpdate().Model((*quizRow)(nil)).
		Set("is_active = FALSE").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivate quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (c *CatalogAdmin) CreateQuestion(ctx context.Context, q *domain.Question) error {
	if q.TimeBonusFactor == 0 {
		q.TimeBonusFactor = 1.0
	}
	row := questionToRow(*q)
	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*quizRow)(nil)).Where("id = ?", q.QuizID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check quiz: %w", err)
		}
		if !exists {
			return domain.ErrQuizNotFound
		}
		if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		q.ID = row.ID
		return recountQuestions(ctx, tx, q.QuizID)
	})
}

func (c *CatalogAdmin) UpdateQuestion(ctx context.Context, q domain.Question) error {
	row := questionToRow(q)
	res, err := c.db.NewUpdate().Model(&row).
		Column("question_text", "option_a", "option_b", "option_c", "option_d",
			"correct_answer", "position", "time_bonus_factor").
		WherePK().
		Where("quiz_id = ?", q.QuizID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (c *CatalogAdmin) DeleteQuestion(ctx context.Context, quizID, questionID int64) error {
	return c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*questionRow)(nil)).
			Where("id = ?", questionID).
			Where("quiz_id = ?", quizID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuestionNotFound
		}
		return recountQuestions(ctx, tx, quizID)
	})
}

func recountQuestions(ctx context.Context, tx bun.Tx, quizID int64) error {
	_, err := tx.NewUpdate().Model((*quizRow)(nil)).
		Set("total_questions = (SELECT count(*) FROM questions WHERE quiz_id = ?)", quizID).
		Where("id = ?", quizID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recount questions: %w", err)
	}
	return nil
}

func quizToRow(q domain.Quiz) quizRow {
	return quizRow{
		ID:                 q.ID,
		Title:              q.Title,
		Description:        q.Description,
		DurationMinutes:    q.DurationMinutes,
		PerQuestionSeconds: q.PerQuestionSeconds,
		TotalQuestions:     q.TotalQuestions,
		RandomizeQuestions: q.RandomizeQuestions,
		RandomizeOptions:   q.RandomizeOptions,
		CreatedBy:          q.CreatedBy,
		CreatedAt:          q.CreatedAt,
		IsActive:           q.IsActive,
		StartTime:          q.StartTime,
		EndTime:            q.EndTime,
	}
}

func quizFromRow(row quizRow) domain.Quiz {
	return domain.Quiz{
		ID:                 row.ID,
		Title:              row.Title,
		Description:        row.Description,
		DurationMinutes:    row.DurationMinutes,
		PerQuestionSeconds: row.PerQuestionSeconds,
		TotalQuestions:     row.TotalQuestions,
		RandomizeQuestions: row.RandomizeQuestions,
		RandomizeOptions:   row.RandomizeOptions,
		CreatedBy:          row.CreatedBy,
		CreatedAt:          row.CreatedAt,
		IsActive:           row.IsActive,
		StartTime:          row.StartTime,
		EndTime:            row.EndTime,
	}
}

func questionToRow(q domain.Question) questionRow {
	return questionRow{
		ID:              q.ID,
		QuizID:          q.QuizID,
		Text:            q.Text,
		OptionA:         q.Options[domain.LetterA],
		OptionB:         q.Options[domain.LetterB],
		OptionC:         q.Options[domain.LetterC],
		OptionD:         q.Options[domain.LetterD],
		Correct:         string(q.Correct),
		Position:        q.Position,
		TimeBonusFactor: q.TimeBonusFactor,
	}
}
