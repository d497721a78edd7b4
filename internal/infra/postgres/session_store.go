package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID        int64      `bun:"id,pk,autoincrement"`
	UserID    int64      `bun:"user_id,notnull"`
	QuizID    int64      `bun:"quiz_id,notnull"`
	Token     string     `bun:"token,notnull"`
	StartedAt time.Time  `bun:"started_at,notnull"`
	EndsAt    *time.Time `bun:"ends_at"`
	Cursor    int        `bun:"cursor_index,notnull"`
	Completed bool       `bun:"completed,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID               int64     `bun:"id,pk,autoincrement"`
	SessionID        int64     `bun:"session_id,notnull"`
	QuestionID       int64     `bun:"question_id,notnull"`
	Selected         string    `bun:"selected"`
	TimeTakenSeconds int       `bun:"time_taken_seconds,notnull"`
	AnsweredAt       time.Time `bun:"answered_at,notnull"`
	Correct          bool      `bun:"is_correct,notnull"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:results,alias:r"`

	ID                int64     `bun:"id,pk,autoincrement"`
	SessionID         int64     `bun:"session_id,notnull"`
	UserID            int64     `bun:"user_id,notnull"`
	QuizID            int64     `bun:"quiz_id,notnull"`
	TotalScore        float64   `bun:"total_score,notnull"`
	AccuracyScore     int       `bun:"accuracy_score,notnull"`
	TimeBonusScore    float64   `bun:"time_bonus_score,notnull"`
	TotalTimeSeconds  int       `bun:"total_time_seconds,notnull"`
	Attempted         int       `bun:"attempted,notnull"`
	CorrectCount      int       `bun:"correct_count,notnull"`
	CompletionPercent float64   `bun:"completion_percent,notnull"`
	SubmittedAt       time.Time `bun:"submitted_at,notnull"`
}

// SessionStore persists sessions, answers, and results in Postgres.
// Answers are upserted on (session_id, question_id); submit writes the
// completed flag and the result row in one transaction.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	row := sessionToRow(*session)
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.ID = row.ID
	return nil
}

func (s *SessionStore) ByToken(ctx context.Context, token string) (domain.Session, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).Where("token = ?", token).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return sessionFromRow(row), nil
}

func (s *SessionStore) ActiveForUser(ctx context.Context, userID, quizID int64) (domain.Session, bool, error) {
	var row sessionRow
	err := s.db.NewSelect().Model(&row).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("completed = FALSE").
		Order("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("select active session: %w", err)
	}
	return sessionFromRow(row), true, nil
}

func (s *SessionStore) SetCursor(ctx context.Context, sessionID int64, cursor int) error {
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("cursor_index = ?", cursor).
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) UpsertAnswer(ctx context.Context, a *domain.Answer) error {
	row := answerRow{
		SessionID:        a.SessionID,
		QuestionID:       a.QuestionID,
		Selected:         string(a.Selected),
		TimeTakenSeconds: a.TimeTakenSeconds,
		AnsweredAt:       a.AnsweredAt,
		Correct:          a.Correct,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (session_id, question_id) DO UPDATE").
		Set("selected = EXCLUDED.selected").
		Set("time_taken_seconds = EXCLUDED.time_taken_seconds").
		Set("answered_at = EXCLUDED.answered_at").
		Set("is_correct = EXCLUDED.is_correct").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	a.ID = row.ID
	return nil
}

func (s *SessionStore) AnswerFor(ctx context.Context, sessionID, questionID int64) (domain.Answer, bool, error) {
	var row answerRow
	err := s.db.NewSelect().Model(&row).
		Where("session_id = ?", sessionID).
		Where("question_id = ?", questionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("select answer: %w", err)
	}
	return answerFromRow(row), true, nil
}

func (s *SessionStore) Answers(ctx context.Context, sessionID int64) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	out := make([]domain.Answer, len(rows))
	for i, row := range rows {
		out[i] = answerFromRow(row)
	}
	return out, nil
}

func (s *SessionStore) Complete(ctx context.Context, session domain.Session, r *domain.Result) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
			Set("completed = TRUE").
			Set("ends_at = ?", session.EndsAt).
			Where("id = ?", session.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrSessionNotFound
		}

		row := resultToRow(*r)
		_, err = tx.NewInsert().Model(&row).
			On("CONFLICT (session_id) DO UPDATE").
			Set("total_score = EXCLUDED.total_score").
			Set("accuracy_score = EXCLUDED.accuracy_score").
			Set("time_bonus_score = EXCLUDED.time_bonus_score").
			Set("total_time_seconds = EXCLUDED.total_time_seconds").
			Set("attempted = EXCLUDED.attempted").
			Set("correct_count = EXCLUDED.correct_count").
			Set("completion_percent = EXCLUDED.completion_percent").
			Set("submitted_at = EXCLUDED.submitted_at").
			Returning("id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store result: %w", err)
		}
		r.ID = row.ID
		return nil
	})
}

func (s *SessionStore) ResultForSession(ctx context.Context, sessionID int64) (domain.Result, error) {
	var row resultRow
	err := s.db.NewSelect().Model(&row).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Result{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("select result: %w", err)
	}
	return resultFromRow(row), nil
}

func (s *SessionStore) SessionsByQuiz(ctx context.Context, quizID int64) ([]domain.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).Where("quiz_id = ?", quizID).Order("id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	out := make([]domain.Session, len(rows))
	for i, row := range rows {
		out[i] = sessionFromRow(row)
	}
	return out, nil
}

func (s *SessionStore) ResultsByQuiz(ctx context.Context, quizID int64) ([]domain.Result, error) {
	var rows []resultRow
	err := s.db.NewSelect().Model(&rows).Where("quiz_id = ?", quizID).Order("id").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	out := make([]domain.Result, len(rows))
	for i, row := range rows {
		out[i] = resultFromRow(row)
	}
	return out, nil
}

func sessionToRow(s domain.Session) sessionRow {
	return sessionRow{
		ID:        s.ID,
		UserID:    s.UserID,
		QuizID:    s.QuizID,
		Token:     s.Token,
		StartedAt: s.StartedAt,
		EndsAt:    s.EndsAt,
		Cursor:    s.Cursor,
		Completed: s.Completed,
	}
}

func sessionFromRow(row sessionRow) domain.Session {
	return domain.Session{
		ID:        row.ID,
		UserID:    row.UserID,
		QuizID:    row.QuizID,
		Token:     row.Token,
		StartedAt: row.StartedAt,
		EndsAt:    row.EndsAt,
		Cursor:    row.Cursor,
		Completed: row.Completed,
	}
}

func answerFromRow(row answerRow) domain.Answer {
	return domain.Answer{
		ID:               row.ID,
		SessionID:        row.SessionID,
		QuestionID:       row.QuestionID,
		Selected:         domain.Letter(row.Selected),
		TimeTakenSeconds: row.TimeTakenSeconds,
		AnsweredAt:       row.AnsweredAt,
		Correct:          row.Correct,
	}
}

func resultToRow(r domain.Result) resultRow {
	return resultRow{
		ID:                r.ID,
		SessionID:         r.SessionID,
		UserID:            r.UserID,
		QuizID:            r.QuizID,
		TotalScore:        r.TotalScore,
		AccuracyScore:     r.AccuracyScore,
		TimeBonusScore:    r.TimeBonusScore,
		TotalTimeSeconds:  r.TotalTimeSeconds,
		Attempted:         r.Attempted,
		CorrectCount:      r.CorrectCount,
		CompletionPercent: r.CompletionPercent,
		SubmittedAt:       r.SubmittedAt,
	}
}

func resultFromRow(row resultRow) domain.Result {
	return domain.Result{
		ID:                row.ID,
		SessionID:         row.SessionID,
		UserID:            row.UserID,
		QuizID:            row.QuizID,
		TotalScore:        row.TotalScore,
		AccuracyScore:     row.AccuracyScore,
		TimeBonusScore:    row.TimeBonusScore,
		TotalTimeSeconds:  row.TotalTimeSeconds,
		Attempted:         row.Attempted,
		CorrectCount:      row.CorrectCount,
		CompletionPercent: row.CompletionPercent,
		SubmittedAt:       row.SubmittedAt,
	}
}
