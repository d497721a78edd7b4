package app

import (
	"context"

	"quiz-session-service/internal/domain"
)

// Analytics aggregates attempts and results for one quiz. Administrative
// read; the transport layer gates it behind the admin role.
func (s *SessionService) Analytics(ctx context.Context, quizID int64) (domain.Analytics, error) {
	if _, err := s.catalog.Quiz(ctx, quizID); err != nil {
		return domain.Analytics{}, err
	}

	sessions, err := s.sessions.SessionsByQuiz(ctx, quizID)
	if err != nil {
		return domain.Analytics{}, err
	}
	results, err := s.sessions.ResultsByQuiz(ctx, quizID)
	if err != nil {
		return domain.Analytics{}, err
	}

	out := domain.Analytics{QuizID: quizID, TotalAttempts: len(sessions)}
	for _, session := range sessions {
		if session.Completed {
			out.CompletedAttempts++
		}
	}
	if out.TotalAttempts > 0 {
		out.CompletionRate = float64(out.CompletedAttempts) / float64(out.TotalAttempts) * 100
	}

	var scoreSum, secondsSum float64
	var timed int
	for _, r := range results {
		scoreSum += r.TotalScore
		if r.TotalTimeSeconds > 0 {
			secondsSum += float64(r.TotalTimeSeconds)
			timed++
		}
	}
	if len(results) > 0 {
		out.AverageScore = scoreSum / float64(len(results))
	}
	if timed > 0 {
		out.AverageSeconds = secondsSum / float64(timed)
	}
	return out, nil
}
