package app

import (
	"quiz-session-service/internal/domain"
)

// Time-bonus constants: every second saved under the cap is worth
// bonusRate points, scaled by the question's bonus factor.
const (
	bonusCapSeconds = 30
	bonusRate       = 0.1
)

// ComputeResult scores a finished session from its stored answers and the
// canonical question set. It is pure: the same inputs always produce the
// same result, so a recomputation can be checked against the stored row.
func ComputeResult(session domain.Session, answers []domain.Answer, questions []domain.Question) domain.Result {
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var attempted, correct int
	var timeBonus float64
	for _, a := range answers {
		if a.Attempted() {
			attempted++
		}
		if !a.Correct {
			continue
		}
		correct++

		saved := bonusCapSeconds - a.TimeTakenSeconds
		if saved <= 0 {
			continue
		}
		factor := 1.0
		if q, ok := byID[a.QuestionID]; ok && q.TimeBonusFactor != 0 {
			factor = q.TimeBonusFactor
		}
		timeBonus += float64(saved) * bonusRate * factor
	}

	completion := 0.0
	if len(questions) > 0 {
		completion = float64(attempted) / float64(len(questions)) * 100
	}

	result := domain.Result{
		SessionID:         session.ID,
		UserID:            session.UserID,
		QuizID:            session.QuizID,
		TotalScore:        float64(correct) + timeBonus,
		AccuracyScore:     correct,
		TimeBonusScore:    timeBonus,
		Attempted:         attempted,
		CorrectCount:      correct,
		CompletionPercent: completion,
	}
	if session.EndsAt != nil {
		result.TotalTimeSeconds = int(session.EndsAt.Sub(session.StartedAt).Seconds())
		result.SubmittedAt = *session.EndsAt
	}
	return result
}
