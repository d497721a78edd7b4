package app_test

import (
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func scoringFixture() (domain.Session, []domain.Question) {
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ended := started.Add(4 * time.Minute)
	session := domain.Session{ID: 1, UserID: 7, QuizID: 1, StartedAt: started, EndsAt: &ended, Completed: true}
	questions := []domain.Question{
		{ID: 1, QuizID: 1, Correct: "a", TimeBonusFactor: 1.0},
		{ID: 2, QuizID: 1, Correct: "c", TimeBonusFactor: 1.0},
	}
	return session, questions
}

func TestComputeResultAccuracyAndBonus(t *testing.T) {
	session, questions := scoringFixture()
	answers := []domain.Answer{
		{SessionID: 1, QuestionID: 1, Selected: "a", Correct: true, TimeTakenSeconds: 10},
		{SessionID: 1, QuestionID: 2, Selected: "b", Correct: false, TimeTakenSeconds: 25},
	}

	result := app.ComputeResult(session, answers, questions)

	if result.AccuracyScore != 1 || result.CorrectCount != 1 {
		t.Fatalf("expected one correct answer, got %+v", result)
	}
	// 20 seconds saved under the 30s cap at 0.1/s.
	if result.TimeBonusScore != 2.0 {
		t.Fatalf("expected bonus 2.0, got %v", result.TimeBonusScore)
	}
	if result.TotalScore != 3.0 {
		t.Fatalf("expected total 3.0, got %v", result.TotalScore)
	}
	if result.CompletionPercent != 100 {
		t.Fatalf("expected 100%% completion, got %v", result.CompletionPercent)
	}
	if result.TotalTimeSeconds != 240 {
		t.Fatalf("expected 240s total time, got %d", result.TotalTimeSeconds)
	}
}

func TestComputeResultNoBonusPastCap(t *testing.T) {
	session, questions := scoringFixture()
	answers := []domain.Answer{
		{SessionID: 1, QuestionID: 1, Selected: "a", Correct: true, TimeTakenSeconds: 45},
	}

	result := app.ComputeResult(session, answers, questions)
	if result.TimeBonusScore != 0 {
		t.Fatalf("slow correct answer earned bonus %v", result.TimeBonusScore)
	}
	if result.TotalScore != 1.0 {
		t.Fatalf("expected total 1.0, got %v", result.TotalScore)
	}
}

func TestComputeResultBonusFactorScales(t *testing.T) {
	session, questions := scoringFixture()
	questions[0].TimeBonusFactor = 2.0
	answers := []domain.Answer{
		{SessionID: 1, QuestionID: 1, Selected: "a", Correct: true, TimeTakenSeconds: 20},
	}

	result := app.ComputeResult(session, answers, questions)
	if result.TimeBonusScore != 2.0 {
		t.Fatalf("expected doubled bonus 2.0, got %v", result.TimeBonusScore)
	}
}

func TestComputeResultZeroFactorDefaults(t *testing.T) {
	session, questions := scoringFixture()
	questions[0].TimeBonusFactor = 0
	answers := []domain.Answer{
		{SessionID: 1, QuestionID: 1, Selected: "a", Correct: true, TimeTakenSeconds: 20},
	}

	result := app.ComputeResult(session, answers, questions)
	if result.TimeBonusScore != 1.0 {
		t.Fatalf("expected default factor bonus 1.0, got %v", result.TimeBonusScore)
	}
}

func TestComputeResultSkippedNotAttempted(t *testing.T) {
	session, questions := scoringFixture()
	answers := []domain.Answer{
		{SessionID: 1, QuestionID: 1, Selected: "", Correct: false, TimeTakenSeconds: 30},
		{SessionID: 1, QuestionID: 2, Selected: "c", Correct: true, TimeTakenSeconds: 30},
	}

	result := app.ComputeResult(session, answers, questions)
	if result.Attempted != 1 {
		t.Fatalf("skipped answer counted as attempted: %+v", result)
	}
	if result.CompletionPercent != 50 {
		t.Fatalf("expected 50%% completion, got %v", result.CompletionPercent)
	}
}

func TestComputeResultEmptyQuiz(t *testing.T) {
	session, _ := scoringFixture()
	result := app.ComputeResult(session, nil, nil)
	if result.TotalScore != 0 || result.CompletionPercent != 0 {
		t.Fatalf("expected zero result, got %+v", result)
	}
}
