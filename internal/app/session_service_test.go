package app_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

var alice = domain.Principal{ID: 7, Username: "alice", Role: domain.RoleUser}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(randomize bool) (*app.SessionService, *testClock) {
	catalog := memory.NewCatalog()
	catalog.Seed(
		[]domain.Quiz{{
			ID:                 1,
			Title:              "Capitals",
			DurationMinutes:    5,
			RandomizeQuestions: randomize,
			RandomizeOptions:   randomize,
			IsActive:           true,
		}},
		[]domain.Question{
			{
				ID: 1, QuizID: 1, Text: "Capital of France?", Position: 1,
				Options: domain.OptionSet{"a": "Paris", "b": "Lyon", "c": "Nice", "d": "Lille"},
				Correct: "a", TimeBonusFactor: 1.0,
			},
			{
				ID: 2, QuizID: 1, Text: "Capital of Japan?", Position: 2,
				Options: domain.OptionSet{"a": "Osaka", "b": "Kyoto", "c": "Tokyo", "d": "Nagoya"},
				Correct: "c", TimeBonusFactor: 1.0,
			},
			{
				ID: 3, QuizID: 1, Text: "Capital of Peru?", Position: 3,
				Options: domain.OptionSet{"a": "Cusco", "b": "Lima", "c": "Quito", "d": "Bogota"},
				Correct: "b", TimeBonusFactor: 1.0,
			},
		},
	)

	clock := &testClock{now: time.Date(2025, 3, 10, 9, 30, 42, 0, time.UTC)}
	service := app.NewSessionServiceWithClock(memory.NewSessionStore(), catalog, clock.Now)
	return service, clock
}

func TestStartResumesActiveSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(false)

	first, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if first.Token == "" || first.Resumed {
		t.Fatalf("expected fresh session, got %+v", first)
	}

	second, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if second.Token != first.Token {
		t.Fatalf("expected resumed token %q, got %q", first.Token, second.Token)
	}
	if !second.Resumed {
		t.Fatal("expected resumed flag on duplicate start")
	}
}

func TestStartInactiveQuiz(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalog()
	catalog.Seed([]domain.Quiz{{ID: 1, Title: "Off", DurationMinutes: 5}}, nil)
	service := app.NewSessionService(memory.NewSessionStore(), catalog)

	if _, err := service.Start(ctx, alice, 1); err != domain.ErrQuizUnavailable {
		t.Fatalf("expected ErrQuizUnavailable, got %v", err)
	}
}

func TestStartOutsideSchedule(t *testing.T) {
	ctx := context.Background()
	opens := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	closed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	catalog := memory.NewCatalog()
	catalog.Seed([]domain.Quiz{
		{ID: 1, Title: "Later", DurationMinutes: 5, IsActive: true, StartTime: &opens},
		{ID: 2, Title: "Over", DurationMinutes: 5, IsActive: true, EndTime: &closed},
	}, nil)
	service := app.NewSessionService(memory.NewSessionStore(), catalog)

	if _, err := service.Start(ctx, alice, 1); err != domain.ErrQuizUnavailable {
		t.Fatalf("expected ErrQuizUnavailable before start time, got %v", err)
	}
	if _, err := service.Start(ctx, alice, 2); err != domain.ErrQuizUnavailable {
		t.Fatalf("expected ErrQuizUnavailable after end time, got %v", err)
	}
}

func TestRemainingTimeCountsDown(t *testing.T) {
	ctx := context.Background()
	service, clock := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.RemainingSeconds > 5*60 || started.RemainingSeconds <= 0 {
		t.Fatalf("unexpected initial remaining %d", started.RemainingSeconds)
	}

	clock.Advance(90 * time.Second)
	later, err := service.Session(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("session read failed: %v", err)
	}
	if later.RemainingSeconds >= started.RemainingSeconds {
		t.Fatalf("remaining did not decrease: %d -> %d", started.RemainingSeconds, later.RemainingSeconds)
	}
}

func TestExpiredSessionRejectsMutations(t *testing.T) {
	ctx := context.Background()
	service, clock := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	clock.Advance(6 * time.Minute)

	if _, err := service.CurrentQuestion(ctx, alice, started.Token); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := service.RecordAnswer(ctx, alice, started.Token, app.AnswerSubmission{QuestionID: 1, Selected: "a"}); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := service.Advance(ctx, alice, started.Token, 1); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	view, err := service.Session(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("expired session should still be readable: %v", err)
	}
	if view.RemainingSeconds != 0 {
		t.Fatalf("expected 0 remaining after expiry, got %d", view.RemainingSeconds)
	}
}

func TestEmptyQuizReportsAllQuestionsCompleted(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewCatalog()
	catalog.Seed([]domain.Quiz{{ID: 1, Title: "Empty", DurationMinutes: 5, IsActive: true}}, nil)
	service := app.NewSessionService(memory.NewSessionStore(), catalog)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.CurrentQuestion(ctx, alice, started.Token); err != domain.ErrAllQuestionsCompleted {
		t.Fatalf("expected ErrAllQuestionsCompleted, got %v", err)
	}
}

func TestAdvanceBoundaries(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := service.Advance(ctx, alice, started.Token, -1); err != domain.ErrBoundaryReached {
		t.Fatalf("expected ErrBoundaryReached at first question, got %v", err)
	}
	if _, err := service.Advance(ctx, alice, started.Token, 2); err != domain.ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for delta 2, got %v", err)
	}

	for want := 1; want <= 2; want++ {
		cursor, err := service.Advance(ctx, alice, started.Token, 1)
		if err != nil {
			t.Fatalf("advance to %d failed: %v", want, err)
		}
		if cursor.Index != want {
			t.Fatalf("expected index %d, got %d", want, cursor.Index)
		}
	}
	if _, err := service.Advance(ctx, alice, started.Token, 1); err != domain.ErrBoundaryReached {
		t.Fatalf("expected ErrBoundaryReached at last question, got %v", err)
	}

	cursor, err := service.Advance(ctx, alice, started.Token, -1)
	if err != nil {
		t.Fatalf("retreat failed: %v", err)
	}
	if cursor.Index != 1 {
		t.Fatalf("expected index 1 after retreat, got %d", cursor.Index)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	mallory := domain.Principal{ID: 99, Username: "mallory", Role: domain.RoleUser}
	if _, err := service.Session(ctx, mallory, started.Token); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := service.Submit(ctx, mallory, started.Token); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestShuffledAnswerScoredAgainstCanonical(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(true)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	view, err := service.CurrentQuestion(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("question read failed: %v", err)
	}

	correctText := map[int64]string{1: "Paris", 2: "Tokyo", 3: "Lima"}[view.QuestionID]
	var displayed domain.Letter
	for letter, text := range view.Options {
		if text == correctText {
			displayed = letter
		}
	}
	if displayed == "" {
		t.Fatalf("correct text %q not present in shuffled options %v", correctText, view.Options)
	}

	answer, err := service.RecordAnswer(ctx, alice, started.Token, app.AnswerSubmission{
		QuestionID:       view.QuestionID,
		Selected:         displayed,
		TimeTakenSeconds: 12,
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if !answer.Correct {
		t.Fatalf("displayed letter %q for %q should score correct", displayed, correctText)
	}

	// The stored previous answer must come back in the same presentation
	// space it was submitted in.
	again, err := service.CurrentQuestion(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("question reread failed: %v", err)
	}
	if again.Previous == nil || again.Previous.Selected != displayed {
		t.Fatalf("expected previous answer %q, got %+v", displayed, again.Previous)
	}
}

func TestShuffledLayoutStableAcrossReads(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(true)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	first, err := service.CurrentQuestion(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("question read failed: %v", err)
	}
	second, err := service.CurrentQuestion(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("question reread failed: %v", err)
	}
	if first.QuestionID != second.QuestionID || !reflect.DeepEqual(first.Options, second.Options) {
		t.Fatalf("layout changed between reads: %+v vs %+v", first, second)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.RecordAnswer(ctx, alice, started.Token, app.AnswerSubmission{QuestionID: 1, Selected: "a", TimeTakenSeconds: 10}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := service.RecordAnswer(ctx, alice, started.Token, app.AnswerSubmission{QuestionID: 2, Selected: "a", TimeTakenSeconds: 20}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	first, err := service.Submit(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	second, err := service.Submit(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("repeat submit failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeat submit changed the result: %+v vs %+v", first, second)
	}

	if _, err := service.RecordAnswer(ctx, alice, started.Token, app.AnswerSubmission{QuestionID: 3, Selected: "b"}); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired after completion, got %v", err)
	}
}

func TestResultRequiresCompletion(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.Result(ctx, alice, started.Token); err != domain.ErrNotCompleted {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}

	if _, err := service.Submit(ctx, alice, started.Token); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	view, err := service.Result(ctx, alice, started.Token)
	if err != nil {
		t.Fatalf("result failed: %v", err)
	}
	if view.CompletionPercent != 0 {
		t.Fatalf("no answers were recorded, got completion %v", view.CompletionPercent)
	}
}

func TestAnalyticsAggregates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(false)

	started, err := service.Start(ctx, alice, 1)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := service.RecordAnswer(ctx, alice, started.Token, app.AnswerSubmission{QuestionID: 1, Selected: "a", TimeTakenSeconds: 10}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if _, err := service.Submit(ctx, alice, started.Token); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	bob := domain.Principal{ID: 8, Username: "bob", Role: domain.RoleUser}
	if _, err := service.Start(ctx, bob, 1); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	stats, err := service.Analytics(ctx, 1)
	if err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
	if stats.TotalAttempts != 2 || stats.CompletedAttempts != 1 {
		t.Fatalf("unexpected attempt counts: %+v", stats)
	}
	if stats.CompletionRate != 50 {
		t.Fatalf("expected 50%% completion rate, got %v", stats.CompletionRate)
	}
}
