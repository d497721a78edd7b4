package domain

import "time"

// Role of an authenticated principal. The service only distinguishes
// administrators from regular users.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the identity resolved from a verified credential.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Letter identifies one of the four fixed option slots.
type Letter string

const (
	LetterA Letter = "a"
	LetterB Letter = "b"
	LetterC Letter = "c"
	LetterD Letter = "d"
)

// Letters lists the option slots in canonical order.
var Letters = [4]Letter{LetterA, LetterB, LetterC, LetterD}

// Valid reports whether l names one of the four slots.
func (l Letter) Valid() bool {
	switch l {
	case LetterA, LetterB, LetterC, LetterD:
		return true
	}
	return false
}

// OptionSet holds the four option texts keyed by slot.
type OptionSet map[Letter]string

// Quiz is the administrative configuration of one quiz.
type Quiz struct {
	ID                 int64      `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	DurationMinutes    int        `json:"durationMinutes"`
	PerQuestionSeconds int        `json:"perQuestionSeconds,omitempty"`
	TotalQuestions     int        `json:"totalQuestions"`
	RandomizeQuestions bool       `json:"randomizeQuestions"`
	RandomizeOptions   bool       `json:"randomizeOptions"`
	CreatedBy          int64      `json:"createdBy"`
	CreatedAt          time.Time  `json:"createdAt"`
	IsActive           bool       `json:"isActive"`
	StartTime          *time.Time `json:"startTime,omitempty"`
	EndTime            *time.Time `json:"endTime,omitempty"`
}

// AvailableAt reports whether the quiz can be started at the given instant:
// active, and inside the optional availability window.
func (q Quiz) AvailableAt(now time.Time) bool {
	if !q.IsActive {
		return false
	}
	if q.StartTime != nil && now.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && now.After(*q.EndTime) {
		return false
	}
	return true
}

// DurationSeconds is the whole-quiz timer in seconds.
func (q Quiz) DurationSeconds() int { return q.DurationMinutes * 60 }

// Question is a four-option MCQ. Correct is the canonical answer letter;
// randomization only ever changes presentation, never this record.
type Question struct {
	ID              int64     `json:"id"`
	QuizID          int64     `json:"quizId"`
	Text            string    `json:"text"`
	Options         OptionSet `json:"options"`
	Correct         Letter    `json:"-"`
	Position        int       `json:"position"`
	TimeBonusFactor float64   `json:"timeBonusFactor"`
}

// Session is one user's attempt at a quiz. The token is the external
// handle; numeric IDs never leave the service.
type Session struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	QuizID    int64      `json:"quizId"`
	Token     string     `json:"token"`
	StartedAt time.Time  `json:"startedAt"`
	EndsAt    *time.Time `json:"endsAt,omitempty"`
	Cursor    int        `json:"cursor"`
	Completed bool       `json:"completed"`
}

// ActiveAt reports whether the session still accepts mutations: not
// completed and not past its deadline.
func (s Session) ActiveAt(now time.Time) bool {
	if s.Completed {
		return false
	}
	if s.EndsAt != nil && now.After(*s.EndsAt) {
		return false
	}
	return true
}

// RemainingSeconds derives the time left from the quiz duration and the
// session start. Always recomputed; never read back from storage.
func (s Session) RemainingSeconds(now time.Time, quiz Quiz) int {
	if s.Completed {
		return 0
	}
	elapsed := int(now.Sub(s.StartedAt).Seconds())
	remaining := quiz.DurationSeconds() - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Answer is the stored response for one (session, question) pair. Selected
// is empty when the user skipped the question. Correct is computed against
// the canonical answer at write time.
type Answer struct {
	ID               int64     `json:"id"`
	SessionID        int64     `json:"sessionId"`
	QuestionID       int64     `json:"questionId"`
	Selected         Letter    `json:"selected,omitempty"`
	TimeTakenSeconds int       `json:"timeTakenSeconds"`
	AnsweredAt       time.Time `json:"answeredAt"`
	Correct          bool      `json:"correct"`
}

// Attempted reports whether an option was actually chosen.
func (a Answer) Attempted() bool { return a.Selected != "" }

// Result is the cached score for a completed session, fully derivable from
// the session, its answers, and the catalog.
type Result struct {
	ID                int64     `json:"id"`
	SessionID         int64     `json:"sessionId"`
	UserID            int64     `json:"userId"`
	QuizID            int64     `json:"quizId"`
	TotalScore        float64   `json:"totalScore"`
	AccuracyScore     int       `json:"accuracyScore"`
	TimeBonusScore    float64   `json:"timeBonusScore"`
	TotalTimeSeconds  int       `json:"totalTimeSeconds"`
	Attempted         int       `json:"attempted"`
	CorrectCount      int       `json:"correctCount"`
	CompletionPercent float64   `json:"completionPercent"`
	SubmittedAt       time.Time `json:"submittedAt"`
}

// Analytics is the administrative aggregate over one quiz's attempts.
type Analytics struct {
	QuizID            int64   `json:"quizId"`
	TotalAttempts     int     `json:"totalAttempts"`
	CompletedAttempts int     `json:"completedAttempts"`
	CompletionRate    float64 `json:"completionRate"`
	AverageScore      float64 `json:"averageScore"`
	AverageSeconds    float64 `json:"averageSeconds"`
}
