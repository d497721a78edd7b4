package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/shuffle"
)

// CatalogRepository provides read access to quiz content (from cache or
// backing store). The session side never writes through it.
type CatalogRepository interface {
	Quiz(ctx context.Context, id int64) (domain.Quiz, error)
	Questions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

// SessionRepository abstracts durable storage for sessions, answers, and
// results (in-memory, Postgres, etc).
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	ByToken(ctx context.Context, token string) (domain.Session, error)
	ActiveForUser(ctx context.Context, userID, quizID int64) (domain.Session, bool, error)
	SetCursor(ctx context.Context, sessionID int64, cursor int) error
	UpsertAnswer(ctx context.Context, a *domain.Answer) error
	AnswerFor(ctx context.Context, sessionID, questionID int64) (domain.Answer, bool, error)
	Answers(ctx context.Context, sessionID int64) ([]domain.Answer, error)
	// Complete marks the session finished and persists its result in one
	// atomic step. Partial writes must not survive a failure.
	Complete(ctx context.Context, s domain.Session, r *domain.Result) error
	ResultForSession(ctx context.Context, sessionID int64) (domain.Result, error)
	SessionsByQuiz(ctx context.Context, quizID int64) ([]domain.Session, error)
	ResultsByQuiz(ctx context.Context, quizID int64) ([]domain.Result, error)
}

// SessionService owns the quiz attempt lifecycle: start, question
// navigation, answer recording, and submission. Mutations on one session
// are serialized through a per-token lock; different sessions never
// contend.
type SessionService struct {
	sessions SessionRepository
	catalog  CatalogRepository
	now      func() time.Time
	locks    keyedMutex
}

func NewSessionService(sessions SessionRepository, catalog CatalogRepository) *SessionService {
	return NewSessionServiceWithClock(sessions, catalog, time.Now)
}

// NewSessionServiceWithClock allows deterministic timestamps in tests.
func NewSessionServiceWithClock(sessions SessionRepository, catalog CatalogRepository, now func() time.Time) *SessionService {
	return &SessionService{sessions: sessions, catalog: catalog, now: now}
}

// SessionView is the derived, client-facing state of a session. Remaining
// time is recomputed from the clock on every read.
type SessionView struct {
	Token            string `json:"token"`
	QuizID           int64  `json:"quizId"`
	QuizTitle        string `json:"quizTitle"`
	Cursor           int    `json:"cursor"`
	TotalQuestions   int    `json:"totalQuestions"`
	RemainingSeconds int    `json:"remainingSeconds"`
	Completed        bool   `json:"completed"`
	Resumed          bool   `json:"resumed,omitempty"`
}

// QuestionView is the current question in presentation space, with the
// stored answer (if any) translated into the same space.
type QuestionView struct {
	QuestionID         int64            `json:"questionId"`
	Text               string           `json:"text"`
	Options            domain.OptionSet `json:"options"`
	Index              int              `json:"index"`
	TotalQuestions     int              `json:"totalQuestions"`
	RemainingSeconds   int              `json:"remainingSeconds"`
	PerQuestionSeconds int              `json:"perQuestionSeconds,omitempty"`
	TimeBonusFactor    float64          `json:"timeBonusFactor"`
	HasPrevious        bool             `json:"hasPrevious"`
	HasNext            bool             `json:"hasNext"`
	Previous           *PreviousAnswer  `json:"previous,omitempty"`
}

// PreviousAnswer echoes an earlier submission for the displayed question.
type PreviousAnswer struct {
	Selected         domain.Letter `json:"selected,omitempty"`
	TimeTakenSeconds int           `json:"timeTakenSeconds"`
	AnsweredAt       time.Time     `json:"answeredAt"`
}

// AnswerSubmission is the inbound answer for one question. Selected may be
// empty to record the question as skipped.
type AnswerSubmission struct {
	QuestionID       int64         `json:"questionId"`
	Selected         domain.Letter `json:"selected"`
	TimeTakenSeconds int           `json:"timeTakenSeconds"`
}

// Cursor reports the navigation position after an advance or retreat.
type Cursor struct {
	Index          int `json:"index"`
	TotalQuestions int `json:"totalQuestions"`
}

// Start creates a session for (principal, quiz), or resumes the existing
// active one. Duplicate start requests therefore return the same token.
func (s *SessionService) Start(ctx context.Context, principal domain.Principal, quizID int64) (SessionView, error) {
	quiz, err := s.catalog.Quiz(ctx, quizID)
	if err != nil {
		return SessionView{}, err
	}
	now := s.now()
	if !quiz.AvailableAt(now) {
		return SessionView{}, domain.ErrQuizUnavailable
	}

	unlock := s.locks.lock(startKey(principal.ID, quizID))
	defer unlock()

	if existing, ok, err := s.sessions.ActiveForUser(ctx, principal.ID, quizID); err != nil {
		return SessionView{}, err
	} else if ok && existing.ActiveAt(now) {
		view := s.view(existing, quiz, now)
		view.Resumed = true
		return view, nil
	}

	// The deadline anchors to the top of the current minute so displayed
	// timers line up with wall-clock minutes.
	deadline := now.Truncate(time.Minute).Add(time.Duration(quiz.DurationMinutes) * time.Minute)
	session := domain.Session{
		UserID:    principal.ID,
		QuizID:    quizID,
		Token:     newToken(),
		StartedAt: now,
		EndsAt:    &deadline,
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		return SessionView{}, err
	}
	return s.view(session, quiz, now), nil
}

// Session returns the derived state for an active session owned by the
// caller.
func (s *SessionService) Session(ctx context.Context, principal domain.Principal, token string) (SessionView, error) {
	session, quiz, err := s.ownedSession(ctx, principal, token)
	if err != nil {
		return SessionView{}, err
	}
	return s.view(session, quiz, s.now()), nil
}

// Lookup resolves a token to its session and quiz without an ownership
// check; the real-time join path uses it before registering a connection.
func (s *SessionService) Lookup(ctx context.Context, token string) (domain.Session, domain.Quiz, error) {
	session, err := s.sessions.ByToken(ctx, token)
	if err != nil {
		return domain.Session{}, domain.Quiz{}, err
	}
	quiz, err := s.catalog.Quiz(ctx, session.QuizID)
	if err != nil {
		return domain.Session{}, domain.Quiz{}, err
	}
	return session, quiz, nil
}

// CurrentQuestion returns the question under the cursor in the caller's
// presentation space, with the quiz's randomization flags applied.
func (s *SessionService) CurrentQuestion(ctx context.Context, principal domain.Principal, token string) (QuestionView, error) {
	session, quiz, err := s.ownedSession(ctx, principal, token)
	if err != nil {
		return QuestionView{}, err
	}
	now := s.now()
	if !session.ActiveAt(now) {
		return QuestionView{}, domain.ErrSessionExpired
	}

	questions, err := s.orderedQuestions(ctx, session, quiz)
	if err != nil {
		return QuestionView{}, err
	}
	if session.Cursor >= len(questions) {
		return QuestionView{}, domain.ErrAllQuestionsCompleted
	}

	question := questions[session.Cursor]
	options, m := s.optionLayout(session, quiz, question)

	view := QuestionView{
		QuestionID:         question.ID,
		Text:               question.Text,
		Options:            options,
		Index:              session.Cursor,
		TotalQuestions:     len(questions),
		RemainingSeconds:   session.RemainingSeconds(now, quiz),
		PerQuestionSeconds: quiz.PerQuestionSeconds,
		TimeBonusFactor:    question.TimeBonusFactor,
		HasPrevious:        session.Cursor > 0,
		HasNext:            session.Cursor < len(questions)-1,
	}

	if prev, ok, err := s.sessions.AnswerFor(ctx, session.ID, question.ID); err != nil {
		return QuestionView{}, err
	} else if ok {
		selected := prev.Selected
		if selected != "" {
			selected = m.Forward[selected]
		}
		view.Previous = &PreviousAnswer{
			Selected:         selected,
			TimeTakenSeconds: prev.TimeTakenSeconds,
			AnsweredAt:       prev.AnsweredAt,
		}
	}
	return view, nil
}

// Advance moves the cursor by delta (+1 or -1), clamped to the question
// range. Moving past either edge fails rather than wrapping.
func (s *SessionService) Advance(ctx context.Context, principal domain.Principal, token string, delta int) (Cursor, error) {
	if delta != 1 && delta != -1 {
		return Cursor{}, domain.ErrInvalidInput
	}

	unlock := s.locks.lock(token)
	defer unlock()

	session, quiz, err := s.ownedSession(ctx, principal, token)
	if err != nil {
		return Cursor{}, err
	}
	if !session.ActiveAt(s.now()) {
		return Cursor{}, domain.ErrSessionExpired
	}

	questions, err := s.catalog.Questions(ctx, quiz.ID)
	if err != nil {
		return Cursor{}, err
	}
	total := len(questions)

	next := session.Cursor + delta
	if next < 0 || next > total-1 {
		return Cursor{}, domain.ErrBoundaryReached
	}
	if err := s.sessions.SetCursor(ctx, session.ID, next); err != nil {
		return Cursor{}, err
	}
	return Cursor{Index: next, TotalQuestions: total}, nil
}

// RecordAnswer upserts the caller's answer for one question. The submitted
// letter is translated back to canonical space before correctness is
// computed, so re-submitting through a reconnect stays consistent.
func (s *SessionService) RecordAnswer(ctx context.Context, principal domain.Principal, token string, sub AnswerSubmission) (domain.Answer, error) {
	if sub.QuestionID == 0 || sub.TimeTakenSeconds < 0 {
		return domain.Answer{}, domain.ErrInvalidInput
	}
	if sub.Selected != "" && !sub.Selected.Valid() {
		return domain.Answer{}, domain.ErrInvalidInput
	}

	unlock := s.locks.lock(token)
	defer unlock()

	session, quiz, err := s.ownedSession(ctx, principal, token)
	if err != nil {
		return domain.Answer{}, err
	}
	if !session.ActiveAt(s.now()) {
		return domain.Answer{}, domain.ErrSessionExpired
	}

	questions, err := s.catalog.Questions(ctx, quiz.ID)
	if err != nil {
		return domain.Answer{}, err
	}
	var question *domain.Question
	for i := range questions {
		if questions[i].ID == sub.QuestionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}

	canonical := sub.Selected
	if canonical != "" {
		_, m := s.optionLayout(session, quiz, *question)
		canonical = m.Reverse[canonical]
	}

	answer := domain.Answer{
		SessionID:        session.ID,
		QuestionID:       question.ID,
		Selected:         canonical,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		AnsweredAt:       s.now(),
		Correct:          canonical != "" && canonical == question.Correct,
	}
	if err := s.sessions.UpsertAnswer(ctx, &answer); err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

// Submit finalizes the session and computes its result. Submitting an
// already-completed session returns the stored result unchanged.
func (s *SessionService) Submit(ctx context.Context, principal domain.Principal, token string) (domain.Result, error) {
	unlock := s.locks.lock(token)
	defer unlock()

	session, quiz, err := s.ownedSession(ctx, principal, token)
	if err != nil {
		return domain.Result{}, err
	}
	if session.Completed {
		return s.sessions.ResultForSession(ctx, session.ID)
	}

	now := s.now()
	session.Completed = true
	session.EndsAt = &now

	answers, err := s.sessions.Answers(ctx, session.ID)
	if err != nil {
		return domain.Result{}, err
	}
	questions, err := s.catalog.Questions(ctx, quiz.ID)
	if err != nil {
		return domain.Result{}, err
	}

	result := ComputeResult(session, answers, questions)
	if err := s.sessions.Complete(ctx, session, &result); err != nil {
		return domain.Result{}, err
	}
	return result, nil
}

// AnswerDetail pairs a stored answer with its question for the result
// breakdown. Correct answers are only revealed here, after submission.
type AnswerDetail struct {
	QuestionID    int64            `json:"questionId"`
	Text          string           `json:"text"`
	Options       domain.OptionSet `json:"options"`
	CorrectAnswer domain.Letter    `json:"correctAnswer"`
	Selected      domain.Letter    `json:"selected,omitempty"`
	Correct       bool             `json:"correct"`
	TimeTaken     int              `json:"timeTakenSeconds"`
}

// ResultView is the stored result plus the per-question breakdown.
type ResultView struct {
	domain.Result
	Answers []AnswerDetail `json:"answers"`
}

// Result returns the stored result for a completed session.
func (s *SessionService) Result(ctx context.Context, principal domain.Principal, token string) (ResultView, error) {
	session, quiz, err := s.ownedSession(ctx, principal, token)
	if err != nil {
		return ResultView{}, err
	}
	if !session.Completed {
		return ResultView{}, domain.ErrNotCompleted
	}
	result, err := s.sessions.ResultForSession(ctx, session.ID)
	if err != nil {
		return ResultView{}, err
	}

	answers, err := s.sessions.Answers(ctx, session.ID)
	if err != nil {
		return ResultView{}, err
	}
	questions, err := s.catalog.Questions(ctx, quiz.ID)
	if err != nil {
		return ResultView{}, err
	}
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	view := ResultView{Result: result, Answers: make([]AnswerDetail, 0, len(answers))}
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		view.Answers = append(view.Answers, AnswerDetail{
			QuestionID:    q.ID,
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.Correct,
			Selected:      a.Selected,
			Correct:       a.Correct,
			TimeTaken:     a.TimeTakenSeconds,
		})
	}
	return view, nil
}

func (s *SessionService) ownedSession(ctx context.Context, principal domain.Principal, token string) (domain.Session, domain.Quiz, error) {
	session, err := s.sessions.ByToken(ctx, token)
	if err != nil {
		return domain.Session{}, domain.Quiz{}, err
	}
	if session.UserID != principal.ID {
		return domain.Session{}, domain.Quiz{}, domain.ErrForbidden
	}
	quiz, err := s.catalog.Quiz(ctx, session.QuizID)
	if err != nil {
		return domain.Session{}, domain.Quiz{}, err
	}
	return session, quiz, nil
}

// orderedQuestions applies the per-user question permutation when the quiz
// asks for it. The layout is regenerated from the seed on every call, so a
// reconnect reproduces the identical order without persisting it.
func (s *SessionService) orderedQuestions(ctx context.Context, session domain.Session, quiz domain.Quiz) ([]domain.Question, error) {
	questions, err := s.catalog.Questions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	if quiz.RandomizeQuestions {
		questions = shuffle.Questions(questions, shuffle.Seed(session.UserID, quiz.ID))
	}
	return questions, nil
}

func (s *SessionService) optionLayout(session domain.Session, quiz domain.Quiz, question domain.Question) (domain.OptionSet, shuffle.OptionMap) {
	if !quiz.RandomizeOptions {
		return question.Options, shuffle.Identity()
	}
	return shuffle.Options(question.Options, shuffle.Seed(session.UserID, quiz.ID, question.ID))
}

func (s *SessionService) view(session domain.Session, quiz domain.Quiz, now time.Time) SessionView {
	return SessionView{
		Token:            session.Token,
		QuizID:           quiz.ID,
		QuizTitle:        quiz.Title,
		Cursor:           session.Cursor,
		TotalQuestions:   quiz.TotalQuestions,
		RemainingSeconds: session.RemainingSeconds(now, quiz),
		Completed:        session.Completed,
	}
}

// newToken produces the opaque external session handle: 32 random bytes,
// URL-safe base64.
func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("session token: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func startKey(userID, quizID int64) string {
	return "start:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(quizID, 10)
}

// keyedMutex serializes work per key; entries are dropped once the last
// holder releases them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
