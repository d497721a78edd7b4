package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-session-service/internal/domain"
)

type answerKey struct {
	sessionID  int64
	questionID int64
}

// SessionStore is the in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[int64]domain.Session
	byToken    map[string]int64
	answers    map[answerKey]domain.Answer
	results    map[int64]domain.Result
	nextID     int64
	nextAnswer int64
	nextResult int64
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]domain.Session),
		byToken:  make(map[string]int64),
		answers:  make(map[answerKey]domain.Answer),
		results:  make(map[int64]domain.Result),
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	session.ID = s.nextID
	s.sessions[session.ID] = *session
	s.byToken[session.Token] = session.ID
	return nil
}

func (s *SessionStore) ByToken(_ context.Context, token string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *SessionStore) ActiveForUser(_ context.Context, userID, quizID int64) (domain.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest domain.Session
	var found bool
	for _, session := range s.sessions {
		if session.UserID != userID || session.QuizID != quizID || session.Completed {
			continue
		}
		if !found || session.ID > latest.ID {
			latest = session
			found = true
		}
	}
	return latest, found, nil
}

func (s *SessionStore) SetCursor(_ context.Context, sessionID int64, cursor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Cursor = cursor
	s.sessions[sessionID] = session
	return nil
}

func (s *SessionStore) UpsertAnswer(_ context.Context, a *domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey{sessionID: a.SessionID, questionID: a.QuestionID}
	if existing, ok := s.answers[key]; ok {
		a.ID = existing.ID
	} else {
		s.nextAnswer++
		a.ID = s.nextAnswer
	}
	s.answers[key] = *a
	return nil
}

func (s *SessionStore) AnswerFor(_ context.Context, sessionID, questionID int64) (domain.Answer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerKey{sessionID: sessionID, questionID: questionID}]
	return a, ok, nil
}

func (s *SessionStore) Answers(_ context.Context, sessionID int64) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0)
	for key, a := range s.answers {
		if key.sessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *SessionStore) Complete(_ context.Context, session domain.Session, r *domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	stored.Completed = true
	stored.EndsAt = session.EndsAt
	s.sessions[session.ID] = stored

	if existing, ok := s.results[session.ID]; ok {
		r.ID = existing.ID
	} else {
		s.nextResult++
		r.ID = s.nextResult
	}
	s.results[session.ID] = *r
	return nil
}

func (s *SessionStore) ResultForSession(_ context.Context, sessionID int64) (domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[sessionID]
	if !ok {
		return domain.Result{}, domain.ErrResultNotFound
	}
	return r, nil
}

func (s *SessionStore) SessionsByQuiz(_ context.Context, quizID int64) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0)
	for _, session := range s.sessions {
		if session.QuizID == quizID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *SessionStore) ResultsByQuiz(_ context.Context, quizID int64) ([]domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Result, 0)
	for _, r := range s.results {
		if r.QuizID == quizID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
