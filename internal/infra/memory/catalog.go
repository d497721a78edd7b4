package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
)

// Catalog is an in-memory quiz/question store. It backs tests and
// storage-less runs, and doubles as the loader behind the Redis cache.
type Catalog struct {
	mu        sync.RWMutex
	quizzes   map[int64]domain.Quiz
	questions map[int64][]domain.Question
	nextQuiz  int64
	nextQuest int64
}

func NewCatalog() *Catalog {
	return &Catalog{
		quizzes:   make(map[int64]domain.Quiz),
		questions: make(map[int64][]domain.Question),
	}
}

// Seed installs quizzes with their questions in one call (tests, demos).
func (c *Catalog) Seed(quizzes []domain.Quiz, questions []domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quizzes {
		if q.ID > c.nextQuiz {
			c.nextQuiz = q.ID
		}
		c.quizzes[q.ID] = q
	}
	for _, q := range questions {
		if q.ID > c.nextQuest {
			c.nextQuest = q.ID
		}
		c.questions[q.QuizID] = append(c.questions[q.QuizID], q)
	}
	for id := range c.questions {
		c.sortLocked(id)
		if quiz, ok := c.quizzes[id]; ok {
			quiz.TotalQuestions = len(c.questions[id])
			c.quizzes[id] = quiz
		}
	}
}

func (c *Catalog) Quiz(_ context.Context, id int64) (domain.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	quiz, ok := c.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (c *Catalog) Questions(_ context.Context, quizID int64) ([]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.quizzes[quizID]; !ok {
		return nil, domain.ErrQuizNotFound
	}
	qs := c.questions[quizID]
	out := make([]domain.Question, len(qs))
	copy(out, qs)
	return out, nil
}

func (c *Catalog) ListQuizzes(_ context.Context) ([]domain.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(c.quizzes))
	for _, q := range c.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *Catalog) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextQuiz++
	q.ID = c.nextQuiz
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	c.quizzes[q.ID] = *q
	return nil
}

func (c *Catalog) UpdateQuiz(_ context.Context, q domain.Quiz) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.quizzes[q.ID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	// Provenance fields are not part of the update surface.
	q.CreatedBy = existing.CreatedBy
	q.CreatedAt = existing.CreatedAt
	q.TotalQuestions = len(c.questions[q.ID])
	c.quizzes[q.ID] = q
	return nil
}

func (c *Catalog) DeactivateQuiz(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	quiz, ok := c.quizzes[id]
	if !ok {
		return domain.ErrQuizNotFound
	}
	quiz.IsActive = false
	c.quizzes[id] = quiz
	return nil
}

func (c *Catalog) CreateQuestion(_ context.Context, q *domain.Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	quiz, ok := c.quizzes[q.QuizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	c.nextQuest++
	q.ID = c.nextQuest
	if q.TimeBonusFactor == 0 {
		q.TimeBonusFactor = 1.0
	}
	c.questions[q.QuizID] = append(c.questions[q.QuizID], *q)
	c.sortLocked(q.QuizID)
	quiz.TotalQuestions = len(c.questions[q.QuizID])
	c.quizzes[q.QuizID] = quiz
	return nil
}

func (c *Catalog) UpdateQuestion(_ context.Context, q domain.Question) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	qs := c.questions[q.QuizID]
	for i := range qs {
		if qs[i].ID == q.ID {
			qs[i] = q
			c.sortLocked(q.QuizID)
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (c *Catalog) DeleteQuestion(_ context.Context, quizID, questionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	qs := c.questions[quizID]
	for i := range qs {
		if qs[i].ID == questionID {
			c.questions[quizID] = append(qs[:i], qs[i+1:]...)
			if quiz, ok := c.quizzes[quizID]; ok {
				quiz.TotalQuestions = len(c.questions[quizID])
				c.quizzes[quizID] = quiz
			}
			return nil
		}
	}
	return domain.ErrQuestionNotFound
}

func (c *Catalog) sortLocked(quizID int64) {
	qs := c.questions[quizID]
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
}
