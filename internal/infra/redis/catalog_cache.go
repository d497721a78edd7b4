package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// CatalogCache is a read-through cache in front of the catalog store.
// Values are stored as:
//
//	SET catalog:quiz:{id}            {quiz JSON}
//	SET catalog:quiz:{id}:questions  {questions JSON}
//
// Misses collapse through singleflight so a popular quiz hits the backing
// store once per expiry.
type CatalogCache struct {
	client *redis.Client
	source app.CatalogRepository
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogCache(client *redis.Client, source app.CatalogRepository, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) Quiz(ctx context.Context, id int64) (domain.Quiz, error) {
	key := c.quizKey(id)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}
		quiz, err := c.source.Quiz(ctx, id)
		if err != nil {
			return domain.Quiz{}, err
		}
		if raw, err := json.Marshal(quiz); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *CatalogCache) Questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	key := c.questionsKey(quizID)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached []cachedQuestion
		if err := json.Unmarshal(raw, &cached); err == nil {
			return questionsFromCache(cached), nil
		}
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var cached []cachedQuestion
			if err := json.Unmarshal(raw, &cached); err == nil {
				return questionsFromCache(cached), nil
			}
		}
		questions, err := c.source.Questions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		cached := make([]cachedQuestion, len(questions))
		for i, q := range questions {
			cached[i] = newCachedQuestion(q)
		}
		if raw, err := json.Marshal(cached); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops cached entries for a quiz; called after admin writes.
func (c *CatalogCache) Invalidate(ctx context.Context, quizID int64) {
	_ = c.client.Del(ctx, c.quizKey(quizID), c.questionsKey(quizID)).Err()
}

func (c *CatalogCache) quizKey(id int64) string {
	return "catalog:quiz:" + strconv.FormatInt(id, 10)
}

func (c *CatalogCache) questionsKey(id int64) string {
	return "catalog:quiz:" + strconv.FormatInt(id, 10) + ":questions"
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// cachedQuestion mirrors domain.Question for the cache payload. The domain
// type hides the correct-answer letter from JSON, so the cache form carries
// it explicitly.
type cachedQuestion struct {
	ID              int64            `json:"id"`
	QuizID          int64            `json:"quizId"`
	Text            string           `json:"text"`
	Options         domain.OptionSet `json:"options"`
	Correct         domain.Letter    `json:"correct"`
	Position        int              `json:"position"`
	TimeBonusFactor float64          `json:"timeBonusFactor"`
}

func newCachedQuestion(q domain.Question) cachedQuestion {
	return cachedQuestion{
		ID:              q.ID,
		QuizID:          q.QuizID,
		Text:            q.Text,
		Options:         q.Options,
		Correct:         q.Correct,
		Position:        q.Position,
		TimeBonusFactor: q.TimeBonusFactor,
	}
}

func questionsFromCache(cached []cachedQuestion) []domain.Question {
	out := make([]domain.Question, len(cached))
	for i, c := range cached {
		out[i] = domain.Question{
			ID:              c.ID,
			QuizID:          c.QuizID,
			Text:            c.Text,
			Options:         c.Options,
			Correct:         c.Correct,
			Position:        c.Position,
			TimeBonusFactor: c.TimeBonusFactor,
		}
	}
	return out
}
