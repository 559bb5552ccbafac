package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"signsense-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a subject's questions from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, subject string) ([]domain.Question, error)
}

// QuestionCache keeps each subject's questions as one JSON value in Redis
// and falls back to a loader on cache miss:
//
//	SET questions:{subject} <json> PX <ttl>
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration, logger *zap.Logger) *QuestionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetBank(ctx context.Context, subject string) (*domain.QuestionBank, error) {
	if bank, ok := c.cached(ctx, subject); ok {
		return bank, nil
	}

	result, err, _ := c.sf.Do(subject, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if bank, ok := c.cached(ctx, subject); ok {
			return bank, nil
		}

		questions, err := c.loader.LoadQuestions(ctx, subject)
		if err != nil {
			return nil, err
		}
		bank, err := domain.NewQuestionBank(subject, questions)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(questions); err == nil {
			// best-effort: a failed cache write only costs a reload
			if err := c.client.Set(ctx, c.key(subject), data, c.ttlWithJitter()).Err(); err != nil {
				c.logger.Warn("question cache write failed", zap.String("subject", subject), zap.Error(err))
			}
		}
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.QuestionBank), nil
}

func (c *QuestionCache) cached(ctx context.Context, subject string) (*domain.QuestionBank, bool) {
	data, err := c.client.Get(ctx, c.key(subject)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("question cache read failed", zap.String("subject", subject), zap.Error(err))
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, false
	}
	bank, err := domain.NewQuestionBank(subject, questions)
	if err != nil {
		return nil, false
	}
	return bank, true
}

func (c *QuestionCache) key(subject string) string {
	return "questions:" + subject
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
