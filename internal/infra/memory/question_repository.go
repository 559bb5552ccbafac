package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"signsense-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a subject's questions from a backing store (file, Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, subject string) ([]domain.Question, error)
}

// QuestionRepository caches validated banks with TTL to avoid repeated loads.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      *domain.QuestionBank
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *QuestionRepository) GetBank(ctx context.Context, subject string) (*domain.QuestionBank, error) {
	if bank, ok := r.cached(subject); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(subject, func() (interface{}, error) {
		if bank, ok := r.cached(subject); ok {
			return bank, nil
		}

		questions, err := r.loader.LoadQuestions(ctx, subject)
		if err != nil {
			return nil, err
		}
		bank, err := domain.NewQuestionBank(subject, questions)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[subject] = cachedBank{
			bank:      bank,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.QuestionBank), nil
}

func (r *QuestionRepository) cached(subject string) (*domain.QuestionBank, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[subject]; ok && entry.expiresAt.After(now) {
		return entry.bank, true
	}
	return nil, false
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionLoader struct {
	banks map[string][]domain.Question
}

func NewStaticQuestionLoader(banks map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{banks: banks}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, subject string) ([]domain.Question, error) {
	if questions, ok := l.banks[subject]; ok {
		return questions, nil
	}
	return nil, fmt.Errorf("%w: no questions for subject %q", domain.ErrConfiguration, subject)
}
