package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signsense-quiz-service/internal/domain"
)

func TestQuestionRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{
			"math": sampleQuestions(),
		}),
	}
	repo := NewQuestionRepository(loader, time.Minute)

	bank, err := repo.GetBank(context.Background(), "math")
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}
	if first, _ := bank.At(0); first.Difficulty != domain.Easy {
		t.Fatalf("expected easy question first, got %s", first.Difficulty)
	}

	if _, err := repo.GetBank(context.Background(), "math"); err != nil {
		t.Fatalf("get bank 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuestionRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionLoader(map[string][]domain.Question{"math": sampleQuestions()}),
	}
	repo := NewQuestionRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetBank(context.Background(), "math")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetBank(context.Background(), "math")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestQuestionRepositoryRejectsMalformedBank(t *testing.T) {
	bad := sampleQuestions()
	bad[0].CorrectAnswer = "not an option"
	repo := NewQuestionRepository(NewStaticQuestionLoader(map[string][]domain.Question{"math": bad}), time.Minute)

	if _, err := repo.GetBank(context.Background(), "math"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := repo.GetBank(context.Background(), "history"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing subject, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, subject string) ([]domain.Question, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.QuestionLoader.LoadQuestions(ctx, subject)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q-hard", Text: "What is 12 x 12?", Options: []string{"124", "144"}, CorrectAnswer: "144", Difficulty: domain.Hard},
		{ID: "q-easy", Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4", Difficulty: domain.Easy},
	}
}
