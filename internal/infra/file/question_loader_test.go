package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"signsense-quiz-service/internal/domain"
)

func TestLoadQuestions(t *testing.T) {
	dir := t.TempDir()
	body := `[
		{"id":"m1","text":"2 + 2?","options":["3","4"],"correct_answer":"4","difficulty":"easy"},
		{"question":"Capital of India?","options":["Mumbai","New Delhi"],"answer":"New Delhi","difficulty":"Medium","hints":["It has 'new' in it"]}
	]`
	if err := os.WriteFile(filepath.Join(dir, "questions_math.json"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	questions, err := NewQuestionLoader(dir).LoadQuestions(context.Background(), "Math")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	legacy := questions[1]
	if legacy.ID != "q2" || legacy.Text != "Capital of India?" || legacy.CorrectAnswer != "New Delhi" || legacy.Difficulty != domain.Medium {
		t.Fatalf("legacy fields not mapped: %+v", legacy)
	}
	if _, err := domain.NewQuestionBank("math", questions); err != nil {
		t.Fatalf("bank: %v", err)
	}
}

func TestLoadQuestionsFailures(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "questions_english.json"), []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loader := NewQuestionLoader(dir)

	for _, subject := range []string{"science", "english", "../etc", ""} {
		if _, err := loader.LoadQuestions(context.Background(), subject); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("subject %q: expected configuration error, got %v", subject, err)
		}
	}
}
