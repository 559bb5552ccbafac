package domain

import (
	"errors"
	"testing"
)

func TestNewQuestionBankSortsStably(t *testing.T) {
	bank, err := NewQuestionBank("math", []Question{
		{ID: "h1", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: Hard},
		{ID: "e1", Options: []string{"a", "b"}, CorrectAnswer: "b", Difficulty: Easy},
		{ID: "m1", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: Medium},
		{ID: "e2", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: Easy},
	})
	if err != nil {
		t.Fatalf("new bank: %v", err)
	}
	var ids []string
	for _, q := range bank.Questions() {
		ids = append(ids, q.ID)
	}
	want := []string{"e1", "e2", "m1", "h1"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
	if _, ok := bank.At(bank.Len()); ok {
		t.Fatalf("index past the end must be absent")
	}
	if _, ok := bank.At(-1); ok {
		t.Fatalf("negative index must be absent")
	}
}

func TestNewQuestionBankValidation(t *testing.T) {
	ok := Question{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: Easy}
	cases := map[string][]Question{
		"empty":          nil,
		"one option":     {{ID: "q1", Options: []string{"a"}, CorrectAnswer: "a", Difficulty: Easy}},
		"seven options":  {{ID: "q1", Options: []string{"a", "b", "c", "d", "e", "f", "g"}, CorrectAnswer: "a", Difficulty: Easy}},
		"answer missing": {{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: "c", Difficulty: Easy}},
		"bad difficulty": {{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: "expert"}},
		"no id":          {{Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: Easy}},
		"duplicate id":   {ok, ok},
	}
	for name, qs := range cases {
		if _, err := NewQuestionBank("math", qs); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestQuestionBankCopiesInput(t *testing.T) {
	qs := []Question{{ID: "q1", Text: "original", Options: []string{"a", "b"}, CorrectAnswer: "a", Difficulty: Easy}}
	bank, _ := NewQuestionBank("math", qs)
	qs[0].Text = "mutated"
	out := bank.Questions()
	out[0].Text = "mutated again"
	if q, _ := bank.At(0); q.Text != "original" {
		t.Fatalf("bank must not alias caller slices, got %q", q.Text)
	}
}

func TestIsCorrectIsExact(t *testing.T) {
	q := Question{CorrectAnswer: "Paris"}
	if !q.IsCorrect("Paris") || q.IsCorrect("paris") || q.IsCorrect(" Paris") {
		t.Fatalf("answer comparison must be exact")
	}
}
