package domain

import (
	"fmt"
	"sort"
)

// Difficulty grades a question; ordering is easy < medium < hard.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Difficulties lists the grades in ascending order.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// Rank returns the sort position of d, or -1 when d is not a known grade.
func (d Difficulty) Rank() int {
	switch d {
	case Easy:
		return 0
	case Medium:
		return 1
	case Hard:
		return 2
	}
	return -1
}

// Question models a multiple-choice item. Media references are passed through untouched.
type Question struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Difficulty    Difficulty `json:"difficulty"`
	Hints         []string   `json:"hints,omitempty"`
	Media         []string   `json:"media,omitempty"`
}

// IsCorrect reports whether chosen matches the correct answer exactly.
func (q Question) IsCorrect(chosen string) bool {
	return chosen == q.CorrectAnswer
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question without id")
	}
	if n := len(q.Options); n < 2 || n > 6 {
		return fmt.Errorf("question %s: %d options, want 2-6", q.ID, n)
	}
	found := false
	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("question %s: correct answer %q is not an option", q.ID, q.CorrectAnswer)
	}
	if q.Difficulty.Rank() < 0 {
		return fmt.Errorf("question %s: unknown difficulty %q", q.ID, q.Difficulty)
	}
	return nil
}

// QuestionBank is the immutable, difficulty-ordered question set for one subject.
type QuestionBank struct {
	subject   string
	questions []Question
}

// NewQuestionBank validates questions and stable-sorts them easy to hard.
// The input slice is copied.
func NewQuestionBank(subject string, questions []Question) (*QuestionBank, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: subject %q has no questions", ErrConfiguration, subject)
	}
	seen := make(map[string]struct{}, len(questions))
	sorted := make([]Question, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: subject %q: %v", ErrConfiguration, subject, err)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("%w: subject %q: duplicate question id %s", ErrConfiguration, subject, q.ID)
		}
		seen[q.ID] = struct{}{}
		sorted[i] = q
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Difficulty.Rank() < sorted[j].Difficulty.Rank()
	})
	return &QuestionBank{subject: subject, questions: sorted}, nil
}

func (b *QuestionBank) Subject() string { return b.subject }

func (b *QuestionBank) Len() int { return len(b.questions) }

// At returns the question at index i.
func (b *QuestionBank) At(i int) (Question, bool) {
	if i < 0 || i >= len(b.questions) {
		return Question{}, false
	}
	return b.questions[i], true
}

// Questions returns a copy of the ordered questions.
func (b *QuestionBank) Questions() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// AnswerRecord is written once per answered question and never mutated.
type AnswerRecord struct {
	QuestionID    string     `json:"question_id"`
	QuestionText  string     `json:"question_text,omitempty"`
	Chosen        string     `json:"chosen"`
	CorrectAnswer string     `json:"correct_answer"`
	IsCorrect     bool       `json:"is_correct"`
	Difficulty    Difficulty `json:"difficulty"`
	TimeTaken     *float64   `json:"time_taken"`
	PointsEarned  int        `json:"points_earned"`
	StreakAfter   int        `json:"streak_after"`
}

// DifficultyStats aggregates answers for one difficulty grade.
type DifficultyStats struct {
	Answered int     `json:"answered"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// SessionSummary is the dashboard view of a finished or in-progress session.
type SessionSummary struct {
	Mode          string                         `json:"mode"`
	Subject       string                         `json:"subject"`
	TotalAnswered int                            `json:"total_answered"`
	CorrectCount  int                            `json:"correct_count"`
	Score         int                            `json:"score"`
	MaxScore      int                            `json:"max_score"`
	Percentage    float64                        `json:"percentage"`
	ByDifficulty  map[Difficulty]DifficultyStats `json:"by_difficulty"`
	AverageTime   *float64                       `json:"average_time"`
	BestStreak    int                            `json:"best_streak"`
	Badges        []string                       `json:"badges"`
	XP            int                            `json:"xp"`
	Level         int                            `json:"level"`
	XPToNextLevel int                            `json:"xp_to_next_level"`
	Coaching      string                         `json:"coaching"`
	Review        []AnswerRecord                 `json:"review"`
}
