// Package file loads question banks from JSON files laid out as
// <dir>/questions_<subject>.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"signsense-quiz-service/internal/domain"
)

// QuestionLoader reads one JSON array of questions per subject.
type QuestionLoader struct {
	dir string
}

func NewQuestionLoader(dir string) *QuestionLoader {
	return &QuestionLoader{dir: dir}
}

// record accepts both the current field names and the legacy "question"/"answer" ones.
type record struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	Question      string            `json:"question"`
	Options       []string          `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Answer        string            `json:"answer"`
	Difficulty    domain.Difficulty `json:"difficulty"`
	Hints         []string          `json:"hints"`
	Media         []string          `json:"media"`
}

func (r record) question(i int) domain.Question {
	q := domain.Question{
		ID:            r.ID,
		Text:          r.Text,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
		Difficulty:    domain.Difficulty(strings.ToLower(string(r.Difficulty))),
		Hints:         r.Hints,
		Media:         r.Media,
	}
	if q.Text == "" {
		q.Text = r.Question
	}
	if q.CorrectAnswer == "" {
		q.CorrectAnswer = r.Answer
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("q%d", i+1)
	}
	return q
}

// Path returns the file backing subject.
func (l *QuestionLoader) Path(subject string) string {
	return filepath.Join(l.dir, "questions_"+strings.ToLower(subject)+".json")
}

func (l *QuestionLoader) LoadQuestions(_ context.Context, subject string) ([]domain.Question, error) {
	if subject == "" || strings.ContainsAny(subject, `/\`) || strings.Contains(subject, "..") {
		return nil, fmt.Errorf("%w: invalid subject %q", domain.ErrConfiguration, subject)
	}
	path := l.Path(subject)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no question file for subject %q", domain.ErrConfiguration, subject)
		}
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrConfiguration, path, err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	questions := make([]domain.Question, len(records))
	for i, r := range records {
		questions[i] = r.question(i)
	}
	return questions, nil
}
