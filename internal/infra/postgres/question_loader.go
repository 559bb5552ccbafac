package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"signsense-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads a subject's question bank from the question_banks JSONB table.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, subject string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE subject=$1`, subject).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: no question bank for subject %q", domain.ErrConfiguration, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("%w: unmarshal questions for %q: %v", domain.ErrConfiguration, subject, err)
	}
	return questions, nil
}

// SaveQuestions upserts the bank for subject.
func (l *QuestionLoader) SaveQuestions(ctx context.Context, subject string, questions []domain.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO question_banks (subject, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (subject) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		subject, string(data))
	if err != nil {
		return fmt.Errorf("save questions: %w", err)
	}
	return nil
}
