package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signsense-quiz-service/internal/domain"
	"signsense-quiz-service/internal/scoring"

	"github.com/google/uuid"
)

// QuestionRepository resolves the question bank for a subject (cache/backing store).
type QuestionRepository interface {
	GetBank(ctx context.Context, subject string) (*domain.QuestionBank, error)
}

// QuizSession is a single-owner solo quiz. It is not safe for concurrent use;
// the owning caller sequences every mutation.
type QuizSession struct {
	ID      string
	Mode    scoring.Mode
	Subject string

	bank              *domain.QuestionBank
	now               func() time.Time
	index             int
	score             int
	streak            int
	bestStreak        int
	history           []domain.AnswerRecord
	lastAnswered      int
	questionStartedAt *time.Time
}

// Start loads the bank for subject and returns a fresh session.
func Start(ctx context.Context, questions QuestionRepository, mode, subject string) (*QuizSession, error) {
	return StartWithClock(ctx, questions, mode, subject, time.Now)
}

// StartWithClock is Start with an injectable clock for deterministic timing.
func StartWithClock(ctx context.Context, questions QuestionRepository, mode, subject string, now func() time.Time) (*QuizSession, error) {
	m, err := scoring.ParseMode(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	bank, err := questions.GetBank(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load subject %q: %v", domain.ErrConfiguration, subject, err)
	}
	return &QuizSession{
		ID:           uuid.NewString(),
		Mode:         m,
		Subject:      subject,
		bank:         bank,
		now:          now,
		lastAnswered: -1,
	}, nil
}

// CurrentQuestion returns the question at the current index, or false once finished.
// The first observation of an index starts its answer timer.
func (s *QuizSession) CurrentQuestion() (domain.Question, bool) {
	q, ok := s.bank.At(s.index)
	if !ok {
		return domain.Question{}, false
	}
	if s.questionStartedAt == nil {
		started := s.now()
		s.questionStartedAt = &started
	}
	return q, true
}

// Answered reports whether the current index already has a record.
// Callers use it to guard against double submission.
func (s *QuizSession) Answered() bool {
	return s.lastAnswered == s.index
}

// SubmitAnswer scores chosen against the current question and appends exactly one record.
// Calling it twice for one index records two answers.
func (s *QuizSession) SubmitAnswer(chosen string) (domain.AnswerRecord, error) {
	q, ok := s.bank.At(s.index)
	if !ok {
		return domain.AnswerRecord{}, fmt.Errorf("%w: session %s is finished", domain.ErrInvalidState, s.ID)
	}

	var elapsed *float64
	if s.questionStartedAt != nil {
		secs := s.now().Sub(*s.questionStartedAt).Seconds()
		elapsed = &secs
	}

	correct := q.IsCorrect(chosen)
	out, err := scoring.Award(s.Mode, q.Difficulty, correct, elapsed, s.streak, s.bestStreak)
	if err != nil {
		return domain.AnswerRecord{}, err
	}

	rec := domain.AnswerRecord{
		QuestionID:    q.ID,
		QuestionText:  q.Text,
		Chosen:        chosen,
		CorrectAnswer: q.CorrectAnswer,
		IsCorrect:     correct,
		Difficulty:    q.Difficulty,
		TimeTaken:     elapsed,
		PointsEarned:  out.Points,
		StreakAfter:   out.Streak,
	}
	s.history = append(s.history, rec)
	s.score += out.Points
	s.streak = out.Streak
	s.bestStreak = out.BestStreak
	s.lastAnswered = s.index
	s.questionStartedAt = nil
	return rec, nil
}

// Advance moves to the next question; it never passes the terminal index.
func (s *QuizSession) Advance() {
	if s.index < s.bank.Len() {
		s.index++
	}
	s.questionStartedAt = nil
}

func (s *QuizSession) Index() int      { return s.index }
func (s *QuizSession) Total() int      { return s.bank.Len() }
func (s *QuizSession) Score() int      { return s.score }
func (s *QuizSession) Streak() int     { return s.streak }
func (s *QuizSession) BestStreak() int { return s.bestStreak }
func (s *QuizSession) Finished() bool  { return s.index >= s.bank.Len() }

// History returns a copy of the answer log.
func (s *QuizSession) History() []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Summary aggregates the history. It does not mutate the session.
func (s *QuizSession) Summary() domain.SessionSummary {
	byDifficulty := make(map[domain.Difficulty]domain.DifficultyStats)
	correct, timed := 0, 0
	timeSum := 0.0
	review := []domain.AnswerRecord{}
	for _, rec := range s.history {
		st := byDifficulty[rec.Difficulty]
		st.Answered++
		if rec.IsCorrect {
			st.Correct++
			correct++
		} else {
			review = append(review, rec)
		}
		byDifficulty[rec.Difficulty] = st
		if rec.TimeTaken != nil {
			timed++
			timeSum += *rec.TimeTaken
		}
	}
	for d, st := range byDifficulty {
		st.Accuracy = float64(st.Correct) / float64(st.Answered)
		byDifficulty[d] = st
	}

	var avg *float64
	if timed > 0 {
		v := timeSum / float64(timed)
		avg = &v
	}

	difficulties := make([]domain.Difficulty, 0, s.bank.Len())
	for _, q := range s.bank.Questions() {
		difficulties = append(difficulties, q.Difficulty)
	}
	maxScore := scoring.MaxScore(s.Mode, difficulties)
	pct := 0.0
	if maxScore > 0 {
		pct = float64(s.score) / float64(maxScore) * 100
	}

	level, toNext := scoring.Level(s.score)
	profile, _ := scoring.ProfileFor(s.Mode)
	return domain.SessionSummary{
		Mode:          string(s.Mode),
		Subject:       s.Subject,
		TotalAnswered: len(s.history),
		CorrectCount:  correct,
		Score:         s.score,
		MaxScore:      maxScore,
		Percentage:    pct,
		ByDifficulty:  byDifficulty,
		AverageTime:   avg,
		BestStreak:    s.bestStreak,
		Badges:        scoring.Badges(s.history, s.bestStreak, s.bank.Len()),
		XP:            s.score,
		Level:         level,
		XPToNextLevel: toNext,
		Coaching:      profile.Coaching,
		Review:        review,
	}
}
