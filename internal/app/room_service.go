package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"signsense-quiz-service/internal/domain"
	"signsense-quiz-service/internal/scoring"

	"go.uber.org/zap"
)

// RoomStore abstracts the shared room document (in-memory, sqlite, Redis, Mongo).
// Patch must be applied atomically by the backend; no implementation may
// write back a whole room read earlier.
type RoomStore interface {
	// Create fails with domain.ErrRoomExists when the code is taken.
	Create(ctx context.Context, room domain.Room) error
	// Get returns domain.ErrRoomNotFound for unknown codes.
	Get(ctx context.Context, code string) (domain.Room, error)
	Patch(ctx context.Context, code string, patch domain.RoomPatch) error
	Delete(ctx context.Context, code string) error
}

const (
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

// RoomService contains the live-room use cases shared by host and player roles.
type RoomService struct {
	store     RoomStore
	questions QuestionRepository
	logger    *zap.Logger
	retry     RetryPolicy
	newCode   func() (string, error)
}

// RoomOption customizes a RoomService.
type RoomOption func(*RoomService)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) RoomOption {
	return func(s *RoomService) { s.retry = p }
}

// WithCodeGenerator replaces the random room code source.
func WithCodeGenerator(gen func() (string, error)) RoomOption {
	return func(s *RoomService) { s.newCode = gen }
}

// NewRoomService wires a store and question source. questions may be nil for
// rooms whose callers always pass the question explicitly.
func NewRoomService(store RoomStore, questions QuestionRepository, logger *zap.Logger, opts ...RoomOption) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RoomService{
		store:     store,
		questions: questions,
		logger:    logger,
		retry:     DefaultRetryPolicy(),
		newCode:   randomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom persists a waiting room under a fresh collision-checked code.
func (s *RoomService) CreateRoom(ctx context.Context, subject string) (domain.Room, error) {
	if subject != "" && s.questions != nil {
		// Rooms can't be opened for subjects without a bank.
		if _, err := s.questions.GetBank(ctx, subject); err != nil {
			return domain.Room{}, err
		}
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return domain.Room{}, fmt.Errorf("generate room code: %w", err)
		}
		room := domain.NewRoom(code, subject)
		err = withRetry(ctx, s.retry, s.logger, "create", func(ctx context.Context) error {
			return s.store.Create(ctx, room)
		})
		if errors.Is(err, domain.ErrRoomExists) {
			s.logger.Debug("room code collision", zap.String("code", code))
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		s.logger.Info("room created", zap.String("code", code), zap.String("subject", subject))
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("no free room code after %d attempts: %w", maxCodeAttempts, domain.ErrRoomExists)
}

// JoinRoom registers name in the room. Re-joining keeps the existing score and answer.
func (s *RoomService) JoinRoom(ctx context.Context, code, name string) error {
	if err := domain.ValidatePlayerName(name); err != nil {
		return err
	}
	err := s.patch(ctx, "join", code, domain.RoomPatch{Player: name, EnsurePlayer: true})
	if err == nil {
		s.logger.Info("player joined", zap.String("code", code), zap.String("player", name))
	}
	return err
}

// HostStart moves a waiting room to playing.
func (s *RoomService) HostStart(ctx context.Context, code string) error {
	playing := domain.RoomPlaying
	return s.patch(ctx, "host_start", code, domain.RoomPatch{
		RequireState: []domain.RoomState{domain.RoomWaiting},
		State:        &playing,
	})
}

// HostAdvance moves the question pointer forward while playing. It fails with
// domain.ErrInvalidTransition on the bank's last question; the host ends the room
// instead. The write is pinned to the index read, so two racing advances move
// the pointer once.
func (s *RoomService) HostAdvance(ctx context.Context, code string) error {
	room, err := s.ReadRoom(ctx, code)
	if err != nil {
		return err
	}
	if room.State == domain.RoomPlaying && room.Subject != "" && s.questions != nil {
		bank, err := s.questions.GetBank(ctx, room.Subject)
		if err != nil {
			return err
		}
		if room.QuestionIndex+1 >= bank.Len() {
			return fmt.Errorf("%w: room %s is on its last question", domain.ErrInvalidTransition, code)
		}
	}
	index := room.QuestionIndex
	return s.patch(ctx, "host_advance", code, domain.RoomPatch{
		RequireState:    []domain.RoomState{domain.RoomPlaying},
		RequireQuestion: &index,
		AdvanceQuestion: true,
	})
}

// HostEnd finishes a waiting or playing room.
func (s *RoomService) HostEnd(ctx context.Context, code string) error {
	finished := domain.RoomFinished
	return s.patch(ctx, "host_end", code, domain.RoomPatch{
		RequireState: []domain.RoomState{domain.RoomWaiting, domain.RoomPlaying},
		State:        &finished,
	})
}

// AnswerOutcome is what a player learns after submitting.
type AnswerOutcome struct {
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	QuestionID string `json:"question_id"`
}

// SubmitPlayerAnswer patches only players[name]: the answer, plus the question's
// base points when correct. The room must be playing, and the answer counts for
// the question index current at the time of the call.
func (s *RoomService) SubmitPlayerAnswer(ctx context.Context, code, name string, question domain.Question, chosen string) (AnswerOutcome, error) {
	if err := domain.ValidatePlayerName(name); err != nil {
		return AnswerOutcome{}, err
	}
	room, err := s.ReadRoom(ctx, code)
	if err != nil {
		return AnswerOutcome{}, err
	}
	return s.SubmitAnswerAt(ctx, code, name, room.QuestionIndex, question, chosen)
}

// SubmitCurrentAnswer scores chosen against the room's current question and
// reports which question index it was counted for.
func (s *RoomService) SubmitCurrentAnswer(ctx context.Context, code, name, chosen string) (AnswerOutcome, int, error) {
	room, err := s.ReadRoom(ctx, code)
	if err != nil {
		return AnswerOutcome{}, 0, err
	}
	out, err := s.answerAt(ctx, room, name, room.QuestionIndex, chosen)
	return out, room.QuestionIndex, err
}

// SubmitIndexedAnswer scores chosen against question index of the room's bank.
// It fails with domain.ErrInvalidTransition once the host has moved past index.
func (s *RoomService) SubmitIndexedAnswer(ctx context.Context, code, name string, index int, chosen string) (AnswerOutcome, error) {
	room, err := s.ReadRoom(ctx, code)
	if err != nil {
		return AnswerOutcome{}, err
	}
	return s.answerAt(ctx, room, name, index, chosen)
}

func (s *RoomService) answerAt(ctx context.Context, room domain.Room, name string, index int, chosen string) (AnswerOutcome, error) {
	room.QuestionIndex = index
	question, err := s.CurrentQuestion(ctx, room)
	if err != nil {
		return AnswerOutcome{}, err
	}
	return s.SubmitAnswerAt(ctx, room.Code, name, index, question, chosen)
}

// SubmitAnswerAt is SubmitPlayerAnswer conditioned on the question pointer, so an
// answer can't land on a question the host has already moved past. A second
// answer for the same index fails with domain.ErrAlreadyAnswered.
func (s *RoomService) SubmitAnswerAt(ctx context.Context, code, name string, index int, question domain.Question, chosen string) (AnswerOutcome, error) {
	if err := domain.ValidatePlayerName(name); err != nil {
		return AnswerOutcome{}, err
	}
	out := AnswerOutcome{Correct: question.IsCorrect(chosen), QuestionID: question.ID}
	if out.Correct {
		out.Awarded = scoring.BasePoints(question.Difficulty)
	}
	err := s.patch(ctx, "submit_answer", code, domain.RoomPatch{
		RequireState:    []domain.RoomState{domain.RoomPlaying},
		RequireQuestion: &index,
		Player:          name,
		Answer:          &chosen,
		ScoreDelta:      out.Awarded,
	})
	if err != nil {
		return AnswerOutcome{}, err
	}
	return out, nil
}

// CurrentQuestion resolves the question the room's pointer is on.
func (s *RoomService) CurrentQuestion(ctx context.Context, room domain.Room) (domain.Question, error) {
	if s.questions == nil || room.Subject == "" {
		return domain.Question{}, fmt.Errorf("%w: room %s has no question bank", domain.ErrQuestionNotFound, room.Code)
	}
	bank, err := s.questions.GetBank(ctx, room.Subject)
	if err != nil {
		return domain.Question{}, err
	}
	q, ok := bank.At(room.QuestionIndex)
	if !ok {
		return domain.Question{}, fmt.Errorf("%w: room %s index %d", domain.ErrQuestionNotFound, room.Code, room.QuestionIndex)
	}
	return q, nil
}

// ReadRoom returns a full snapshot.
func (s *RoomService) ReadRoom(ctx context.Context, code string) (domain.Room, error) {
	var room domain.Room
	err := withRetry(ctx, s.retry, s.logger, "read", func(ctx context.Context) error {
		var err error
		room, err = s.store.Get(ctx, code)
		return err
	})
	return room, err
}

// EndSession deletes the room document.
func (s *RoomService) EndSession(ctx context.Context, code string) error {
	err := withRetry(ctx, s.retry, s.logger, "delete", func(ctx context.Context) error {
		return s.store.Delete(ctx, code)
	})
	if err == nil {
		s.logger.Info("room deleted", zap.String("code", code))
	}
	return err
}

func (s *RoomService) patch(ctx context.Context, op, code string, patch domain.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	err := withRetry(ctx, s.retry, s.logger, op, func(ctx context.Context) error {
		return s.store.Patch(ctx, code, patch)
	})
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
		s.logger.Warn("room patch rejected", zap.String("op", op), zap.String("code", code), zap.Error(err))
	}
	return err
}

func randomCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
